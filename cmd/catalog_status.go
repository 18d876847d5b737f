package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/lidarhd/internal/catalog"
)

var catalogStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List catalog generations",
	Long:  "Show every dated catalog in the catalog folder, newest first, and the tile count of the one in use.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		store := catalog.NewStore(cfg.Catalog.Dir, nil)
		gens, err := store.Generations()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "=== Catalog Status ===")
		fmt.Fprintf(out, "Folder:       %s\n", store.Dir())
		fmt.Fprintf(out, "Generations:  %d\n", len(gens))
		if len(gens) == 0 {
			fmt.Fprintln(out, "No catalog yet, run `lidarhd catalog build`.")
			return nil
		}

		c, err := catalog.Load(cmd.Context(), gens[0].Path)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "In use:       %s (%d tiles)\n", gens[0].Path, c.Len())
		fmt.Fprintln(out)
		for _, g := range gens {
			fmt.Fprintf(out, "  %s  %s\n", g.Date.Format("2006-01-02"), g.Path)
		}
		return nil
	},
}

func init() {
	catalogCmd.AddCommand(catalogStatusCmd)
}
