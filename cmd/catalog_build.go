package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var catalogBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Download the tile catalog if missing",
	Long:  "Reuses the newest catalog in the catalog folder, or downloads the full tile list from the WFS when there is none or --overwrite is set.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("catalog"); err != nil {
			return err
		}
		overwrite, _ := cmd.Flags().GetBool("overwrite")

		c, path, err := newStore(cfg).Resolve(ctx, overwrite)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Catalog: %s\n", path)
		fmt.Fprintf(out, "Tiles:   %d\n", c.Len())
		return nil
	},
}

func init() {
	catalogBuildCmd.Flags().Bool("overwrite", false, "download a new catalog even if one exists")
	catalogCmd.AddCommand(catalogBuildCmd)
}
