package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lidarhd/internal/catalog"
	"github.com/sells-group/lidarhd/internal/model"
	"github.com/sells-group/lidarhd/internal/query"
)

var tilesCmd = &cobra.Command{
	Use:   "tiles",
	Short: "List the tiles intersecting an area of interest",
	Long:  "Queries the newest local catalog and prints the name, block and URL of every tile whose footprint intersects the area of interest.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		format, _ := cmd.Flags().GetString("format")

		area, err := areaFromFlags(cmd)
		if err != nil {
			return err
		}

		path, found, err := catalog.NewStore(cfg.Catalog.Dir, nil).Discover()
		if err != nil {
			return err
		}
		if !found {
			return eris.Wrapf(model.ErrNotFound, "tiles: no catalog in %s, run `lidarhd catalog build`", cfg.Catalog.Dir)
		}
		c, err := catalog.Load(cmd.Context(), path)
		if err != nil {
			return err
		}

		res, err := query.Intersecting(c, area)
		if err != nil {
			return err
		}
		return printTiles(cmd, res, format)
	},
}

func printTiles(cmd *cobra.Command, res *query.Result, format string) error {
	out := cmd.OutOrStdout()
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res.Tiles)
	case "table":
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tBLOC\tURL")
		for _, t := range res.Tiles {
			fmt.Fprintf(w, "%s\t%s\t%s\n", t.Name, t.Bloc, t.URL)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(out, "\n%d tiles, %.3f km²\n", len(res.Tiles), res.AreaKm2)
		return nil
	default:
		return eris.Errorf("unknown format %q (table or json)", format)
	}
}

func init() {
	addAreaFlags(tilesCmd)
	tilesCmd.Flags().String("format", "table", "output format: table or json")
	rootCmd.AddCommand(tilesCmd)
}
