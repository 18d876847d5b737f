package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lidarhd/internal/catalog"
	"github.com/sells-group/lidarhd/internal/model"
)

var catalogExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the catalog footprints to a shapefile",
	Long:  "Writes the tile footprints of the newest catalog to an ESRI shapefile in Lambert-93 with URL, BLOC and NAME attributes.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		out, _ := cmd.Flags().GetString("out")

		path, found, err := catalog.NewStore(cfg.Catalog.Dir, nil).Discover()
		if err != nil {
			return err
		}
		if !found {
			return eris.Wrapf(model.ErrNotFound, "catalog export: no catalog in %s", cfg.Catalog.Dir)
		}

		c, err := catalog.Load(cmd.Context(), path)
		if err != nil {
			return err
		}
		if err := catalog.ExportShapefile(c, out); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d tiles from %s to %s\n", c.Len(), path, out)
		return nil
	},
}

func init() {
	catalogExportCmd.Flags().String("out", "", "output shapefile path (.shp)")
	_ = catalogExportCmd.MarkFlagRequired("out")
	catalogCmd.AddCommand(catalogExportCmd)
}
