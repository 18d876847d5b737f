package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/lidarhd/internal/model"
	"github.com/sells-group/lidarhd/internal/pdal"
	"github.com/sells-group/lidarhd/pkg/lidarhd"
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download the point cloud of an area of interest",
	Long:  "Finds the catalog tiles intersecting the area of interest, then reads each one clipped to the area, merges them and writes a single LAZ file with PDAL.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("download"); err != nil {
			return err
		}
		outPath, _ := cmd.Flags().GetString("out")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		format, _ := cmd.Flags().GetString("format")
		overwrite, _ := cmd.Flags().GetBool("overwrite")
		if !strings.HasSuffix(outPath, pdal.OutputExt) {
			return eris.Wrapf(model.ErrInvalidArgument, "download: output %q must end in %s", outPath, pdal.OutputExt)
		}

		area, err := areaFromFlags(cmd)
		if err != nil {
			return err
		}

		client, err := lidarhd.New(ctx, clientOptions(cfg, overwrite)...)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if dryRun {
			p, res, err := client.Plan(ctx, area, outPath)
			if err != nil {
				return err
			}
			zap.L().Info("dry run", zap.Int("tiles", len(res.Tiles)), zap.Float64("area_km2", res.AreaKm2))
			return printPipeline(cmd, p, format)
		}

		points, err := client.Download(ctx, area, outPath)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Wrote %d points to %s\n", points.Len(), outPath)
		return nil
	},
}

func printPipeline(cmd *cobra.Command, p *lidarhd.Pipeline, format string) error {
	var (
		data []byte
		err  error
	)
	switch format {
	case "json":
		data, err = p.JSON()
	case "yaml":
		data, err = yaml.Marshal(p)
	default:
		return eris.Errorf("unknown format %q (json or yaml)", format)
	}
	if err != nil {
		return eris.Wrap(err, "render pipeline")
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

func init() {
	addAreaFlags(downloadCmd)
	downloadCmd.Flags().String("out", "", "output point cloud (.laz)")
	downloadCmd.Flags().Bool("dry-run", false, "print the pipeline instead of running it")
	downloadCmd.Flags().String("format", "json", "dry-run output format: json or yaml")
	downloadCmd.Flags().Bool("overwrite", false, "download a new catalog before querying")
	_ = downloadCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(downloadCmd)
}
