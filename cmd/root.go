package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lidarhd/internal/catalog"
	"github.com/sells-group/lidarhd/internal/config"
	"github.com/sells-group/lidarhd/internal/fetcher"
	"github.com/sells-group/lidarhd/internal/wfs"
	"github.com/sells-group/lidarhd/pkg/lidarhd"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "lidarhd",
	Short: "Find and download IGN LiDAR HD point clouds",
	Long:  "Maintains a local catalog of IGN LiDAR HD tiles fetched from the WFS, finds the tiles covering an area of interest and merges their clipped points into one LAZ file through PDAL.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// newStore wires the catalog store from configuration.
func newStore(c *config.Config) *catalog.Store {
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:     c.Fetch.UserAgent,
		Timeout:       time.Duration(c.Fetch.TimeoutSecs) * time.Second,
		MaxRetries:    c.Fetch.MaxRetries,
		RatePerSecond: c.Fetch.RatePerSec,
	})
	pages := wfs.NewClient(f, wfs.Options{
		BaseURL:      c.Catalog.BaseURL,
		SRSName:      c.Catalog.SRSName,
		OutputFormat: c.Catalog.OutputFormat,
	})
	b := catalog.NewBuilder(pages, catalog.BuilderOptions{
		PageSize:    c.Catalog.PageSize,
		MaxPages:    c.Catalog.MaxPages,
		Concurrency: c.Catalog.Concurrency,
	})
	return catalog.NewStore(c.Catalog.Dir, b)
}

// clientOptions maps configuration onto the public client.
func clientOptions(c *config.Config, overwrite bool) []lidarhd.Option {
	return []lidarhd.Option{
		lidarhd.WithFolder(c.Catalog.Dir),
		lidarhd.WithOverwrite(overwrite),
		lidarhd.WithBaseURL(c.Catalog.BaseURL),
		lidarhd.WithSRSName(c.Catalog.SRSName),
		lidarhd.WithOutputFormat(c.Catalog.OutputFormat),
		lidarhd.WithPaging(c.Catalog.PageSize, c.Catalog.MaxPages, c.Catalog.Concurrency),
		lidarhd.WithHTTP(c.Fetch.UserAgent, time.Duration(c.Fetch.TimeoutSecs)*time.Second, c.Fetch.MaxRetries, c.Fetch.RatePerSec),
		lidarhd.WithPDAL(c.PDAL.BinPath, c.PDAL.TempDir),
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
