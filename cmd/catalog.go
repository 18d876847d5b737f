package main

import "github.com/spf13/cobra"

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the local tile catalog",
	Long:  "Build, inspect and export the dated GeoPackage catalogs of LiDAR HD tiles.",
}

func init() { rootCmd.AddCommand(catalogCmd) }
