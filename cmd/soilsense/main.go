package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "soilsense",
		Short:         "SoilSense suggestion cache and retention service",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "soilsense.yaml", "path to config file")

	root.AddCommand(
		newServeCmd(&configPath),
		newSuggestCmd(&configPath),
		newCacheCmd(&configPath),
		newMetricsCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
