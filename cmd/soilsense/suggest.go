package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/soilsense/soilsense/pkg/advisor"
	"github.com/soilsense/soilsense/pkg/config"
	"github.com/soilsense/soilsense/pkg/logging"
	"github.com/soilsense/soilsense/pkg/models"
	"github.com/soilsense/soilsense/pkg/monitor"
	"github.com/soilsense/soilsense/pkg/store"
	"github.com/soilsense/soilsense/pkg/suggest"
)

func newSuggestCmd(configPath *string) *cobra.Command {
	var (
		file      string
		rodID     string
		plantType string
	)

	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Get or create the suggestion for a sensor reading",
		Long:  "Reads a sensor reading as JSON from --file (or stdin) and prints the cached or freshly generated suggestion.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			var in io.Reader = cmd.InOrStdin()
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return fmt.Errorf("open reading: %w", err)
				}
				defer f.Close()
				in = f
			}
			var reading models.SensorReading
			if err := json.NewDecoder(in).Decode(&reading); err != nil {
				return fmt.Errorf("decode reading: %w", err)
			}

			logger, err := logging.New(cfg.Log)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			st, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
			if err != nil {
				return fmt.Errorf("init store: %w", err)
			}
			defer func() { _ = st.Close() }()

			gen := advisor.FromConfig(cfg.Advisor)
			svc := suggest.New(st, gen, monitor.New(cfg.Monitor.MaxEvents), cfg.Cache, logger)

			res, err := svc.GetOrCreate(context.Background(), reading, rodID, plantType)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "reading JSON file (default stdin)")
	cmd.Flags().StringVar(&rodID, "rod", "", "owning rod id (defaults to the reading's rodId)")
	cmd.Flags().StringVar(&plantType, "plant", "", "plant type")
	return cmd
}
