package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/soilsense/soilsense/pkg/advisor"
	"github.com/soilsense/soilsense/pkg/api"
	"github.com/soilsense/soilsense/pkg/config"
	"github.com/soilsense/soilsense/pkg/logging"
	"github.com/soilsense/soilsense/pkg/models"
	"github.com/soilsense/soilsense/pkg/monitor"
	"github.com/soilsense/soilsense/pkg/retention"
	"github.com/soilsense/soilsense/pkg/store"
	"github.com/soilsense/soilsense/pkg/suggest"
)

func newServeCmd(configPath *string) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the suggestion API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
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
			mon := monitor.New(cfg.Monitor.MaxEvents, knownModels(gen)...)
			svc := suggest.New(st, gen, mon, cfg.Cache, logger)

			ret, err := retention.New(st, mon, cfg.Cleanup.CleanupConfig, logger, knownModels(gen)...)
			if err != nil {
				return fmt.Errorf("init retention: %w", err)
			}
			if cfg.Cleanup.AutoStart {
				ret.Start()
			}
			defer ret.Stop()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if watch {
				go func() {
					err := config.Watch(ctx, *configPath, logger, func(next *config.Config) {
						if err := ret.Configure(models.PatchFrom(next.Cleanup.CleanupConfig)); err != nil {
							logger.Warn("cleanup config not applied", zap.Error(err))
						}
					})
					if err != nil {
						logger.Warn("config watch stopped", zap.Error(err))
					}
				}()
			}

			logger.Info("starting soilsense",
				zap.String("config", *configPath),
				zap.String("advisor", gen.Name()),
				zap.String("database", cfg.Database.Driver),
			)
			err = api.New(cfg.Listen, svc, ret, mon, logger).ListenAndServe(ctx)
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", true, "reload the cleanup policy when the config file changes")
	return cmd
}

// knownModels lists the model tags reported with zero counts before any traffic.
func knownModels(gen advisor.Generator) []string {
	if gen.Name() == models.ModelRuleBased {
		return []string{models.ModelRuleBased}
	}
	return []string{models.ModelRuleBased, gen.Name()}
}
