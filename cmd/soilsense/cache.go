package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/soilsense/soilsense/pkg/config"
	"github.com/soilsense/soilsense/pkg/models"
	"github.com/soilsense/soilsense/pkg/monitor"
	"github.com/soilsense/soilsense/pkg/retention"
	"github.com/soilsense/soilsense/pkg/store"
)

// openRetention builds a stopped retention manager over the configured store.
func openRetention(configPath string) (*retention.Manager, func(), error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	st, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("init store: %w", err)
	}
	m, err := retention.New(st, monitor.New(cfg.Monitor.MaxEvents), cfg.Cleanup.CleanupConfig, nil, models.ModelRuleBased)
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}
	return m, func() { _ = st.Close() }, nil
}

func newCacheCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and prune the suggestion cache",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, closeFn, err := openRetention(*configPath)
			if err != nil {
				return err
			}
			defer closeFn()

			stats, err := m.CacheStats(context.Background())
			if err != nil {
				return err
			}

			fmt.Printf("Entries: %d\nFresh:   %d\nStale:   %d\n\n",
				stats.TotalSuggestions, stats.SuggestionsByAge.Fresh, stats.SuggestionsByAge.Stale)

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MODEL\tENTRIES")
			for model, n := range stats.SuggestionsByModel {
				fmt.Fprintf(w, "%s\t%d\n", model, n)
			}
			if len(stats.SuggestionsByRod) > 0 {
				fmt.Fprintln(w, "\nROD\tENTRIES")
				for _, rc := range stats.SuggestionsByRod {
					fmt.Fprintf(w, "%s\t%d\n", rc.RodID, rc.Count)
				}
			}
			return w.Flush()
		},
	}

	var (
		rodID string
		keep  int
	)
	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired entries and trim rods over the cap",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, closeFn, err := openRetention(*configPath)
			if err != nil {
				return err
			}
			defer closeFn()

			ctx := context.Background()
			if rodID != "" {
				n, err := m.CleanupRod(ctx, rodID, keep)
				if err != nil {
					return err
				}
				fmt.Printf("Deleted %d entries for rod %s.\n", n, rodID)
				return nil
			}

			stats, err := m.RunCleanup(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Expired: %d\nExcess:  %d\nTotal:   %d\nTook:    %s\n",
				stats.ExpiredSuggestions, stats.ExcessSuggestions, stats.TotalDeleted,
				time.Duration(stats.CleanupDurationMs)*time.Millisecond)
			return nil
		},
	}
	cleanupCmd.Flags().StringVar(&rodID, "rod", "", "only trim this rod")
	cleanupCmd.Flags().IntVar(&keep, "keep", -1, "entries to keep for --rod (default: the configured cap)")

	var yes bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every cache entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear the cache without --yes")
			}
			m, closeFn, err := openRetention(*configPath)
			if err != nil {
				return err
			}
			defer closeFn()

			stats, err := m.ClearAll(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("All cache entries cleared (%d deleted).\n", stats.TotalDeleted)
			return nil
		},
	}
	clearCmd.Flags().BoolVar(&yes, "yes", false, "confirm deleting every entry")

	cmd.AddCommand(statsCmd, cleanupCmd, clearCmd)
	return cmd
}
