package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newMetricsCmd() *cobra.Command {
	var (
		addr  string
		reset bool
	)

	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Print the cache performance report of a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			base := strings.TrimRight(addr, "/")
			if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
				base = "http://" + base
			}

			method, url := http.MethodGet, base+"/api/cache-metrics?format=report"
			if reset {
				method, url = http.MethodDelete, base+"/api/cache-metrics"
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			req, err := http.NewRequestWithContext(ctx, method, url, nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return fmt.Errorf("fetch metrics: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
				return fmt.Errorf("fetch metrics: %s: %s", resp.Status, strings.TrimSpace(string(body)))
			}
			_, err = io.Copy(os.Stdout, resp.Body)
			return err
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "localhost:8080", "server address")
	cmd.Flags().BoolVar(&reset, "reset", false, "reset the counters instead of printing them")
	return cmd
}
