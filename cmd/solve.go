package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sitecore/dispatchcore/app"
	"github.com/sitecore/dispatchcore/config"
	"github.com/sitecore/dispatchcore/core/dispatch"
)

var solveCmd = &cobra.Command{
	Use:   "solve <request.json>",
	Short: "Run the dispatch solver against a request file and print the result as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runSolve,
}

// noForecastFetcher rejects requests that omit pv_forecast_kw, since the
// CLI has no live forecast collaborator to delegate to.
type noForecastFetcher struct{}

func (noForecastFetcher) FetchPV(siteID string, t, resolutionMinutes int) ([]float64, error) {
	return nil, fmt.Errorf("no forecast source configured; pv_forecast_kw is required")
}

func runSolve(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read request: %w", err)
	}
	var req dispatch.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}

	svc, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("init service: %w", err)
	}
	defer func() { _ = svc.Close() }()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	if cfg.MetricsAddr != "" {
		go func() {
			if err := svc.StartMetricsServer(ctx, cfg.MetricsAddr); err != nil {
				fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
			}
		}()
	}

	res, err := svc.Solve(ctx, req, noForecastFetcher{})
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
