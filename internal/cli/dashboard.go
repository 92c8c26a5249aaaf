package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"nse-backtester/internal/dashboard"
	"nse-backtester/internal/data"
)

func addDashboardCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newDashboardCmd(app))
}

func newDashboardCmd(app *App) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Serve the watchlist dashboard",
		Long: `Serve the latest watchlist, per-symbol chart data and a refresh button.

Refresh downloads the universe and rescans it with every strategy.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			cfg := app.Config
			if !cmd.Flags().Changed("addr") {
				addr = cfg.Dashboard.Addr
			}

			srv := dashboard.NewServer(dashboard.Config{
				Addr:       addr,
				ReportsDir: cfg.Data.ReportsDir,
				CacheDir:   cfg.Data.CacheDir,
				Interval:   cfg.Data.Interval,
				Store:      app.optionalStore(),
				Refresh:    app.refresh,
				Logger:     app.Logger,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			output.Info("Dashboard running at http://%s", addr)
			output.Dim("Press Ctrl+C to stop")
			return srv.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:5000", "listen address")
	return cmd
}

// refresh fetches the universe and rescans it with every strategy. Fetch
// failures are tolerated; the scan uses whatever data is cached.
func (a *App) refresh(ctx context.Context, progress func(string)) (string, error) {
	cfg := a.Config
	tickers, err := data.LoadUniverse(cfg.Data.Universe)
	if err != nil {
		return "", err
	}

	tally, err := a.fetchTickers(ctx, fetchOptions{
		tickers:  tickers,
		interval: cfg.Data.Interval,
		period:   cfg.Data.Period,
		maxAge:   cfg.Data.MaxAge,
		workers:  4,
	}, func(done, total int, ticker string) {
		progress(fmt.Sprintf("Fetching latest market data... %d/%d", done, total))
	})
	if err != nil {
		return "", err
	}
	a.Logger.Info().Int("ok", tally.OK).Int("fail", tally.Failed).Int("skipped", tally.Skipped).Msg("Refresh fetch done")

	progress("Generating signals...")
	out, err := a.scan(ctx, scanOptions{strategy: "all"})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Signals updated! %d signals", len(out.Signals)), nil
}
