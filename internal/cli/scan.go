package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"nse-backtester/internal/logging"
	"nse-backtester/internal/models"
	"nse-backtester/internal/report"
	"nse-backtester/internal/trading"
)

type scanOptions struct {
	universe string
	strategy string
	workers  int
	// allSignals keeps every signal instead of the latest per symbol and strategy.
	allSignals bool
}

// scanOutcome is the result of one universe scan.
type scanOutcome struct {
	Symbols   int               `json:"symbols"`
	Signals   []models.Signal   `json:"signals"`
	Failures  map[string]string `json:"failures,omitempty"`
	Watchlist string            `json:"watchlist"`
	Table     string            `json:"table"`
	ScanID    string            `json:"scan_id,omitempty"`
}

func newScanCmd(app *App) *cobra.Command {
	var opts scanOptions
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run strategies over a universe and save a ranked watchlist",
		Example: `  trader scan
  trader scan --universe universe/nifty50.txt --strategy orb`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			out, err := app.scan(cmd.Context(), opts)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(out)
			}
			for _, key := range sortedKeys(out.Failures) {
				output.Warning("[SKIP] %s: %s", key, out.Failures[key])
			}
			if len(out.Signals) > 0 {
				renderSignals(output, out.Signals)
			}
			output.Println()
			output.Success("Saved watchlist: %s", out.Watchlist)
			output.Printf("Signals: %d across %d symbols\n", len(out.Signals), out.Symbols)
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.universe, "universe", "u", "", "universe file (default from config)")
	cmd.Flags().StringVar(&opts.strategy, "strategy", "all", "strategy name or 'all'")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "concurrent symbols (default: GOMAXPROCS)")
	cmd.Flags().BoolVar(&opts.allSignals, "all-signals", false, "keep every signal, not only the latest per symbol")
	return cmd
}

// scan runs SIGNAL mode over the universe, ranks the signals, writes the
// watchlist files and records the scan in the store. Symbols without data
// are reported in Failures and skipped.
func (a *App) scan(ctx context.Context, opts scanOptions) (scanOutcome, error) {
	cfg := a.Config
	logger := logging.WithOperation(a.Logger, "scan")

	universe := opts.universe
	if universe == "" {
		universe = cfg.Data.Universe
	}
	symbols, err := universeSymbols(universe)
	if err != nil {
		return scanOutcome{}, err
	}
	if len(symbols) == 0 {
		return scanOutcome{}, fmt.Errorf("universe %s is empty", universe)
	}

	name := opts.strategy
	if name == "" {
		name = cfg.Strategy.Name
	}
	names, err := strategyNames(name)
	if err != nil {
		return scanOutcome{}, err
	}
	params, err := cfg.StrategyParams()
	if err != nil {
		return scanOutcome{}, err
	}
	engine, err := cfg.EngineConfig()
	if err != nil {
		return scanOutcome{}, err
	}
	engine.Logger = &logger

	results := trading.RunBatch(ctx, trading.BatchRequest{
		Symbols:    symbols,
		Strategies: names,
		Mode:       models.ModeSignal,
		Params:     params,
		Engine:     engine,
		Workers:    opts.workers,
	}, a.barSource("", params.Session.Location))
	if err := ctx.Err(); err != nil {
		return scanOutcome{}, err
	}

	out := scanOutcome{Symbols: len(symbols), Failures: map[string]string{}}
	for _, r := range results {
		if r.Err != nil {
			out.Failures[r.Symbol+"/"+r.Strategy] = r.Err.Error()
		}
	}
	if len(out.Failures) == len(results) {
		return out, fmt.Errorf("no symbol in %s could be scanned (%d failures)", universe, len(results))
	}

	signals := trading.CollectSignals(results)
	if !opts.allSignals {
		signals = trading.LastSignals(signals)
	}
	out.Signals = trading.RankSignals(signals)

	if out.Watchlist, err = report.SaveWatchlist(out.Signals, cfg.Data.ReportsDir); err != nil {
		return out, err
	}
	if out.Table, err = report.SaveWatchlistTable(out.Signals, cfg.Data.ReportsDir); err != nil {
		return out, err
	}

	if st := a.optionalStore(); st != nil {
		id, err := st.SaveSignals(ctx, out.Signals)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to record scan")
		} else {
			out.ScanID = id
		}
	}

	logger.Info().
		Int("symbols", len(symbols)).
		Int("signals", len(out.Signals)).
		Int("failures", len(out.Failures)).
		Str("watchlist", out.Watchlist).
		Msg("Scan complete")
	return out, nil
}
