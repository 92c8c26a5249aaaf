package cli

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"nse-backtester/internal/config"
	"nse-backtester/internal/data"
	apperrors "nse-backtester/internal/errors"
	"nse-backtester/internal/models"
	"nse-backtester/internal/report"
	"nse-backtester/internal/store"
	"nse-backtester/internal/trading"
	"nse-backtester/pkg/utils"
)

func addRunCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newSignalCmd(app))
	rootCmd.AddCommand(newBacktestCmd(app))
}

// runFlags are shared by run, signal and backtest. Unset flags fall back to
// the configuration.
type runFlags struct {
	data        string
	symbol      string
	strategy    string
	capital     float64
	mrLookback  int
	mrThreshold float64
	orbMinutes  int

	noReport bool
	noSave   bool
}

func (f *runFlags) register(cmd *cobra.Command, backtest bool) {
	cmd.Flags().StringVar(&f.data, "data", "", "CSV with 5-min bars (default: cache, then store)")
	cmd.Flags().StringVarP(&f.symbol, "symbol", "s", "", "symbol to run, e.g. INFY")
	cmd.Flags().StringVar(&f.strategy, "strategy", "", "strategy name or 'all' (default from config)")
	cmd.Flags().Float64Var(&f.capital, "capital", 100000, "initial capital")
	cmd.Flags().IntVar(&f.mrLookback, "mr-lookback", 20, "mean reversion lookback in bars")
	cmd.Flags().Float64Var(&f.mrThreshold, "mr-threshold", 0.02, "mean reversion deviation threshold")
	cmd.Flags().IntVar(&f.orbMinutes, "orb-minutes", 15, "opening range length in minutes")
	if backtest {
		cmd.Flags().BoolVar(&f.noReport, "no-report", false, "skip the HTML report")
		cmd.Flags().BoolVar(&f.noSave, "no-save", false, "do not record the run in the store")
	}
	_ = cmd.MarkFlagRequired("symbol")
}

// resolve overlays changed flags on a copy of the configuration and
// validates the result.
func (f *runFlags) resolve(cmd *cobra.Command, base *config.Config) (*config.Config, error) {
	cfg := *base
	flags := cmd.Flags()
	if flags.Changed("strategy") {
		cfg.Strategy.Name = f.strategy
	}
	if flags.Changed("capital") {
		cfg.Backtest.InitialCapital = f.capital
	}
	if flags.Changed("mr-lookback") {
		cfg.Strategy.MRLookback = f.mrLookback
	}
	if flags.Changed("mr-threshold") {
		cfg.Strategy.MRThreshold = f.mrThreshold
	}
	if flags.Changed("orb-minutes") {
		cfg.Strategy.ORBMinutes = f.orbMinutes
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func newRunCmd(app *App) *cobra.Command {
	var (
		flags runFlags
		mode  string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a strategy over one symbol in signal or backtest mode",
		Example: `  trader run --mode signal --data datasets/INFY_5m.csv --symbol INFY
  trader run --mode backtest --symbol RELIANCE --strategy orb`,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := models.ParseRunMode(mode)
			if err != nil {
				return err
			}
			switch m {
			case models.ModeSignal:
				return runSignal(cmd, app, &flags)
			case models.ModeBacktest:
				return runBacktest(cmd, app, &flags)
			default:
				return fmt.Errorf("%w: %s", apperrors.ErrModeNotSupported, m)
			}
		},
	}
	flags.register(cmd, true)
	cmd.Flags().StringVar(&mode, "mode", "signal", "run mode: signal or backtest")
	return cmd
}

func newSignalCmd(app *App) *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "signal",
		Short: "Generate signals for one symbol and save a watchlist",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSignal(cmd, app, &flags)
		},
	}
	flags.register(cmd, false)
	return cmd
}

func newBacktestCmd(app *App) *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Backtest one symbol and write an HTML report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBacktest(cmd, app, &flags)
		},
	}
	flags.register(cmd, true)
	return cmd
}

// runSymbol runs every requested strategy over one symbol. Any per-strategy
// failure fails the command.
func runSymbol(cmd *cobra.Command, app *App, f *runFlags, mode models.RunMode) (*config.Config, []trading.SymbolResult, error) {
	cfg, err := f.resolve(cmd, app.Config)
	if err != nil {
		return nil, nil, err
	}
	names, err := strategyNames(cfg.Strategy.Name)
	if err != nil {
		return nil, nil, err
	}
	params, err := cfg.StrategyParams()
	if err != nil {
		return nil, nil, err
	}
	engine, err := cfg.EngineConfig()
	if err != nil {
		return nil, nil, err
	}
	logger := app.Logger.With().Str("mode", string(mode)).Logger()
	engine.Logger = &logger

	symbol := data.SymbolFromTicker(f.symbol)
	results := trading.RunBatch(cmd.Context(), trading.BatchRequest{
		Symbols:    []string{symbol},
		Strategies: names,
		Mode:       mode,
		Params:     params,
		Engine:     engine,
	}, app.barSource(f.data, params.Session.Location))

	for _, r := range results {
		if r.Err != nil {
			return nil, nil, r.Err
		}
	}
	return cfg, results, nil
}

func runSignal(cmd *cobra.Command, app *App, f *runFlags) error {
	output := NewOutput(cmd)
	cfg, results, err := runSymbol(cmd, app, f, models.ModeSignal)
	if err != nil {
		return err
	}

	signals := trading.CollectSignals(results)
	path, err := report.SaveWatchlist(signals, cfg.Data.ReportsDir)
	if err != nil {
		return err
	}
	tablePath, err := report.SaveWatchlistTable(signals, cfg.Data.ReportsDir)
	if err != nil {
		return err
	}

	if output.IsJSON() {
		return output.JSON(map[string]interface{}{
			"watchlist": path,
			"table":     tablePath,
			"count":     len(signals),
			"signals":   signals,
		})
	}

	if len(signals) > 0 {
		renderSignals(output, lastN(signals, 10))
	}
	output.Println()
	output.Success("Saved watchlist: %s", path)
	output.Printf("Signals: %d\n", len(signals))
	return nil
}

// backtestResult is the JSON shape of one backtest.
type backtestResult struct {
	Symbol      string  `json:"symbol"`
	Strategy    string  `json:"strategy"`
	FinalEquity float64 `json:"final_equity"`
	RealizedPnL float64 `json:"realized_pnl"`
	NumTrades   int     `json:"num_trades"`
	WinRate     float64 `json:"win_rate"`
	MaxDrawdown float64 `json:"max_drawdown"`
	Report      string  `json:"report,omitempty"`
	RunID       string  `json:"run_id,omitempty"`
}

func runBacktest(cmd *cobra.Command, app *App, f *runFlags) error {
	output := NewOutput(cmd)
	cfg, results, err := runSymbol(cmd, app, f, models.ModeBacktest)
	if err != nil {
		return err
	}

	var st store.DataStore
	if !f.noSave {
		st = app.optionalStore()
	}

	out := make([]backtestResult, 0, len(results))
	for _, r := range results {
		s := r.Summary
		res := backtestResult{
			Symbol:      s.Symbol,
			Strategy:    s.Strategy,
			FinalEquity: s.FinalEquity,
			RealizedPnL: s.RealizedPnL,
			NumTrades:   s.NumTrades,
			WinRate:     s.WinRate,
			MaxDrawdown: report.MaxDrawdown(s.EquityCurve),
		}

		if !f.noReport {
			res.Report = reportPath(cfg.Data.ReportsDir, s, time.Now())
			if err := report.WriteHTML(s, res.Report); err != nil {
				return err
			}
		}

		if st != nil {
			run := store.RunFromSummary(s, cfg.Backtest.InitialCapital, res.MaxDrawdown)
			if err := st.SaveRun(cmd.Context(), run); err != nil {
				app.Logger.Warn().Err(err).Str("symbol", s.Symbol).Msg("Failed to record run")
			} else {
				res.RunID = run.ID
			}
		}
		out = append(out, res)

		if !output.IsJSON() {
			printBacktestSummary(output, s, res)
		}
	}

	if output.IsJSON() {
		return output.JSON(out)
	}
	return nil
}

func printBacktestSummary(output *Output, s models.Summary, res backtestResult) {
	output.Println()
	output.Bold("==== BACKTEST SUMMARY ====")
	output.Printf("Symbol:       %s (%s)\n", s.Symbol, report.StrategyLabel(s.Strategy))
	output.Printf("Final Equity: %s\n", utils.FormatIndianCurrency(s.FinalEquity))
	output.Printf("Realized PnL: %s\n", output.FormatPnL(s.RealizedPnL))
	output.Printf("Trades:       %d\n", s.NumTrades)
	output.Printf("Win Rate:     %.1f%%\n", s.WinRate*100)
	output.Printf("Max Drawdown: %.2f%%\n", res.MaxDrawdown*100)
	if res.Report != "" {
		output.Dim("Report: %s", res.Report)
	}
	if res.RunID != "" {
		output.Dim("Run ID: %s", res.RunID)
	}
}

// reportPath returns <dir>/backtest_<SYMBOL>_<strategy>_<stamp>.html.
func reportPath(dir string, s models.Summary, at time.Time) string {
	name := fmt.Sprintf("backtest_%s_%s_%s.html",
		strings.ToUpper(s.Symbol), s.Strategy, at.In(utils.IndiaLocation).Format("2006-01-02_150405"))
	return filepath.Join(dir, name)
}

func renderSignals(output *Output, signals []models.Signal) {
	table := NewTable(output, "TIME", "SYMBOL", "STRATEGY", "SIDE", "CONF", "ENTRY", "STOP", "TARGET", "REASON")
	for _, s := range signals {
		target := "-"
		if len(s.Targets) > 0 {
			target = fmt.Sprintf("%.2f", s.Targets[0])
		}
		table.AddRow(
			s.Timestamp.Format("01-02 15:04"),
			s.Symbol,
			report.StrategyLabel(s.Strategy),
			output.FormatSide(string(s.Side)),
			fmt.Sprintf("%.0f%%", s.Confidence*100),
			fmt.Sprintf("%.2f", s.Entry),
			fmt.Sprintf("%.2f", s.Stop),
			target,
			s.Reasoning,
		)
	}
	table.Render()
}

func lastN(signals []models.Signal, n int) []models.Signal {
	if len(signals) <= n {
		return signals
	}
	return signals[len(signals)-n:]
}
