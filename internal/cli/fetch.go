package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"

	"nse-backtester/internal/data"
	apperrors "nse-backtester/internal/errors"
	"nse-backtester/internal/logging"
	"nse-backtester/internal/metrics"
	"nse-backtester/internal/models"
	"nse-backtester/internal/performance"
	"nse-backtester/internal/resilience"
	"nse-backtester/pkg/utils"
)

// yahooBaseURL is the chart endpoint used by fetch.
var yahooBaseURL = data.DefaultYahooBaseURL

// storeBatchSize is how many bars go into one store transaction.
const storeBatchSize = 1000

func addDataCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newFetchCmd(app))
	rootCmd.AddCommand(newScanCmd(app))
	rootCmd.AddCommand(newRunsCmd(app))
}

type fetchOptions struct {
	tickers  []string
	interval string
	period   string
	maxAge   time.Duration
	// out overrides the cache path; only valid for a single ticker.
	out     string
	workers int
}

// fetchTally counts ticker outcomes. Failures maps ticker to error text.
type fetchTally struct {
	OK       int               `json:"ok"`
	Failed   int               `json:"fail"`
	Skipped  int               `json:"skipped"`
	Failures map[string]string `json:"failures,omitempty"`
	CacheDir string            `json:"cache_dir"`
}

func newFetchCmd(app *App) *cobra.Command {
	var (
		opts     fetchOptions
		universe string
	)
	cmd := &cobra.Command{
		Use:   "fetch [TICKER...]",
		Short: "Download intraday bars from Yahoo Finance into the cache",
		Long: `Download intraday bars into <cache_dir>/<ticker>_<interval>.csv and the
SQLite store. Tickers without an exchange suffix are fetched from NSE (.NS).
With no tickers, every ticker in the universe file is fetched.`,
		Example: `  trader fetch INFY.NS TCS.NS
  trader fetch --universe universe/nifty50.txt --period 5d
  trader fetch RELIANCE --out datasets/RELIANCE_5m.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			cfg := app.Config

			if !cmd.Flags().Changed("interval") {
				opts.interval = cfg.Data.Interval
			}
			if !cmd.Flags().Changed("period") {
				opts.period = cfg.Data.Period
			}
			if !cmd.Flags().Changed("max-age") {
				opts.maxAge = cfg.Data.MaxAge
			}

			opts.tickers = args
			if len(opts.tickers) == 0 {
				if universe == "" {
					universe = cfg.Data.Universe
				}
				tickers, err := data.LoadUniverse(universe)
				if err != nil {
					return err
				}
				opts.tickers = tickers
			}
			if opts.out != "" && len(opts.tickers) != 1 {
				return fmt.Errorf("--out needs exactly one ticker, got %d", len(opts.tickers))
			}

			tally, err := app.fetchTickers(cmd.Context(), opts, func(done, total int, ticker string) {
				output.Progress(done, total, "Fetching")
			})
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(tally)
			}
			for _, t := range sortedKeys(tally.Failures) {
				output.Error("[FAIL] %s: %s", t, tally.Failures[t])
			}
			output.Println()
			output.Printf("DONE: ok=%d fail=%d skipped=%d cache_dir=%s\n", tally.OK, tally.Failed, tally.Skipped, tally.CacheDir)
			if tally.OK == 0 && tally.Failed > 0 {
				return fmt.Errorf("all %d tickers failed", tally.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&universe, "universe", "u", "", "universe file (default from config)")
	cmd.Flags().StringVar(&opts.interval, "interval", "5m", "bar interval")
	cmd.Flags().StringVar(&opts.period, "period", "5d", "lookback period")
	cmd.Flags().DurationVar(&opts.maxAge, "max-age", 0, "skip tickers whose stored bars are newer than this")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "output CSV for a single ticker")
	cmd.Flags().IntVar(&opts.workers, "workers", 4, "concurrent downloads")
	return cmd
}

// yahooTicker adds the NSE suffix to bare symbols.
func yahooTicker(s string) string {
	t := strings.ToUpper(strings.TrimSpace(s))
	if strings.ContainsAny(t, ".^=") {
		return t
	}
	return t + ".NS"
}

// fetchTickers downloads each ticker, writing the CSV cache and the store.
// A failing ticker is counted and does not stop the others; once the source
// fails repeatedly the remaining tickers fail fast. The returned error is
// only set when ctx ends.
func (a *App) fetchTickers(ctx context.Context, opts fetchOptions, progress func(done, total int, ticker string)) (fetchTally, error) {
	cfg := a.Config
	logger := logging.WithOperation(a.Logger, "fetch")
	loc, err := time.LoadLocation(cfg.Session.Timezone)
	if err != nil {
		loc = utils.IndiaLocation
	}

	fetcher := data.NewYahooFetcher(logger)
	fetcher.BaseURL = yahooBaseURL
	fetcher.Location = loc

	limiter := performance.NewRateLimiter(cfg.Data.FetchRate, 1)
	breakerCfg := resilience.DefaultConfig()
	// A ticker without data means the source answered.
	breakerCfg.IsFailure = func(err error) bool {
		return !errors.Is(err, apperrors.ErrDataNotFound)
	}
	breakerCfg.OnStateChange = func(name string, from, to resilience.State) {
		logger.Warn().Str("source", name).Str("from", string(from)).Str("to", string(to)).Msg("Circuit state changed")
	}
	breaker := resilience.New("yahoo", breakerCfg)
	st := a.optionalStore()

	var batcher *performance.BatchProcessor[models.MarketBar]
	if st != nil {
		batcher = performance.NewBatchProcessor(storeBatchSize, func(bars []models.MarketBar) error {
			return st.SaveBars(ctx, opts.interval, bars)
		})
	}

	var (
		mu    sync.Mutex
		done  int
		tally = fetchTally{CacheDir: cfg.Data.CacheDir, Failures: map[string]string{}}
	)
	record := func(ticker, result string, err error) {
		metrics.FetchesTotal.WithLabelValues(result).Inc()
		mu.Lock()
		defer mu.Unlock()
		switch result {
		case "ok":
			tally.OK++
		case "skipped":
			tally.Skipped++
		default:
			tally.Failed++
			tally.Failures[ticker] = err.Error()
		}
		done++
		if progress != nil {
			progress(done, len(opts.tickers), ticker)
		}
	}

	workers := opts.workers
	if workers < 1 {
		workers = 1
	}
	p := pool.New().WithMaxGoroutines(workers)
	for _, raw := range opts.tickers {
		ticker := yahooTicker(raw)
		p.Go(func() {
			tlog := logging.WithSymbol(logger, ticker)
			symbol := data.SymbolFromTicker(ticker)

			if st != nil && opts.maxAge > 0 {
				latest, err := st.GetBarsFreshness(ctx, symbol, opts.interval)
				if err == nil && !latest.IsZero() && time.Since(latest) < opts.maxAge {
					tlog.Debug().Time("latest", latest).Msg("Bars fresh, skipping")
					record(ticker, "skipped", nil)
					return
				}
			}

			if err := limiter.Wait(ctx); err != nil {
				record(ticker, "fail", err)
				return
			}
			bars, err := resilience.Do(breaker, func() ([]models.MarketBar, error) {
				return fetcher.Fetch(ctx, ticker, opts.interval, opts.period)
			})
			if err != nil {
				tlog.Warn().Err(err).Msg("Fetch failed")
				record(ticker, "fail", err)
				return
			}

			path := opts.out
			if path == "" {
				path, err = data.CachePath(cfg.Data.CacheDir, ticker, opts.interval)
				if err != nil {
					record(ticker, "fail", err)
					return
				}
			}
			if err := data.SaveCSV(path, bars, loc); err != nil {
				record(ticker, "fail", err)
				return
			}

			if batcher != nil {
				if err := batcher.Add(bars...); err != nil {
					tlog.Warn().Err(err).Msg("Failed to store bars")
				}
			}
			tlog.Info().Int("rows", len(bars)).Str("path", path).Msg("Saved bars")
			record(ticker, "ok", nil)
		})
	}
	p.Wait()

	if batcher != nil {
		if err := batcher.Flush(); err != nil {
			logger.Warn().Err(err).Msg("Failed to store bars")
		}
	}
	return tally, ctx.Err()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
