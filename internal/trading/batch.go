package trading

import (
	"context"
	"sort"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/iter"

	apperrors "nse-backtester/internal/errors"
	"nse-backtester/internal/metrics"
	"nse-backtester/internal/models"
	"nse-backtester/internal/strategy"
)

// BarLoader supplies the ordered bars for one symbol.
type BarLoader interface {
	LoadBars(ctx context.Context, symbol string) ([]models.MarketBar, error)
}

// BarLoaderFunc adapts a function to BarLoader.
type BarLoaderFunc func(ctx context.Context, symbol string) ([]models.MarketBar, error)

// LoadBars calls f.
func (f BarLoaderFunc) LoadBars(ctx context.Context, symbol string) ([]models.MarketBar, error) {
	return f(ctx, symbol)
}

// BatchRequest describes a multi-symbol run.
type BatchRequest struct {
	Symbols    []string
	Strategies []string
	Mode       models.RunMode
	Params     strategy.Params
	Engine     EngineConfig
	// Workers bounds concurrent symbols; zero means GOMAXPROCS.
	Workers int
}

// SymbolResult is the outcome of one (symbol, strategy) run.
type SymbolResult struct {
	Symbol   string
	Strategy string
	Summary  models.Summary
	Err      error
}

// RunBatch runs an independent engine per symbol and strategy. Symbols run in
// parallel; results keep the order of Symbols, then Strategies. A symbol whose
// bars fail to load, or a strategy that fails to build, yields a result with
// Err set and does not stop the batch.
func RunBatch(ctx context.Context, req BatchRequest, loader BarLoader) []SymbolResult {
	logger := zerolog.Nop()
	if req.Engine.Logger != nil {
		logger = *req.Engine.Logger
	}

	mapper := iter.Mapper[string, []SymbolResult]{MaxGoroutines: req.Workers}
	perSymbol := mapper.Map(req.Symbols, func(symbol *string) []SymbolResult {
		return runSymbol(ctx, req, loader, *symbol, logger)
	})

	var out []SymbolResult
	for _, rs := range perSymbol {
		out = append(out, rs...)
	}
	return out
}

func runSymbol(ctx context.Context, req BatchRequest, loader BarLoader, symbol string, logger zerolog.Logger) []SymbolResult {
	results := make([]SymbolResult, 0, len(req.Strategies))
	fail := func(err error) []SymbolResult {
		for _, name := range req.Strategies {
			results = append(results, SymbolResult{Symbol: symbol, Strategy: name, Err: err})
			metrics.RunsTotal.WithLabelValues(name, string(req.Mode), "error").Inc()
		}
		return results
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	bars, err := loader.LoadBars(ctx, symbol)
	if err != nil {
		logger.Warn().Err(err).Str("symbol", symbol).Msg("Skipping symbol: bars unavailable")
		return fail(err)
	}
	if len(bars) == 0 {
		err := apperrors.NewDataError("bars", symbol, "no bars", apperrors.ErrDataNotFound)
		logger.Warn().Str("symbol", symbol).Msg("Skipping symbol: no bars")
		return fail(err)
	}

	for _, name := range req.Strategies {
		res := SymbolResult{Symbol: symbol, Strategy: name}

		strat, err := strategy.Build(name, symbol, req.Params)
		if err == nil {
			var engine *Engine
			engine, err = NewEngine(strat, req.Mode, req.Engine)
			if err == nil {
				res.Strategy = strat.Name()
				res.Summary = engine.Run(bars)
			}
		}
		if err != nil {
			res.Err = err
			metrics.RunsTotal.WithLabelValues(name, string(req.Mode), "error").Inc()
			logger.Error().Err(err).Str("symbol", symbol).Str("strategy", name).Msg("Run failed")
		}
		results = append(results, res)
	}
	return results
}

// CollectSignals gathers the signals of successful results.
func CollectSignals(results []SymbolResult) []models.Signal {
	var out []models.Signal
	for _, r := range results {
		if r.Err == nil {
			out = append(out, r.Summary.Signals...)
		}
	}
	return out
}

// RankSignals orders signals by confidence (highest first), then timestamp,
// then symbol. The input is sorted in place and returned.
func RankSignals(signals []models.Signal) []models.Signal {
	sort.SliceStable(signals, func(i, j int) bool {
		a, b := signals[i], signals[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.Symbol < b.Symbol
	})
	return signals
}

// LastSignals keeps only each (symbol, strategy) pair's most recent signal,
// as shown on a watchlist.
func LastSignals(signals []models.Signal) []models.Signal {
	type key struct{ symbol, strategy string }
	latest := make(map[key]int)
	var order []key
	for i, s := range signals {
		k := key{s.Symbol, s.Strategy}
		if _, seen := latest[k]; !seen {
			order = append(order, k)
		}
		latest[k] = i
	}
	out := make([]models.Signal, 0, len(order))
	for _, k := range order {
		out = append(out, signals[latest[k]])
	}
	return out
}
