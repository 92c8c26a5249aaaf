package cli

import (
	"context"
	"errors"
	"strings"
	"time"

	"nse-backtester/internal/data"
	apperrors "nse-backtester/internal/errors"
	"nse-backtester/internal/models"
	"nse-backtester/internal/store"
	"nse-backtester/internal/strategy"
)

// barSource loads bars for a symbol from an explicit CSV file, then the CSV
// cache, then the store.
type barSource struct {
	csvPath  string
	cacheDir string
	interval string
	loc      *time.Location
	store    store.DataStore
}

func (a *App) barSource(csvPath string, loc *time.Location) barSource {
	src := barSource{
		csvPath:  csvPath,
		cacheDir: a.Config.Data.CacheDir,
		interval: a.Config.Data.Interval,
		loc:      loc,
	}
	if csvPath == "" {
		src.store = a.optionalStore()
	}
	return src
}

// LoadBars implements trading.BarLoader.
func (b barSource) LoadBars(ctx context.Context, symbol string) ([]models.MarketBar, error) {
	if b.csvPath != "" {
		return data.LoadCSV(b.csvPath, symbol, b.loc)
	}

	path, err := data.FindCached(b.cacheDir, symbol, b.interval)
	if err == nil {
		return data.LoadCSV(path, symbol, b.loc)
	}
	if !errors.Is(err, apperrors.ErrDataNotFound) || b.store == nil {
		return nil, err
	}

	bars, serr := b.store.GetBars(ctx, symbol, b.interval, time.Time{}, time.Now())
	if serr != nil {
		return nil, apperrors.NewDataError("bars", symbol, "load from store", serr)
	}
	if len(bars) == 0 {
		return nil, err
	}
	return bars, nil
}

// strategyNames expands "all" to every strategy and canonicalizes aliases.
func strategyNames(name string) ([]string, error) {
	if strings.EqualFold(strings.TrimSpace(name), "all") {
		return strategy.Names(), nil
	}
	c, err := strategy.Canonical(name)
	if err != nil {
		return nil, err
	}
	return []string{c}, nil
}

// universeSymbols reads tickers from path and strips exchange suffixes,
// dropping duplicates.
func universeSymbols(path string) ([]string, error) {
	tickers, err := data.LoadUniverse(path)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(tickers))
	symbols := make([]string, 0, len(tickers))
	for _, t := range tickers {
		s := data.SymbolFromTicker(t)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		symbols = append(symbols, s)
	}
	return symbols, nil
}
