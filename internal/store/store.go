// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"nse-backtester/internal/models"
)

// DataStore defines the interface for data persistence.
type DataStore interface {
	// Bars
	SaveBars(ctx context.Context, interval string, bars []models.MarketBar) error
	GetBars(ctx context.Context, symbol, interval string, from, to time.Time) ([]models.MarketBar, error)
	LatestBars(ctx context.Context, symbol, interval string, limit int) ([]models.MarketBar, error)
	GetBarsFreshness(ctx context.Context, symbol, interval string) (time.Time, error)

	// Backtest runs
	SaveRun(ctx context.Context, run *Run) error
	GetRuns(ctx context.Context, filter RunFilter) ([]Run, error)
	GetRunTrades(ctx context.Context, runID string) ([]models.TradeRecord, error)

	// Scans
	SaveSignals(ctx context.Context, signals []models.Signal) (string, error)
	LatestSignals(ctx context.Context) (*Scan, error)

	// Lifecycle
	Close() error
}

// Run is a persisted backtest result.
type Run struct {
	ID             string
	CreatedAt      time.Time
	Symbol         string
	Strategy       string
	Mode           models.RunMode
	InitialCapital float64
	FinalEquity    float64
	RealizedPnL    float64
	NumTrades      int
	WinRate        float64
	NumSignals     int
	MaxDrawdown    float64
	Trades         []models.TradeRecord
}

// RunFromSummary builds a Run from an engine summary. ID and CreatedAt are
// assigned by SaveRun when empty.
func RunFromSummary(s models.Summary, initialCapital, maxDrawdown float64) *Run {
	return &Run{
		Symbol:         s.Symbol,
		Strategy:       s.Strategy,
		Mode:           s.Mode,
		InitialCapital: initialCapital,
		FinalEquity:    s.FinalEquity,
		RealizedPnL:    s.RealizedPnL,
		NumTrades:      s.NumTrades,
		WinRate:        s.WinRate,
		NumSignals:     s.NumSignals,
		MaxDrawdown:    maxDrawdown,
		Trades:         s.Trades,
	}
}

// RunFilter represents filters for querying runs.
type RunFilter struct {
	Symbol   string
	Strategy string
	Since    time.Time
	Limit    int
}

// Scan is one saved batch of ranked signals.
type Scan struct {
	ID        string
	CreatedAt time.Time
	Signals   []models.Signal
}
