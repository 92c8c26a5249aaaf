// Package models provides domain models for the backtester.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Side represents the side of an order, fill or signal.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the closing side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Sign returns +1 for BUY and -1 for SELL.
func (s Side) Sign() int {
	if s == SideBuy {
		return 1
	}
	return -1
}

// RunMode selects what the engine does with signals.
type RunMode string

const (
	ModeSignal   RunMode = "SIGNAL"
	ModeBacktest RunMode = "BACKTEST"
	// Reserved, not implemented by the engine.
	ModePaper RunMode = "PAPER"
	ModeLive  RunMode = "LIVE"
)

// ParseRunMode parses a run mode name case-insensitively.
func ParseRunMode(s string) (RunMode, error) {
	switch RunMode(strings.ToUpper(strings.TrimSpace(s))) {
	case ModeSignal:
		return ModeSignal, nil
	case ModeBacktest:
		return ModeBacktest, nil
	case ModePaper:
		return ModePaper, nil
	case ModeLive:
		return ModeLive, nil
	}
	return "", fmt.Errorf("unknown run mode: %q", s)
}

// MarketBar represents one OHLCV observation for a symbol.
type MarketBar struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Date returns the bar's calendar date in its own location as YYYY-MM-DD.
func (b MarketBar) Date() string {
	return b.Timestamp.Format(time.DateOnly)
}

// SameDay reports whether two timestamps fall on the same calendar date.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
