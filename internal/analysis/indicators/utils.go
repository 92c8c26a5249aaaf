// Package indicators provides rolling-window technical indicators over market bars.
package indicators

import (
	"errors"

	"nse-backtester/internal/models"
)

var (
	// ErrInsufficientData is returned when there's not enough data for calculation.
	ErrInsufficientData = errors.New("insufficient data for calculation")
	// ErrInvalidPeriod is returned when the period is invalid.
	ErrInvalidPeriod = errors.New("invalid period")
)

// Indicator is a series indicator: one output value per input bar.
// Values before the indicator has enough history are zero.
type Indicator interface {
	Name() string
	Period() int
	Calculate(bars []models.MarketBar) ([]float64, error)
}

// abs returns the absolute value of a float64.
func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// sum calculates the sum of a slice of float64.
func sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}

// mean calculates the arithmetic mean of a slice of float64.
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return sum(values) / float64(len(values))
}

// trueRange calculates the true range for a bar.
func trueRange(current, previous models.MarketBar) float64 {
	highLow := current.High - current.Low
	highClose := abs(current.High - previous.Close)
	lowClose := abs(current.Low - previous.Close)
	return max(highLow, highClose, lowClose)
}

// TypicalPrice calculates the typical price (HLC/3) for a bar.
func TypicalPrice(b models.MarketBar) float64 {
	return (b.High + b.Low + b.Close) / 3
}

// Closes extracts close prices from bars.
func Closes(bars []models.MarketBar) []float64 {
	prices := make([]float64, len(bars))
	for i, b := range bars {
		prices[i] = b.Close
	}
	return prices
}

// tail returns the last n elements of s, or all of s when shorter.
func tail[T any](s []T, n int) []T {
	if n <= 0 {
		return s[:0]
	}
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
