package indicators

import (
	"nse-backtester/internal/models"
)

// AverageVolume returns the mean volume of the last period bars
// (or of all bars when fewer are available). Empty input yields 0.
func AverageVolume(bars []models.MarketBar, period int) float64 {
	if period <= 0 || len(bars) == 0 {
		return 0
	}
	window := tail(bars, period)
	var total float64
	for _, b := range window {
		total += b.Volume
	}
	return total / float64(len(window))
}

// VWAPAccumulator accumulates typical-price volume for an intraday VWAP.
type VWAPAccumulator struct {
	cumPV  float64
	cumVol float64
}

// Add folds one bar into the running totals.
func (v *VWAPAccumulator) Add(b models.MarketBar) {
	v.cumPV += TypicalPrice(b) * b.Volume
	v.cumVol += b.Volume
}

// Reset clears the running totals.
func (v *VWAPAccumulator) Reset() {
	v.cumPV = 0
	v.cumVol = 0
}

// Value returns the current VWAP; ok is false while cumulative volume is zero.
func (v *VWAPAccumulator) Value() (vwap float64, ok bool) {
	if v.cumVol == 0 {
		return 0, false
	}
	return v.cumPV / v.cumVol, true
}

// VWAP calculates a session-anchored Volume Weighted Average Price series.
// Accumulation restarts on the first bar of each calendar day.
type VWAP struct{}

// NewVWAP creates a new VWAP indicator.
func NewVWAP() *VWAP {
	return &VWAP{}
}

func (v *VWAP) Name() string {
	return "VWAP"
}

func (v *VWAP) Period() int {
	return 1
}

func (v *VWAP) Calculate(bars []models.MarketBar) ([]float64, error) {
	if len(bars) == 0 {
		return nil, ErrInsufficientData
	}

	result := make([]float64, len(bars))
	var acc VWAPAccumulator
	for i, b := range bars {
		if i > 0 && !models.SameDay(bars[i-1].Timestamp, b.Timestamp) {
			acc.Reset()
		}
		acc.Add(b)
		result[i], _ = acc.Value()
	}

	return result, nil
}
