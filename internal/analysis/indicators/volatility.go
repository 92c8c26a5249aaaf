package indicators

import (
	"fmt"

	"nse-backtester/internal/models"
)

// TrailingATR returns the average true range over the last period bars.
// Each true range needs the previous close, so the window holds at most
// len(bars)-1 ranges; shorter histories average what is available.
// Fewer than two bars yield 0.
func TrailingATR(bars []models.MarketBar, period int) float64 {
	if period <= 0 || len(bars) < 2 {
		return 0
	}
	window := tail(bars, period+1)
	var total float64
	for i := 1; i < len(window); i++ {
		total += trueRange(window[i], window[i-1])
	}
	return total / float64(len(window)-1)
}

// ATR calculates the Average True Range series with Wilder smoothing.
type ATR struct {
	period int
}

// NewATR creates a new ATR indicator.
func NewATR(period int) *ATR {
	return &ATR{period: period}
}

func (a *ATR) Name() string {
	return fmt.Sprintf("ATR_%d", a.period)
}

func (a *ATR) Period() int {
	return a.period
}

func (a *ATR) Calculate(bars []models.MarketBar) ([]float64, error) {
	if a.period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(bars) < a.period+1 {
		return nil, ErrInsufficientData
	}

	n := len(bars)
	result := make([]float64, n)
	tr := make([]float64, n)

	// First TR is just high - low
	tr[0] = bars[0].High - bars[0].Low

	for i := 1; i < n; i++ {
		tr[i] = trueRange(bars[i], bars[i-1])
	}

	// First ATR is SMA of TR
	result[a.period-1] = mean(tr[:a.period])

	for i := a.period; i < n; i++ {
		result[i] = (result[i-1]*float64(a.period-1) + tr[i]) / float64(a.period)
	}

	return result, nil
}
