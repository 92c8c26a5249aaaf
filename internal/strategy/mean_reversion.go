package strategy

import (
	"fmt"
	"math"

	"nse-backtester/internal/analysis/indicators"
	"nse-backtester/internal/models"
)

// MeanReversion fades closes that stretch too far from their simple moving average.
type MeanReversion struct {
	base
	lookback  int
	threshold float64
}

// NewMeanReversion creates a mean-reversion strategy for symbol.
func NewMeanReversion(symbol string, lookback int, threshold float64) *MeanReversion {
	if lookback <= 0 {
		lookback = 20
	}
	s := &MeanReversion{
		base:      base{symbol: symbol},
		lookback:  lookback,
		threshold: threshold,
	}
	s.gen = s.generateSignal
	return s
}

func (s *MeanReversion) Name() string {
	return NameMeanReversion
}

func (s *MeanReversion) generateSignal() *models.Signal {
	if len(s.history) < s.lookback+1 {
		return nil
	}

	sma, err := indicators.LastSMA(s.history, s.lookback)
	if err != nil || sma == 0 {
		return nil
	}
	bar := s.last()
	px := bar.Close
	dev := (px - sma) / sma

	var side models.Side
	var stop float64
	var reasoning string
	switch {
	case dev > s.threshold:
		side = models.SideSell
		stop = px * 1.01
		reasoning = fmt.Sprintf("Mean-reversion SELL: close %.2f is %.2f%% above %dSMA %.2f", px, dev*100, s.lookback, sma)
	case dev < -s.threshold:
		side = models.SideBuy
		stop = px * 0.99
		reasoning = fmt.Sprintf("Mean-reversion BUY: close %.2f is %.2f%% below %dSMA %.2f", px, math.Abs(dev)*100, s.lookback, sma)
	default:
		return nil
	}

	avgVol := s.avgVolume()
	return &models.Signal{
		Symbol:     s.symbol,
		Strategy:   s.Name(),
		Timestamp:  bar.Timestamp,
		Side:       side,
		Entry:      px,
		Stop:       stop,
		Targets:    []float64{sma},
		Confidence: math.Min(math.Abs(dev)*10, 1.0),
		Reasoning:  reasoning,
		Meta: models.SignalMeta{
			SMA:       sma,
			Deviation: dev,
			ATR:       s.atr(),
			AvgVolume: avgVol,
			AvgValue:  avgVol * px,
		},
	}
}
