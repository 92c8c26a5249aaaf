package strategy

import (
	"fmt"
	"time"

	"nse-backtester/internal/analysis/indicators"
	"nse-backtester/internal/models"
)

const vwapFallbackRiskPct = 0.005

// VWAPCross trades closes crossing the session VWAP.
type VWAPCross struct {
	base
	day      time.Time
	acc      indicators.VWAPAccumulator
	prevVWAP float64
	hasPrev  bool
}

// NewVWAPCross creates a VWAP crossover strategy for symbol.
func NewVWAPCross(symbol string) *VWAPCross {
	s := &VWAPCross{base: base{symbol: symbol}}
	s.gen = s.generateSignal
	return s
}

func (s *VWAPCross) Name() string {
	return NameVWAP
}

func (s *VWAPCross) generateSignal() *models.Signal {
	bar := s.last()

	if s.day.IsZero() || !models.SameDay(s.day, bar.Timestamp) {
		s.day = bar.Timestamp
		s.acc.Reset()
		s.hasPrev = false
	}

	s.acc.Add(bar)
	vwap, ok := s.acc.Value()
	if !ok {
		return nil
	}

	if len(s.history) < 2 || !s.hasPrev {
		s.setPrev(vwap)
		return nil
	}

	prev := s.history[len(s.history)-2]
	if !models.SameDay(prev.Timestamp, s.day) {
		s.setPrev(vwap)
		return nil
	}

	px := bar.Close
	atr := s.atr()
	avgVol := s.avgVolume()
	meta := models.SignalMeta{
		VWAP:      vwap,
		ATR:       atr,
		AvgVolume: avgVol,
		AvgValue:  avgVol * px,
	}

	risk := px * vwapFallbackRiskPct
	if atr > 0 {
		risk = atr
	}

	var sig *models.Signal
	switch {
	case prev.Close < s.prevVWAP && px > vwap:
		sig = &models.Signal{
			Side:      models.SideBuy,
			Stop:      px - risk,
			Targets:   []float64{px + rewardMultiple*risk},
			Reasoning: fmt.Sprintf("VWAP Reclaim: Close %.2f crossed above VWAP %.2f", px, vwap),
		}
	case prev.Close > s.prevVWAP && px < vwap:
		sig = &models.Signal{
			Side:      models.SideSell,
			Stop:      px + risk,
			Targets:   []float64{px - rewardMultiple*risk},
			Reasoning: fmt.Sprintf("VWAP Breakdown: Close %.2f crossed below VWAP %.2f", px, vwap),
		}
	}

	s.setPrev(vwap)

	if sig == nil {
		return nil
	}
	sig.Symbol = s.symbol
	sig.Strategy = s.Name()
	sig.Timestamp = bar.Timestamp
	sig.Entry = px
	sig.Confidence = 0.6
	sig.Meta = meta
	return sig
}

func (s *VWAPCross) setPrev(vwap float64) {
	s.prevVWAP = vwap
	s.hasPrev = true
}
