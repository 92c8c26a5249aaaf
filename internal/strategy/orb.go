package strategy

import (
	"fmt"
	"math"
	"time"

	"nse-backtester/internal/models"
	"nse-backtester/pkg/utils"
)

// ORB trades the first breakout of the opening range, once per day.
type ORB struct {
	base
	minutes int
	session utils.Session

	day        time.Time
	high       float64
	low        float64
	complete   bool
	entryTaken bool
}

// NewORB creates an opening-range-breakout strategy for symbol.
func NewORB(symbol string, minutes int, session utils.Session) *ORB {
	if minutes <= 0 {
		minutes = 15
	}
	s := &ORB{
		base:    base{symbol: symbol},
		minutes: minutes,
		session: session,
	}
	s.resetDay(time.Time{})
	s.gen = s.generateSignal
	return s
}

func (s *ORB) Name() string {
	return NameORB
}

func (s *ORB) resetDay(day time.Time) {
	s.day = day
	s.high = math.Inf(-1)
	s.low = math.Inf(1)
	s.complete = false
	s.entryTaken = false
}

// Range returns the current opening range and whether it has been frozen.
func (s *ORB) Range() (high, low float64, complete bool) {
	return s.high, s.low, s.complete
}

func (s *ORB) generateSignal() *models.Signal {
	bar := s.last()

	if s.day.IsZero() || !models.SameDay(s.day, bar.Timestamp) {
		s.resetDay(bar.Timestamp)
	}

	if s.entryTaken {
		return nil
	}

	start := s.session.Open.On(bar.Timestamp)
	end := start.Add(time.Duration(s.minutes) * time.Minute)

	if bar.Timestamp.Before(end) {
		// Pre-open bars do not contribute to the range.
		if !bar.Timestamp.Before(start) {
			s.high = math.Max(s.high, bar.High)
			s.low = math.Min(s.low, bar.Low)
		}
		return nil
	}

	s.complete = true

	if math.IsInf(s.high, -1) || math.IsInf(s.low, 1) {
		return nil
	}

	px := bar.Close
	avgVol := s.avgVolume()
	meta := models.SignalMeta{
		ORBHigh:   s.high,
		ORBLow:    s.low,
		ATR:       s.atr(),
		AvgVolume: avgVol,
		AvgValue:  avgVol * px,
	}

	var sig *models.Signal
	switch {
	case px > s.high:
		stop := s.low
		if risk := px - stop; risk > 0 {
			sig = s.signal(bar, models.SideBuy, stop, px+rewardMultiple*risk, meta,
				fmt.Sprintf("ORB Buy: Close %.2f > Range High %.2f", px, s.high))
		}
	case px < s.low:
		stop := s.high
		if risk := stop - px; risk > 0 {
			sig = s.signal(bar, models.SideSell, stop, px-rewardMultiple*risk, meta,
				fmt.Sprintf("ORB Sell: Close %.2f < Range Low %.2f", px, s.low))
		}
	}

	if sig != nil {
		s.entryTaken = true
	}
	return sig
}

func (s *ORB) signal(bar models.MarketBar, side models.Side, stop, target float64, meta models.SignalMeta, reasoning string) *models.Signal {
	return &models.Signal{
		Symbol:     s.symbol,
		Strategy:   s.Name(),
		Timestamp:  bar.Timestamp,
		Side:       side,
		Entry:      bar.Close,
		Stop:       stop,
		Targets:    []float64{target},
		Confidence: 0.7,
		Reasoning:  reasoning,
		Meta:       meta,
	}
}
