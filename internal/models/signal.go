package models

import "time"

// Signal represents a strategy's recommendation to enter a position.
type Signal struct {
	Symbol     string     `json:"symbol"`
	Strategy   string     `json:"strategy"`
	Timestamp  time.Time  `json:"timestamp"`
	Side       Side       `json:"side"`
	Entry      float64    `json:"entry"`
	Stop       float64    `json:"stop"`
	Targets    []float64  `json:"targets"`
	Confidence float64    `json:"confidence"`
	Reasoning  string     `json:"reasoning"`
	Meta       SignalMeta `json:"meta"`
}

// RiskPerShare returns the absolute distance between entry and stop.
func (s Signal) RiskPerShare() float64 {
	d := s.Entry - s.Stop
	if d < 0 {
		return -d
	}
	return d
}

// SignalMeta carries auxiliary metrics a strategy computed for a signal.
// Fields a strategy does not compute stay zero and are omitted from JSON.
type SignalMeta struct {
	SMA       float64 `json:"sma,omitempty"`
	Deviation float64 `json:"deviation,omitempty"`
	ORBHigh   float64 `json:"orb_high,omitempty"`
	ORBLow    float64 `json:"orb_low,omitempty"`
	VWAP      float64 `json:"vwap,omitempty"`
	ATR       float64 `json:"atr,omitempty"`
	AvgVolume float64 `json:"avg_volume,omitempty"`
	AvgValue  float64 `json:"avg_value,omitempty"`
}
