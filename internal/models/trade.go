package models

import "time"

// TradeRecord represents a completed round trip.
type TradeRecord struct {
	Symbol    string    `json:"symbol"`
	Entry     float64   `json:"entry"`
	Exit      float64   `json:"exit"`
	Quantity  int       `json:"qty"`
	Side      Side      `json:"side"`
	Reason    string    `json:"reason"`
	ExitTag   string    `json:"exit_tag"`
	PnLEst    float64   `json:"pnl_est"`
	Fees      float64   `json:"fees"`
	EntryTime time.Time `json:"entry_time"`
	ExitTime  time.Time `json:"exit_time"`
}

// EquityPoint represents equity as of the start of a bar.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
}

// Summary is the result of one engine run.
type Summary struct {
	Symbol        string             `json:"symbol"`
	Strategy      string             `json:"strategy"`
	Mode          RunMode            `json:"mode"`
	FinalEquity   float64            `json:"final_equity"`
	RealizedPnL   float64            `json:"realized_pnl"`
	DailyRealized map[string]float64 `json:"daily_realized"`
	NumTrades     int                `json:"num_trades"`
	WinRate       float64            `json:"win_rate"`
	Trades        []TradeRecord      `json:"trades"`
	NumSignals    int                `json:"num_signals"`
	Signals       []Signal           `json:"-"`
	EquityCurve   []EquityPoint      `json:"equity_curve"`
}
