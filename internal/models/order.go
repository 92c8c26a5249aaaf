package models

// Order tags used by the engine.
const (
	TagEntry        = "entry"
	TagStop         = "stop"
	TagEODSquareOff = "eod_squareoff"
)

// Order represents an instruction created by the engine for the execution simulator.
type Order struct {
	Symbol   string
	Side     Side
	Quantity int
	Price    *float64 // nil means market; only meaningful for live trading
	Tag      string
}

// LimitOrder returns an order at the given reference price.
func LimitOrder(symbol string, side Side, qty int, price float64, tag string) Order {
	p := price
	return Order{
		Symbol:   symbol,
		Side:     side,
		Quantity: qty,
		Price:    &p,
		Tag:      tag,
	}
}

// Fill represents the realized outcome of an order. Fills are never partial.
type Fill struct {
	Symbol   string  `json:"symbol"`
	Side     Side    `json:"side"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
	Fee      float64 `json:"fee"`
	Tag      string  `json:"tag"`
}
