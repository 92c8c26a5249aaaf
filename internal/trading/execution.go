package trading

import (
	"nse-backtester/internal/models"
)

// DefaultSlippageBps is the slippage applied when none is configured.
const DefaultSlippageBps = 5.0

// Simulator converts orders into fills with slippage and a cost model.
// It holds no mutable state.
type Simulator struct {
	slippageBps float64
	cost        CostModel
}

// NewSimulator creates an execution simulator. A nil cost model charges nothing.
func NewSimulator(slippageBps float64, cost CostModel) *Simulator {
	if cost == nil {
		cost = ZeroCost
	}
	return &Simulator{
		slippageBps: slippageBps,
		cost:        cost,
	}
}

// Execute fills the whole order at its reference price moved against the trader
// by the configured slippage. A market order (nil price) is priced at zero;
// market orders are only meaningful for live trading.
func (s *Simulator) Execute(order models.Order) models.Fill {
	var px float64
	if order.Price != nil {
		px = *order.Price
	}
	slip := px * (s.slippageBps / 10000.0)

	execPx := px - slip
	if order.Side == models.SideBuy {
		execPx = px + slip
	}

	return models.Fill{
		Symbol:   order.Symbol,
		Side:     order.Side,
		Quantity: order.Quantity,
		Price:    execPx,
		Fee:      s.cost(order.Quantity, execPx),
		Tag:      order.Tag,
	}
}
