package trading

import (
	"fmt"
	"math"
	"strings"
)

// CostModel estimates the transaction cost of one fill.
type CostModel func(quantity int, price float64) float64

// ZeroCost charges nothing.
func ZeroCost(int, float64) float64 {
	return 0
}

// NSE intraday equity charges.
const (
	brokerageRate    = 0.0003 // 0.03% of turnover
	brokerageCap     = 20.0   // per executed order
	sttSellRate      = 0.00025
	exchangeTxnRate  = 0.0000297
	sebiRatePerCrore = 10.0
	stampDutyBuyRate = 0.00003
	gstRate          = 0.18
	rupeesPerCrore   = 1e7
)

// IndiaIntradayCost estimates discount-broker charges for an intraday equity leg.
// STT applies only to sells and stamp duty only to buys; the model does not see
// the side, so each is charged at half rate on every leg. Over a round trip the
// total matches the exact schedule.
func IndiaIntradayCost(quantity int, price float64) float64 {
	turnover := float64(quantity) * price
	if turnover <= 0 {
		return 0
	}

	brokerage := math.Min(brokerageCap, turnover*brokerageRate)
	txn := turnover * exchangeTxnRate
	sebi := turnover * sebiRatePerCrore / rupeesPerCrore
	gst := gstRate * (brokerage + txn + sebi)
	stt := turnover * sttSellRate / 2
	stamp := turnover * stampDutyBuyRate / 2

	return brokerage + txn + sebi + gst + stt + stamp
}

// CostModelByName resolves a configured cost model.
func CostModelByName(name string) (CostModel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "india", "india_intraday", "nse":
		return IndiaIntradayCost, nil
	case "zero", "none":
		return ZeroCost, nil
	}
	return nil, fmt.Errorf("unknown cost model: %q", name)
}
