package trading

import (
	"math"
	"time"

	apperrors "nse-backtester/internal/errors"
	"nse-backtester/internal/models"
	"nse-backtester/pkg/utils"
)

// RiskConfig holds the risk governor's limits. Percentages are fractions (0.01 = 1%).
type RiskConfig struct {
	MaxDailyLossPct    float64
	MaxRiskPerTradePct float64
	EntryCutoff        utils.ClockTime
}

// DefaultRiskConfig returns 1% daily loss, 0.5% risk per trade and a 15:10 cutoff.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		MaxDailyLossPct:    0.01,
		MaxRiskPerTradePct: 0.005,
		EntryCutoff:        utils.EntryCutoff,
	}
}

// Account is what the governor reads from the ledger.
type Account interface {
	Equity() float64
	DailyRealized() float64
}

// Governor gates entries by time of day and daily loss, and sizes positions.
type Governor struct {
	cfg RiskConfig
}

// NewGovernor creates a risk governor.
func NewGovernor(cfg RiskConfig) *Governor {
	return &Governor{cfg: cfg}
}

// AllowEntryTime reports whether ts is strictly before the entry cutoff.
func (g *Governor) AllowEntryTime(ts time.Time) bool {
	return utils.TimeOfDayBefore(ts, g.cfg.EntryCutoff)
}

// SizePosition returns the quantity to trade, or 0 to reject.
func (g *Governor) SizePosition(acct Account, sig models.Signal) int {
	qty, _ := g.size(acct, sig)
	return qty
}

// size returns the quantity and, for rejections, the rule that fired.
func (g *Governor) size(acct Account, sig models.Signal) (int, *apperrors.RiskError) {
	eq := acct.Equity()

	limit := -eq * g.cfg.MaxDailyLossPct
	if daily := acct.DailyRealized(); daily <= limit {
		return 0, apperrors.NewRiskError("daily_loss", daily, limit, "daily loss breaker tripped")
	}

	rps := sig.RiskPerShare()
	if rps <= 0 {
		return 0, apperrors.NewRiskError("risk_per_share", rps, 0, "stop equals entry")
	}

	qty := int(math.Floor(eq * g.cfg.MaxRiskPerTradePct / rps))
	if qty <= 0 {
		return 0, apperrors.NewRiskError("size", float64(qty), 1, "risk budget below one share")
	}
	return qty, nil
}
