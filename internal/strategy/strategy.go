// Package strategy provides the signal-generating strategies replayed by the engine.
package strategy

import (
	"fmt"
	"sort"
	"strings"

	"nse-backtester/internal/analysis/indicators"
	apperrors "nse-backtester/internal/errors"
	"nse-backtester/internal/models"
	"nse-backtester/pkg/utils"
)

const (
	atrPeriod       = 14
	avgVolumePeriod = 20
	rewardMultiple  = 1.5
)

// Strategy consumes bars for a single symbol and emits at most one signal per bar.
// Implementations keep private per-symbol state and are not safe for concurrent use.
type Strategy interface {
	Name() string
	Symbol() string
	OnBar(bar models.MarketBar) *models.Signal
}

// base holds the unbounded bar history shared by all variants.
type base struct {
	symbol  string
	history []models.MarketBar
	gen     func() *models.Signal
}

func (b *base) Symbol() string {
	return b.symbol
}

// OnBar appends the bar to history and delegates to the variant's generator.
func (b *base) OnBar(bar models.MarketBar) *models.Signal {
	b.history = append(b.history, bar)
	return b.gen()
}

func (b *base) last() models.MarketBar {
	return b.history[len(b.history)-1]
}

func (b *base) atr() float64 {
	return indicators.TrailingATR(b.history, atrPeriod)
}

func (b *base) avgVolume() float64 {
	return indicators.AverageVolume(b.history, avgVolumePeriod)
}

// Params holds the tunable knobs used by strategy constructors.
type Params struct {
	MRLookback  int
	MRThreshold float64
	ORBMinutes  int
	Session     utils.Session
}

// DefaultParams returns the defaults used by the CLI.
func DefaultParams() Params {
	return Params{
		MRLookback:  20,
		MRThreshold: 0.02,
		ORBMinutes:  15,
		Session:     utils.DefaultSession(),
	}
}

// Strategy names accepted by Build.
const (
	NameMeanReversion = "mean_reversion"
	NameORB           = "orb"
	NameVWAP          = "vwap"
)

var aliases = map[string]string{
	"mean_reversion": NameMeanReversion,
	"meanreversion":  NameMeanReversion,
	"mr":             NameMeanReversion,
	"orb":            NameORB,
	"opening_range":  NameORB,
	"vwap":           NameVWAP,
	"vwap_cross":     NameVWAP,
}

// Names returns the canonical strategy names in stable order.
func Names() []string {
	return []string{NameMeanReversion, NameORB, NameVWAP}
}

// Canonical resolves an alias to its canonical name.
func Canonical(name string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if c, ok := aliases[key]; ok {
		return c, nil
	}
	known := make([]string, 0, len(aliases))
	for k := range aliases {
		known = append(known, k)
	}
	sort.Strings(known)
	return "", fmt.Errorf("%w: %q (known: %s)", apperrors.ErrUnknownStrategy, name, strings.Join(known, ", "))
}

// Build returns a fresh strategy instance for symbol.
func Build(name, symbol string, p Params) (Strategy, error) {
	canonical, err := Canonical(name)
	if err != nil {
		return nil, err
	}
	switch canonical {
	case NameMeanReversion:
		return NewMeanReversion(symbol, p.MRLookback, p.MRThreshold), nil
	case NameORB:
		return NewORB(symbol, p.ORBMinutes, p.Session), nil
	default:
		return NewVWAPCross(symbol), nil
	}
}
