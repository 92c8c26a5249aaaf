package trading

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"nse-backtester/internal/models"
	"nse-backtester/internal/strategy"
	"nse-backtester/pkg/utils"
)

// walkBarsGen generates two sessions of 5-minute bars from 09:15 IST,
// 75 bars a day, so the last bars of each day fall past the square-off.
func walkBarsGen() gopter.Gen {
	return gen.SliceOfN(150, gen.Float64Range(-3, 3)).Map(func(steps []float64) []models.MarketBar {
		bars := make([]models.MarketBar, 0, len(steps))
		px := 1000.0
		for i, step := range steps {
			ts := time.Date(2026, 3, 2+i/75, 9, 15, 0, 0, utils.IndiaLocation).Add(time.Duration(i%75) * 5 * time.Minute)
			open := px
			px = math.Max(10, px+step)
			bars = append(bars, models.MarketBar{
				Symbol:    "TCS",
				Timestamp: ts,
				Open:      open,
				High:      math.Max(open, px) + math.Abs(step),
				Low:       math.Min(open, px) - math.Abs(step),
				Close:     px,
				Volume:    5000 + math.Abs(step)*2000,
			})
		}
		return bars
	})
}

// signalPlanGen picks which bars emit a signal and on which side.
func signalPlanGen() gopter.Gen {
	return gen.SliceOfN(150, gen.IntRange(0, 5))
}

func planned(bars []models.MarketBar, plan []int) map[int]models.Signal {
	out := make(map[int]models.Signal)
	for i, p := range plan {
		if i >= len(bars) {
			break
		}
		px := bars[i].Close
		switch p {
		case 0:
			out[i] = buy(px, px-2)
		case 1:
			out[i] = sell(px, px+2)
		}
	}
	return out
}

func TestProperty_SinglePosition(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.MaxShrinkCount = 0

	properties := gopter.NewProperties(parameters)

	properties.Property("trades never overlap and the ledger holds at most one entry", prop.ForAll(
		func(bars []models.MarketBar, plan []int) bool {
			e, err := NewEngine(&scripted{symbol: "TCS", signals: planned(bars, plan)}, models.ModeBacktest, DefaultEngineConfig())
			if err != nil {
				return false
			}

			var prevExit time.Time
			for i := range bars {
				e.step(bars[i])

				pos := e.Ledger().Position("TCS")
				if e.active == nil {
					if pos.Quantity != 0 {
						return false
					}
					continue
				}
				if pos.Quantity != e.active.qty*e.active.side.Sign() {
					return false
				}
			}

			for _, tr := range e.Trades() {
				if tr.EntryTime.Before(prevExit) || tr.ExitTime.Before(tr.EntryTime) {
					return false
				}
				prevExit = tr.ExitTime
			}
			return true
		},
		walkBarsGen(),
		signalPlanGen(),
	))

	properties.TestingRun(t)
}

func TestProperty_NoPositionPastSquareOff(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.MaxShrinkCount = 0

	properties := gopter.NewProperties(parameters)

	properties.Property("any position is flat after a bar at or past square-off", prop.ForAll(
		func(bars []models.MarketBar, plan []int) bool {
			e, err := NewEngine(&scripted{symbol: "TCS", signals: planned(bars, plan)}, models.ModeBacktest, frictionless())
			if err != nil {
				return false
			}
			for i := range bars {
				e.step(bars[i])
				if !utils.TimeOfDayBefore(bars[i].Timestamp, utils.ForceSquareOff) && e.InPosition() {
					return false
				}
			}
			for _, tr := range e.Trades() {
				if tr.ExitTag == models.TagEODSquareOff {
					closeAt := -1.0
					for _, b := range bars {
						if b.Timestamp.Equal(tr.ExitTime) {
							closeAt = b.Close
						}
					}
					if tr.Exit != closeAt {
						return false
					}
				}
			}
			return true
		},
		walkBarsGen(),
		signalPlanGen(),
	))

	properties.TestingRun(t)
}

func TestProperty_LedgerRealizesOnlyOnClose(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	type step struct {
		Buy   bool
		Qty   int
		Price float64
	}
	stepGen := gopter.CombineGens(gen.Bool(), gen.IntRange(1, 50), gen.Float64Range(50, 150)).Map(func(v []interface{}) step {
		return step{Buy: v[0].(bool), Qty: v[1].(int), Price: v[2].(float64)}
	})

	properties.Property("realized pnl changes only on opposite fills and sums per close", prop.ForAll(
		func(steps []step) bool {
			l := NewLedger(100000)
			var qty int
			var avg, sum float64

			for _, s := range steps {
				side := models.SideSell
				if s.Buy {
					side = models.SideBuy
				}
				before := l.RealizedPnL()
				l.UpdateFill(models.Fill{Symbol: "TCS", Side: side, Quantity: s.Qty, Price: s.Price})
				delta := l.RealizedPnL() - before

				signed := s.Qty * side.Sign()
				closing := qty != 0 && (qty > 0) != (signed > 0)
				if !closing {
					if delta != 0 {
						return false
					}
					qty += signed
					avg = s.Price
					continue
				}

				want := (s.Price - avg) * float64(qty)
				if math.Abs(delta-want) > 1e-6 {
					return false
				}
				sum += want
				qty, avg = 0, 0
			}

			return math.Abs(l.RealizedPnL()-sum) < 1e-6 &&
				math.Abs(l.Equity()-(100000+sum)) < 1e-6 &&
				l.Position("TCS").Quantity == qty
		},
		gen.SliceOf(stepGen),
	))

	properties.TestingRun(t)
}

func TestProperty_EngineIsDeterministic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	parameters.MaxShrinkCount = 0

	properties := gopter.NewProperties(parameters)

	properties.Property("fresh engines replay identical bars identically", prop.ForAll(
		func(bars []models.MarketBar, nameIdx int) bool {
			name := strategy.Names()[nameIdx]
			run := func() models.Summary {
				strat, err := strategy.Build(name, "TCS", strategy.DefaultParams())
				if err != nil {
					t.Fatal(err)
				}
				e, err := NewEngine(strat, models.ModeBacktest, DefaultEngineConfig())
				if err != nil {
					t.Fatal(err)
				}
				return e.Run(bars)
			}
			a, b := run(), run()
			return reflect.DeepEqual(a.Trades, b.Trades) &&
				reflect.DeepEqual(a.EquityCurve, b.EquityCurve) &&
				reflect.DeepEqual(a.Signals, b.Signals) &&
				a.FinalEquity == b.FinalEquity
		},
		walkBarsGen(),
		gen.IntRange(0, len(strategy.Names())-1),
	))

	properties.TestingRun(t)
}
