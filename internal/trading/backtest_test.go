package trading

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	apperrors "nse-backtester/internal/errors"
	"nse-backtester/internal/models"
	"nse-backtester/internal/strategy"
	"nse-backtester/pkg/utils"
)

// scripted emits a prepared signal on selected bar indexes.
type scripted struct {
	symbol  string
	n       int
	signals map[int]models.Signal
}

func (s *scripted) Name() string   { return "scripted" }
func (s *scripted) Symbol() string { return s.symbol }

func (s *scripted) OnBar(bar models.MarketBar) *models.Signal {
	defer func() { s.n++ }()
	sig, ok := s.signals[s.n]
	if !ok {
		return nil
	}
	sig.Symbol = s.symbol
	sig.Strategy = "scripted"
	sig.Timestamp = bar.Timestamp
	return &sig
}

func at(day, hour, minute int) time.Time {
	return time.Date(2026, 3, day, hour, minute, 0, 0, utils.IndiaLocation)
}

func bar(ts time.Time, o, h, l, c float64) models.MarketBar {
	return models.MarketBar{Symbol: "TCS", Timestamp: ts, Open: o, High: h, Low: l, Close: c, Volume: 1000}
}

func buy(entry, stop float64) models.Signal {
	return models.Signal{Side: models.SideBuy, Entry: entry, Stop: stop, Targets: []float64{entry + 1.5*(entry-stop)}, Confidence: 0.7, Reasoning: "test long"}
}

func sell(entry, stop float64) models.Signal {
	return models.Signal{Side: models.SideSell, Entry: entry, Stop: stop, Targets: []float64{entry - 1.5*(stop-entry)}, Confidence: 0.7, Reasoning: "test short"}
}

// frictionless has no slippage or fees, so recorded prices equal order prices.
func frictionless() EngineConfig {
	cfg := DefaultEngineConfig()
	cfg.SlippageBps = 0
	cfg.CostModel = ZeroCost
	return cfg
}

func newTestEngine(t *testing.T, signals map[int]models.Signal, mode models.RunMode, cfg EngineConfig) *Engine {
	t.Helper()
	e, err := NewEngine(&scripted{symbol: "TCS", signals: signals}, mode, cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestNewEngineRejectsReservedModes(t *testing.T) {
	for _, mode := range []models.RunMode{models.ModePaper, models.ModeLive} {
		_, err := NewEngine(&scripted{symbol: "TCS"}, mode, DefaultEngineConfig())
		if !errors.Is(err, apperrors.ErrModeNotSupported) {
			t.Errorf("mode %s: err = %v, want ErrModeNotSupported", mode, err)
		}
	}
}

func TestNewEngineValidatesConfig(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.InitialCapital = 0
	_, err := NewEngine(&scripted{symbol: "TCS"}, models.ModeBacktest, cfg)
	if !errors.Is(err, apperrors.ErrConfigInvalid) {
		t.Errorf("err = %v, want ErrConfigInvalid", err)
	}

	if _, err := NewEngine(nil, models.ModeBacktest, DefaultEngineConfig()); err == nil {
		t.Error("expected error for nil strategy")
	}
}

func TestEngineStopExitsAtStopPrice(t *testing.T) {
	e := newTestEngine(t, map[int]models.Signal{0: buy(100, 99)}, models.ModeBacktest, frictionless())

	summary := e.Run([]models.MarketBar{
		bar(at(2, 10, 0), 100, 100.5, 99.5, 100),
		bar(at(2, 10, 5), 100, 100.5, 98, 100.2),
	})

	if summary.NumTrades != 1 {
		t.Fatalf("trades = %d, want 1", summary.NumTrades)
	}
	tr := summary.Trades[0]
	if tr.Quantity != 500 {
		t.Errorf("qty = %d, want 500", tr.Quantity)
	}
	if tr.Exit != 99 {
		t.Errorf("exit = %v, want the stop price 99", tr.Exit)
	}
	if tr.ExitTag != models.TagStop {
		t.Errorf("exit tag = %q, want %q", tr.ExitTag, models.TagStop)
	}
	if tr.PnLEst != -500 {
		t.Errorf("pnl = %v, want -500", tr.PnLEst)
	}
	if !tr.ExitTime.Equal(at(2, 10, 5)) {
		t.Errorf("exit time = %v, want %v", tr.ExitTime, at(2, 10, 5))
	}
	if summary.FinalEquity != 99500 || summary.RealizedPnL != -500 {
		t.Errorf("equity = %v realized = %v, want 99500 / -500", summary.FinalEquity, summary.RealizedPnL)
	}
	if summary.DailyRealized["2026-03-02"] != -500 {
		t.Errorf("daily breakdown = %v", summary.DailyRealized)
	}
	if summary.WinRate != 0 {
		t.Errorf("win rate = %v, want 0", summary.WinRate)
	}
}

func TestEngineShortStopUsesHigh(t *testing.T) {
	e := newTestEngine(t, map[int]models.Signal{0: sell(200, 202)}, models.ModeBacktest, frictionless())

	summary := e.Run([]models.MarketBar{
		bar(at(2, 10, 0), 200, 201, 199, 200),
		bar(at(2, 10, 5), 200, 201.9, 198, 199),
		bar(at(2, 10, 10), 199, 203, 198, 202.5),
	})

	if summary.NumTrades != 1 {
		t.Fatalf("trades = %d, want 1", summary.NumTrades)
	}
	tr := summary.Trades[0]
	// qty = floor(100000 * 0.005 / 2)
	if tr.Quantity != 250 || tr.Exit != 202 || tr.PnLEst != -500 {
		t.Errorf("got qty=%d exit=%v pnl=%v, want 250 / 202 / -500", tr.Quantity, tr.Exit, tr.PnLEst)
	}
	if !tr.ExitTime.Equal(at(2, 10, 10)) {
		t.Errorf("exit time = %v", tr.ExitTime)
	}
}

func TestEngineEODSquareOffAtClose(t *testing.T) {
	e := newTestEngine(t, map[int]models.Signal{0: buy(100, 95)}, models.ModeBacktest, frictionless())

	summary := e.Run([]models.MarketBar{
		bar(at(2, 15, 0), 100, 100, 99, 100),
		bar(at(2, 15, 15), 100, 102, 99, 101),
		bar(at(2, 15, 20), 101, 103, 100, 102.5),
		bar(at(2, 15, 25), 102, 104, 101, 103),
	})

	if summary.NumTrades != 1 {
		t.Fatalf("trades = %d, want 1", summary.NumTrades)
	}
	tr := summary.Trades[0]
	if tr.ExitTag != models.TagEODSquareOff {
		t.Errorf("exit tag = %q, want %q", tr.ExitTag, models.TagEODSquareOff)
	}
	if tr.Exit != 102.5 {
		t.Errorf("exit = %v, want the 15:20 close 102.5", tr.Exit)
	}
	if !tr.ExitTime.Equal(at(2, 15, 20)) {
		t.Errorf("exit time = %v, want 15:20", tr.ExitTime)
	}
	if e.InPosition() {
		t.Error("position should be flat after square-off")
	}
	if summary.WinRate != 1 {
		t.Errorf("win rate = %v, want 1", summary.WinRate)
	}
}

func TestEngineStopTakesPrecedenceOverEOD(t *testing.T) {
	e := newTestEngine(t, map[int]models.Signal{0: buy(100, 99)}, models.ModeBacktest, frictionless())

	summary := e.Run([]models.MarketBar{
		bar(at(2, 15, 0), 100, 100, 99.5, 100),
		bar(at(2, 15, 20), 100, 100, 98, 98.5),
	})

	if summary.NumTrades != 1 {
		t.Fatalf("trades = %d, want 1", summary.NumTrades)
	}
	if summary.Trades[0].ExitTag != models.TagStop || summary.Trades[0].Exit != 99 {
		t.Errorf("got %s at %v, want stop at 99", summary.Trades[0].ExitTag, summary.Trades[0].Exit)
	}
}

func TestEngineIgnoresSignalsWhileInPosition(t *testing.T) {
	signals := map[int]models.Signal{0: buy(100, 99), 1: sell(100, 101), 2: buy(100, 99)}
	e := newTestEngine(t, signals, models.ModeBacktest, frictionless())

	summary := e.Run([]models.MarketBar{
		bar(at(2, 10, 0), 100, 100.5, 99.5, 100),
		bar(at(2, 10, 5), 100, 100.5, 99.5, 100),
		bar(at(2, 10, 10), 100, 100.5, 99.5, 100),
	})

	if summary.NumSignals != 0 {
		t.Errorf("signals = %d, backtests record none", summary.NumSignals)
	}
	if summary.NumTrades != 0 {
		t.Errorf("trades = %d, want 0", summary.NumTrades)
	}
	if pos := e.Ledger().Position("TCS"); pos.Quantity != 500 {
		t.Errorf("position = %d, want the single 500 share entry", pos.Quantity)
	}
}

func TestEngineRespectsEntryCutoff(t *testing.T) {
	e := newTestEngine(t, map[int]models.Signal{0: buy(100, 99)}, models.ModeBacktest, frictionless())

	summary := e.Run([]models.MarketBar{
		bar(at(2, 15, 10), 100, 100.5, 99.5, 100),
		bar(at(2, 15, 15), 100, 100.5, 99.5, 100),
	})

	if e.InPosition() || summary.NumTrades != 0 {
		t.Error("entry at the cutoff should be rejected")
	}
	if summary.NumSignals != 0 {
		t.Errorf("signals = %d, backtests record none", summary.NumSignals)
	}
}

func TestEngineDailyLossBreaker(t *testing.T) {
	signals := map[int]models.Signal{
		0: buy(100, 99),
		2: buy(100, 99),
		4: buy(100, 99),
		6: buy(100, 99),
	}
	bars := []models.MarketBar{
		bar(at(2, 10, 0), 100, 100.5, 99.5, 100),
		bar(at(2, 10, 5), 100, 100.5, 98, 99),
		bar(at(2, 10, 10), 100, 100.5, 99.5, 100),
		bar(at(2, 10, 15), 100, 100.5, 98, 99),
		bar(at(2, 10, 20), 100, 100.5, 99.5, 100),
		bar(at(2, 10, 25), 100, 100.5, 99.5, 100),
		bar(at(3, 10, 0), 100, 100.5, 99.5, 100),
	}

	t.Run("resets on a new day", func(t *testing.T) {
		e := newTestEngine(t, signals, models.ModeBacktest, frictionless())
		summary := e.Run(bars)

		// -500 then -497 breaches 1% of the reduced equity, so the third entry is refused.
		if summary.NumTrades != 2 {
			t.Fatalf("trades = %d, want 2", summary.NumTrades)
		}
		if summary.Trades[1].Quantity != 497 {
			t.Errorf("second qty = %d, want 497", summary.Trades[1].Quantity)
		}
		if !e.InPosition() {
			t.Error("breaker should reset on the next trading day")
		}
		if got := summary.DailyRealized["2026-03-02"]; got != -997 {
			t.Errorf("day pnl = %v, want -997", got)
		}
	})

	t.Run("never resets when disabled", func(t *testing.T) {
		cfg := frictionless()
		cfg.ResetDailyLoss = false
		e := newTestEngine(t, signals, models.ModeBacktest, cfg)
		e.Run(bars)

		if e.InPosition() {
			t.Error("breaker should stay tripped without a daily reset")
		}
	})
}

func TestEngineSignalModeDoesNotTrade(t *testing.T) {
	e := newTestEngine(t, map[int]models.Signal{0: buy(100, 99), 1: sell(100, 101)}, models.ModeSignal, frictionless())

	summary := e.Run([]models.MarketBar{
		bar(at(2, 10, 0), 100, 100.5, 98, 100),
		bar(at(2, 15, 25), 100, 102, 98, 100),
	})

	if summary.NumSignals != 2 || len(e.Signals()) != 2 {
		t.Errorf("signals = %d, want 2", summary.NumSignals)
	}
	if summary.NumTrades != 0 || e.InPosition() {
		t.Error("signal mode must not trade")
	}
	if len(summary.EquityCurve) != 2 || summary.FinalEquity != 100000 {
		t.Errorf("curve = %d points, equity = %v", len(summary.EquityCurve), summary.FinalEquity)
	}
}

func TestEngineEquityPointPrecedesBarFills(t *testing.T) {
	e := newTestEngine(t, map[int]models.Signal{0: buy(100, 99)}, models.ModeBacktest, frictionless())

	summary := e.Run([]models.MarketBar{
		bar(at(2, 10, 0), 100, 100.5, 99.5, 100),
		bar(at(2, 10, 5), 100, 100.5, 98, 99),
		bar(at(2, 10, 10), 99, 99.5, 98.5, 99),
	})

	want := []float64{100000, 100000, 99500}
	if len(summary.EquityCurve) != len(want) {
		t.Fatalf("curve length = %d", len(summary.EquityCurve))
	}
	for i, p := range summary.EquityCurve {
		if p.Equity != want[i] {
			t.Errorf("curve[%d] = %v, want %v", i, p.Equity, want[i])
		}
	}
}

func TestEngineOpenPositionSurvivesLastBar(t *testing.T) {
	e := newTestEngine(t, map[int]models.Signal{0: buy(100, 99)}, models.ModeBacktest, frictionless())

	summary := e.Run([]models.MarketBar{bar(at(2, 11, 0), 100, 100.5, 99.5, 100)})

	if !e.InPosition() || summary.NumTrades != 0 {
		t.Error("position should remain open after the final bar")
	}
}

func TestEngineAppliesSlippageAndFees(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.SlippageBps = 10
	cfg.CostModel = func(qty int, price float64) float64 { return 1 }
	e := newTestEngine(t, map[int]models.Signal{0: buy(100, 98)}, models.ModeBacktest, cfg)

	summary := e.Run([]models.MarketBar{
		bar(at(2, 10, 0), 100, 100.5, 99.5, 100),
		bar(at(2, 15, 20), 100, 101, 99.5, 101),
	})

	if summary.NumTrades != 1 {
		t.Fatalf("trades = %d, want 1", summary.NumTrades)
	}
	tr := summary.Trades[0]
	if math.Abs(tr.Entry-100.1) > 1e-9 || math.Abs(tr.Exit-100.899) > 1e-9 {
		t.Errorf("entry/exit = %v/%v, want 100.1/100.899", tr.Entry, tr.Exit)
	}
	if tr.Fees != 2 {
		t.Errorf("fees = %v, want 2", tr.Fees)
	}
	if math.Abs(tr.PnLEst-0.799*250) > 1e-6 {
		t.Errorf("pnl = %v, want %v", tr.PnLEst, 0.799*250)
	}
}

func TestEngineWithMeanReversion(t *testing.T) {
	strat, err := strategy.Build("mr", "TCS", strategy.DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	e, err := NewEngine(strat, models.ModeBacktest, frictionless())
	if err != nil {
		t.Fatal(err)
	}

	var bars []models.MarketBar
	for i := 0; i < 20; i++ {
		bars = append(bars, bar(at(2, 9, 15).Add(time.Duration(i)*5*time.Minute), 100, 100, 100, 100))
	}
	bars = append(bars, bar(at(2, 11, 0), 95, 95, 94, 94.5))
	bars = append(bars, bar(at(2, 11, 5), 94.5, 95, 93, 93.5))

	summary := e.Run(bars)
	if summary.NumTrades != 1 || summary.Trades[0].ExitTag != models.TagStop {
		t.Fatalf("trades = %+v, want a single stop exit", summary.Trades)
	}
	if summary.Trades[0].Exit != 94.5*0.99 {
		t.Errorf("exit = %v, want %v", summary.Trades[0].Exit, 94.5*0.99)
	}
}

func TestEngineBacktestSummaryHasNoSignals(t *testing.T) {
	signals := map[int]models.Signal{0: buy(100, 99), 1: buy(100, 99)}
	e := newTestEngine(t, signals, models.ModeBacktest, frictionless())

	summary := e.Run([]models.MarketBar{
		bar(at(2, 10, 0), 100, 100.5, 99.5, 100),
		bar(at(2, 10, 5), 100, 100.5, 99.5, 100),
	})

	if !e.InPosition() {
		t.Fatal("first signal should have opened a position")
	}
	if summary.NumSignals != 0 || len(summary.Signals) != 0 || len(e.Signals()) != 0 {
		t.Errorf("signals = %d (%d listed), want none in a backtest", summary.NumSignals, len(summary.Signals))
	}

	data, err := json.Marshal(summary)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"num_signals":0`) {
		t.Errorf("summary json = %s", data)
	}
}
