// Package trading provides the simulation engine and its execution, portfolio
// and risk collaborators.
package trading

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	apperrors "nse-backtester/internal/errors"
	"nse-backtester/internal/logging"
	"nse-backtester/internal/metrics"
	"nse-backtester/internal/models"
	"nse-backtester/internal/strategy"
	"nse-backtester/pkg/utils"
)

// EngineConfig configures one engine run.
type EngineConfig struct {
	InitialCapital float64
	SlippageBps    float64
	CostModel      CostModel
	Risk           RiskConfig
	Session        utils.Session
	// ResetDailyLoss clears the daily loss breaker on the first bar of each date.
	ResetDailyLoss bool
	Logger         *zerolog.Logger
}

// DefaultEngineConfig returns ₹1,00,000 capital, 5 bps slippage, the NSE cost
// model, default risk limits and the NSE session.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		InitialCapital: 100000,
		SlippageBps:    DefaultSlippageBps,
		CostModel:      IndiaIntradayCost,
		Risk:           DefaultRiskConfig(),
		Session:        utils.DefaultSession(),
		ResetDailyLoss: true,
	}
}

// activeTrade is the engine's single open position.
type activeTrade struct {
	symbol    string
	side      models.Side
	qty       int
	entry     float64
	stop      float64
	reason    string
	entryFee  float64
	entryTime time.Time
}

// Engine replays bars through a strategy. In SIGNAL mode it only collects
// signals; in BACKTEST mode it trades them, holding at most one position.
// An Engine owns its ledger, governor and simulator and is not safe for
// concurrent use. Run it once per symbol.
type Engine struct {
	strategy strategy.Strategy
	mode     models.RunMode
	cfg      EngineConfig
	logger   zerolog.Logger

	ledger   *Ledger
	exec     *Simulator
	risk     *Governor
	active   *activeTrade
	trades   []models.TradeRecord
	signals  []models.Signal
	curve    []models.EquityPoint
	lastDate string
}

// NewEngine creates an engine. Only SIGNAL and BACKTEST modes are supported.
func NewEngine(strat strategy.Strategy, mode models.RunMode, cfg EngineConfig) (*Engine, error) {
	if strat == nil {
		return nil, apperrors.NewValidationError("strategy", nil, "strategy is required")
	}
	if mode != models.ModeSignal && mode != models.ModeBacktest {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrModeNotSupported, mode)
	}
	if cfg.InitialCapital <= 0 {
		return nil, apperrors.NewValidationError("initial_capital", cfg.InitialCapital, "must be positive")
	}

	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	logger = logger.With().
		Str("symbol", strat.Symbol()).
		Str("strategy", strat.Name()).
		Str("mode", string(mode)).
		Logger()

	return &Engine{
		strategy: strat,
		mode:     mode,
		cfg:      cfg,
		logger:   logger,
		ledger:   NewLedger(cfg.InitialCapital),
		exec:     NewSimulator(cfg.SlippageBps, cfg.CostModel),
		risk:     NewGovernor(cfg.Risk),
	}, nil
}

// Run consumes bars in order and returns the run summary.
// Bars must already be sorted by timestamp.
func (e *Engine) Run(bars []models.MarketBar) models.Summary {
	start := time.Now()
	for _, bar := range bars {
		e.step(bar)
	}

	summary := e.Summary()
	metrics.RunsTotal.WithLabelValues(e.strategy.Name(), string(e.mode), "ok").Inc()
	if e.mode == models.ModeBacktest {
		metrics.LastFinalEquity.WithLabelValues(e.strategy.Symbol(), e.strategy.Name()).Set(summary.FinalEquity)
	}
	logging.LogRun(e.logger.With().Int("bars", len(bars)).Logger(), summary, time.Since(start))
	return summary
}

func (e *Engine) step(bar models.MarketBar) {
	if date := bar.Date(); date != e.lastDate {
		e.ledger.SetDay(date)
		if e.cfg.ResetDailyLoss {
			e.ledger.ResetDaily()
		}
		e.lastDate = date
	}

	e.curve = append(e.curve, models.EquityPoint{
		Timestamp: bar.Timestamp,
		Equity:    e.ledger.Equity(),
	})

	sig := e.strategy.OnBar(bar)
	if sig != nil {
		metrics.SignalsTotal.WithLabelValues(sig.Strategy, string(sig.Side)).Inc()
	}

	if e.mode == models.ModeSignal {
		if sig != nil {
			e.signals = append(e.signals, *sig)
		}
		return
	}

	if sig != nil {
		if e.active == nil {
			e.enter(*sig, bar.Timestamp)
		} else {
			e.logger.Debug().Time("ts", bar.Timestamp).Msg("Signal ignored: position already open")
		}
	}

	if e.active != nil {
		stop := e.active.stop
		switch {
		case e.active.side == models.SideBuy && bar.Low <= stop:
			e.exit(stop, models.TagStop)
		case e.active.side == models.SideSell && bar.High >= stop:
			e.exit(stop, models.TagStop)
		}
	}

	if e.active != nil && !utils.TimeOfDayBefore(bar.Timestamp, e.cfg.Session.ForceSquareOff) {
		e.exit(bar.Close, models.TagEODSquareOff)
	}
}

func (e *Engine) enter(sig models.Signal, ts time.Time) {
	if !e.risk.AllowEntryTime(ts) {
		metrics.EntriesRejected.WithLabelValues("entry_cutoff").Inc()
		e.logger.Debug().Time("ts", ts).Msg("Entry rejected: past entry cutoff")
		return
	}

	qty, rejection := e.risk.size(e.ledger, sig)
	if qty <= 0 {
		metrics.EntriesRejected.WithLabelValues(rejection.Rule).Inc()
		e.logger.Debug().Time("ts", ts).Str("reason", rejection.Error()).Msg("Entry rejected")
		return
	}

	fill := e.fill(models.LimitOrder(sig.Symbol, sig.Side, qty, sig.Entry, models.TagEntry))

	e.active = &activeTrade{
		symbol:    sig.Symbol,
		side:      sig.Side,
		qty:       qty,
		entry:     fill.Price,
		stop:      sig.Stop,
		reason:    sig.Reasoning,
		entryFee:  fill.Fee,
		entryTime: ts,
	}
	e.logger.Debug().
		Time("ts", ts).
		Str("side", string(sig.Side)).
		Int("qty", qty).
		Float64("price", fill.Price).
		Float64("stop", sig.Stop).
		Msg("Entered position")
}

// exit closes the active trade. It is a no-op when flat.
func (e *Engine) exit(price float64, tag string) {
	if e.active == nil {
		return
	}
	a := e.active

	fill := e.fill(models.LimitOrder(a.symbol, a.side.Opposite(), a.qty, price, tag))

	pnl := (fill.Price - a.entry) * float64(a.qty*a.side.Sign())
	var exitTime time.Time
	if n := len(e.curve); n > 0 {
		exitTime = e.curve[n-1].Timestamp
	}

	e.trades = append(e.trades, models.TradeRecord{
		Symbol:    a.symbol,
		Entry:     a.entry,
		Exit:      fill.Price,
		Quantity:  a.qty,
		Side:      a.side,
		Reason:    a.reason,
		ExitTag:   tag,
		PnLEst:    pnl,
		Fees:      a.entryFee + fill.Fee,
		EntryTime: a.entryTime,
		ExitTime:  exitTime,
	})
	e.active = nil

	metrics.TradesTotal.WithLabelValues(e.strategy.Name(), metrics.TradeResult(pnl)).Inc()
	logging.LogTrade(e.logger, e.trades[len(e.trades)-1])
}

// fill routes an order through the simulator and into the ledger.
func (e *Engine) fill(order models.Order) models.Fill {
	f := e.exec.Execute(order)
	e.ledger.UpdateFill(f)
	metrics.FillsTotal.WithLabelValues(string(f.Side), f.Tag).Inc()
	return f
}

// InPosition reports whether a trade is open.
func (e *Engine) InPosition() bool {
	return e.active != nil
}

// Ledger exposes the engine's portfolio ledger.
func (e *Engine) Ledger() *Ledger {
	return e.ledger
}

// Signals returns the signals recorded so far. Only SIGNAL mode records them.
func (e *Engine) Signals() []models.Signal {
	return e.signals
}

// Trades returns the closed trades so far.
func (e *Engine) Trades() []models.TradeRecord {
	return e.trades
}

// EquityCurve returns the equity curve so far.
func (e *Engine) EquityCurve() []models.EquityPoint {
	return e.curve
}

// Summary reports the state of the run.
func (e *Engine) Summary() models.Summary {
	wins := 0
	for _, t := range e.trades {
		if t.PnLEst > 0 {
			wins++
		}
	}
	var winRate float64
	if len(e.trades) > 0 {
		winRate = float64(wins) / float64(len(e.trades))
	}

	return models.Summary{
		Symbol:        e.strategy.Symbol(),
		Strategy:      e.strategy.Name(),
		Mode:          e.mode,
		FinalEquity:   e.ledger.Equity(),
		RealizedPnL:   e.ledger.RealizedPnL(),
		DailyRealized: e.ledger.DailyBreakdown(),
		NumTrades:     len(e.trades),
		WinRate:       winRate,
		Trades:        e.trades,
		NumSignals:    len(e.signals),
		Signals:       e.signals,
		EquityCurve:   e.curve,
	}
}
