// Package metrics exposes Prometheus metrics for simulation runs.
//
//   - backtester_runs_total{strategy,mode,result}  runs finished (result: ok|error)
//   - backtester_signals_total{strategy,side}       signals emitted by strategies
//   - backtester_fills_total{side,tag}              simulated fills
//   - backtester_trades_total{strategy,result}      closed round trips (win|loss)
//   - backtester_entries_rejected_total{reason}     entries refused by the risk governor
//   - backtester_last_final_equity{symbol,strategy} final equity of the latest run
//   - backtester_fetches_total{result}              ticker downloads (result: ok|fail|skipped)
//   - backtester_refreshes_total{result}            dashboard refresh jobs (result: done|error)
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backtester_runs_total",
			Help: "Engine runs finished",
		},
		[]string{"strategy", "mode", "result"},
	)

	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backtester_signals_total",
			Help: "Signals emitted by strategies",
		},
		[]string{"strategy", "side"},
	)

	FillsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backtester_fills_total",
			Help: "Simulated fills split by side and order tag",
		},
		[]string{"side", "tag"},
	)

	TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backtester_trades_total",
			Help: "Closed round trips by result",
		},
		[]string{"strategy", "result"},
	)

	EntriesRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backtester_entries_rejected_total",
			Help: "Entries refused by the risk governor",
		},
		[]string{"reason"},
	)

	LastFinalEquity = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "backtester_last_final_equity",
			Help: "Final equity of the most recent run per symbol and strategy",
		},
		[]string{"symbol", "strategy"},
	)

	FetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backtester_fetches_total",
			Help: "Ticker downloads by result",
		},
		[]string{"result"},
	)

	RefreshesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backtester_refreshes_total",
			Help: "Dashboard refresh jobs by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(RunsTotal, SignalsTotal, FillsTotal, TradesTotal, EntriesRejected, LastFinalEquity,
		FetchesTotal, RefreshesTotal)
}

// TradeResult labels a closed trade by its PnL sign.
func TradeResult(pnl float64) string {
	if pnl > 0 {
		return "win"
	}
	return "loss"
}

// Handler returns the Prometheus exposition handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
