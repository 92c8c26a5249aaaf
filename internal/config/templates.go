package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# NSE Backtester Configuration
# Every key may be overridden by an environment variable, e.g.
# NSEBT_EXECUTION_SLIPPAGE_BPS=0

[strategy]
# Default strategy: mean_reversion, orb, vwap (or "all" for scans)
name = "mean_reversion"
# Mean reversion lookback in bars and deviation threshold (0.02 = 2%)
mr_lookback = 20
mr_threshold = 0.02
# Opening range length in minutes
orb_minutes = 15

[risk]
# Stop opening positions once the day's realized loss reaches this share of equity
max_daily_loss_pct = 0.01
# Equity risked per trade, entry to stop
max_risk_per_trade_pct = 0.005
# Clear the daily loss breaker at the start of each trading date
reset_daily_loss = true

[session]
market_open = "09:15"
# No new entries at or after this time
entry_cutoff = "15:10"
# Open positions are closed at the first bar at or after this time
force_squareoff = "15:20"
market_close = "15:30"
timezone = "Asia/Kolkata"

[execution]
# Adverse slippage in basis points on limit fills
slippage_bps = 5.0
# Cost model: india_intraday or zero
cost_model = "india_intraday"

[backtest]
initial_capital = 100000.0

[data]
cache_dir = "datasets/cache"
reports_dir = "reports"
universe = "universe/nifty50.txt"
interval = "5m"
period = "5d"
# SQLite database for bars, runs and scans (defaults to the config directory)
# db_path = ""
# Skip fetching a ticker whose stored bars are newer than this (0s disables)
max_age = "0s"
# Yahoo requests per second
fetch_rate = 2.0

[dashboard]
addr = "127.0.0.1:5000"

[logging]
# debug, info, warn, error
level = "info"
# Also write a rotating log file
file = true
# path = ""
`

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return nil
}

// Template returns the commented default config.toml.
func Template() string {
	return configTemplate
}
