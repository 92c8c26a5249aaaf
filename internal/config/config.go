// Package config provides configuration management for the backtester.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"

	apperrors "nse-backtester/internal/errors"
	"nse-backtester/internal/strategy"
	"nse-backtester/internal/trading"
	"nse-backtester/pkg/utils"
)

// EnvPrefix is prepended to environment overrides, e.g. NSEBT_RISK_MAX_DAILY_LOSS_PCT.
const EnvPrefix = "NSEBT"

// Config holds all application configuration.
type Config struct {
	Strategy  StrategyConfig  `mapstructure:"strategy"`
	Risk      RiskConfig      `mapstructure:"risk"`
	Session   SessionConfig   `mapstructure:"session"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Backtest  BacktestConfig  `mapstructure:"backtest"`
	Data      DataConfig      `mapstructure:"data"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Logging   LoggingConfig   `mapstructure:"logging"`

	// Path is the file the configuration was read from, empty when only
	// defaults were used.
	Path string `mapstructure:"-"`
}

// StrategyConfig selects the default strategy and its parameters.
type StrategyConfig struct {
	Name        string  `mapstructure:"name"`
	MRLookback  int     `mapstructure:"mr_lookback"`
	MRThreshold float64 `mapstructure:"mr_threshold"`
	ORBMinutes  int     `mapstructure:"orb_minutes"`
}

// RiskConfig holds risk governor limits as fractions of equity.
type RiskConfig struct {
	MaxDailyLossPct    float64 `mapstructure:"max_daily_loss_pct"`
	MaxRiskPerTradePct float64 `mapstructure:"max_risk_per_trade_pct"`
	ResetDailyLoss     bool    `mapstructure:"reset_daily_loss"`
}

// SessionConfig holds the intraday schedule as "HH:MM" strings.
type SessionConfig struct {
	MarketOpen     string `mapstructure:"market_open"`
	EntryCutoff    string `mapstructure:"entry_cutoff"`
	ForceSquareOff string `mapstructure:"force_squareoff"`
	MarketClose    string `mapstructure:"market_close"`
	Timezone       string `mapstructure:"timezone"`
}

// ExecutionConfig holds fill simulation settings.
type ExecutionConfig struct {
	SlippageBps float64 `mapstructure:"slippage_bps"`
	CostModel   string  `mapstructure:"cost_model"` // india_intraday, zero
}

// BacktestConfig holds run-level settings.
type BacktestConfig struct {
	InitialCapital float64 `mapstructure:"initial_capital"`
}

// DataConfig holds bar source and output locations.
type DataConfig struct {
	CacheDir   string        `mapstructure:"cache_dir"`
	ReportsDir string        `mapstructure:"reports_dir"`
	Universe   string        `mapstructure:"universe"`
	Interval   string        `mapstructure:"interval"`
	Period     string        `mapstructure:"period"`
	DBPath     string        `mapstructure:"db_path"`
	MaxAge     time.Duration `mapstructure:"max_age"`
	FetchRate  float64       `mapstructure:"fetch_rate"` // requests per second
}

// DashboardConfig holds the HTTP dashboard settings.
type DashboardConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	File  bool   `mapstructure:"file"`
	Path  string `mapstructure:"path"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/nse-backtester"
	}
	return filepath.Join(home, ".config", "nse-backtester")
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("strategy.name", strategy.NameMeanReversion)
	v.SetDefault("strategy.mr_lookback", 20)
	v.SetDefault("strategy.mr_threshold", 0.02)
	v.SetDefault("strategy.orb_minutes", 15)

	v.SetDefault("risk.max_daily_loss_pct", 0.01)
	v.SetDefault("risk.max_risk_per_trade_pct", 0.005)
	v.SetDefault("risk.reset_daily_loss", true)

	v.SetDefault("session.market_open", utils.MarketOpen.String())
	v.SetDefault("session.entry_cutoff", utils.EntryCutoff.String())
	v.SetDefault("session.force_squareoff", utils.ForceSquareOff.String())
	v.SetDefault("session.market_close", utils.MarketClose.String())
	v.SetDefault("session.timezone", "Asia/Kolkata")

	v.SetDefault("execution.slippage_bps", 5.0)
	v.SetDefault("execution.cost_model", "india_intraday")

	v.SetDefault("backtest.initial_capital", 100000.0)

	v.SetDefault("data.cache_dir", filepath.Join("datasets", "cache"))
	v.SetDefault("data.reports_dir", "reports")
	v.SetDefault("data.universe", filepath.Join("universe", "nifty50.txt"))
	v.SetDefault("data.interval", "5m")
	v.SetDefault("data.period", "5d")
	v.SetDefault("data.db_path", filepath.Join(configDir, "backtester.db"))
	v.SetDefault("data.max_age", "0s")
	v.SetDefault("data.fetch_rate", 2.0)

	v.SetDefault("dashboard.addr", "127.0.0.1:5000")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", true)
	v.SetDefault("logging.path", filepath.Join(configDir, "logs", "backtester.log"))
}

// Default returns the built-in configuration without touching the filesystem.
func Default() *Config {
	v := viper.New()
	setDefaults(v, DefaultConfigDir())
	cfg := &Config{}
	// Defaults always decode.
	_ = v.Unmarshal(cfg)
	return cfg
}

// Load reads config.toml from configDir, applying defaults and NSEBT_*
// environment overrides. If configDir is empty, uses the default config
// directory. A missing file is replaced by a commented template.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v, configDir)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("loading config.toml: %w", err)
		}
		if err := createTemplateConfig(configDir); err != nil {
			return nil, err
		}
	} else {
		cfg.Path = v.ConfigFileUsed()
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if _, err := strategy.Canonical(c.Strategy.Name); err != nil && !strings.EqualFold(c.Strategy.Name, "all") {
		return apperrors.NewValidationError("strategy.name", c.Strategy.Name, err.Error())
	}
	if c.Strategy.MRLookback < 2 {
		return apperrors.NewValidationError("strategy.mr_lookback", c.Strategy.MRLookback, "must be at least 2")
	}
	if c.Strategy.MRThreshold <= 0 {
		return apperrors.NewValidationError("strategy.mr_threshold", c.Strategy.MRThreshold, "must be positive")
	}
	if c.Strategy.ORBMinutes <= 0 {
		return apperrors.NewValidationError("strategy.orb_minutes", c.Strategy.ORBMinutes, "must be positive")
	}

	if c.Risk.MaxDailyLossPct <= 0 || c.Risk.MaxDailyLossPct >= 1 {
		return apperrors.NewValidationError("risk.max_daily_loss_pct", c.Risk.MaxDailyLossPct, "must be between 0 and 1")
	}
	if c.Risk.MaxRiskPerTradePct <= 0 || c.Risk.MaxRiskPerTradePct >= 1 {
		return apperrors.NewValidationError("risk.max_risk_per_trade_pct", c.Risk.MaxRiskPerTradePct, "must be between 0 and 1")
	}

	if _, err := c.SessionSchedule(); err != nil {
		return err
	}

	if c.Execution.SlippageBps < 0 {
		return apperrors.NewValidationError("execution.slippage_bps", c.Execution.SlippageBps, "must be non-negative")
	}
	if _, err := trading.CostModelByName(c.Execution.CostModel); err != nil {
		return apperrors.NewValidationError("execution.cost_model", c.Execution.CostModel, err.Error())
	}

	if c.Backtest.InitialCapital <= 0 {
		return apperrors.NewValidationError("backtest.initial_capital", c.Backtest.InitialCapital, "must be positive")
	}
	if c.Data.FetchRate <= 0 {
		return apperrors.NewValidationError("data.fetch_rate", c.Data.FetchRate, "must be positive")
	}

	return nil
}

// SessionSchedule parses the session block. The clock times must be ordered
// open < cutoff <= square-off <= close.
func (c *Config) SessionSchedule() (utils.Session, error) {
	s := utils.Session{}

	loc, err := time.LoadLocation(c.Session.Timezone)
	if err != nil {
		return s, apperrors.NewValidationError("session.timezone", c.Session.Timezone, err.Error())
	}
	s.Location = loc

	fields := []struct {
		key string
		val string
		dst *utils.ClockTime
	}{
		{"session.market_open", c.Session.MarketOpen, &s.Open},
		{"session.entry_cutoff", c.Session.EntryCutoff, &s.EntryCutoff},
		{"session.force_squareoff", c.Session.ForceSquareOff, &s.ForceSquareOff},
		{"session.market_close", c.Session.MarketClose, &s.Close},
	}
	for _, f := range fields {
		ct, err := utils.ParseClock(f.val)
		if err != nil {
			return s, apperrors.NewValidationError(f.key, f.val, "expected HH:MM")
		}
		*f.dst = ct
	}

	if !s.Open.Before(s.EntryCutoff) || s.ForceSquareOff.Before(s.EntryCutoff) || s.Close.Before(s.ForceSquareOff) {
		return s, apperrors.NewValidationError("session", fmt.Sprintf("%s/%s/%s/%s", s.Open, s.EntryCutoff, s.ForceSquareOff, s.Close),
			"times must satisfy open < entry_cutoff <= force_squareoff <= market_close")
	}
	return s, nil
}

// StrategyParams returns the strategy constructor parameters.
func (c *Config) StrategyParams() (strategy.Params, error) {
	session, err := c.SessionSchedule()
	if err != nil {
		return strategy.Params{}, err
	}
	return strategy.Params{
		MRLookback:  c.Strategy.MRLookback,
		MRThreshold: c.Strategy.MRThreshold,
		ORBMinutes:  c.Strategy.ORBMinutes,
		Session:     session,
	}, nil
}

// EngineConfig returns the simulation engine settings.
func (c *Config) EngineConfig() (trading.EngineConfig, error) {
	session, err := c.SessionSchedule()
	if err != nil {
		return trading.EngineConfig{}, err
	}
	cost, err := trading.CostModelByName(c.Execution.CostModel)
	if err != nil {
		return trading.EngineConfig{}, apperrors.NewValidationError("execution.cost_model", c.Execution.CostModel, err.Error())
	}

	ec := trading.DefaultEngineConfig()
	ec.InitialCapital = c.Backtest.InitialCapital
	ec.SlippageBps = c.Execution.SlippageBps
	ec.CostModel = cost
	ec.Session = session
	ec.ResetDailyLoss = c.Risk.ResetDailyLoss
	ec.Risk = trading.RiskConfig{
		MaxDailyLossPct:    c.Risk.MaxDailyLossPct,
		MaxRiskPerTradePct: c.Risk.MaxRiskPerTradePct,
		EntryCutoff:        session.EntryCutoff,
	}
	return ec, nil
}
