package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"nse-backtester/internal/config"
	"nse-backtester/internal/logging"
	"nse-backtester/internal/store"
)

// Version information
const (
	Version   = "0.3.0"
	BuildDate = "2026-03-02"
)

// annotationConfigOptional marks commands that still run when config.toml
// fails to load or validate.
const annotationConfigOptional = "config-optional"

// App holds the application dependencies.
type App struct {
	Config    *config.Config
	ConfigDir string
	Logger    zerolog.Logger

	// loadErr is set when a config-optional command runs with a broken config.
	loadErr error

	storeOnce sync.Once
	store     store.DataStore
	storeErr  error
}

// NewRootCmd creates the root command for the CLI. Configuration and the
// logger are resolved before each command runs.
func NewRootCmd() *cobra.Command {
	app := &App{Logger: zerolog.Nop()}

	rootCmd := &cobra.Command{
		Use:   "trader",
		Short: "NSE intraday signal scanner and backtester",
		Long: `trader replays 5-minute NSE bars through intraday strategies.

In signal mode it produces a ranked watchlist of trade ideas. In backtest mode
it simulates fills, costs and risk limits and reports the resulting PnL.
Data comes from CSV files, the local cache filled by 'trader fetch', or the
SQLite store.

Use 'trader <command> --help' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.init(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/nse-backtester)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	addCoreCommands(rootCmd, app)
	addRunCommands(rootCmd, app)
	addDataCommands(rootCmd, app)
	addDashboardCommands(rootCmd, app)

	return rootCmd
}

// Execute runs the CLI with ctx and returns the command error.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

func (a *App) init(cmd *cobra.Command) error {
	dir, _ := cmd.Flags().GetString("config")
	if dir == "" {
		dir = config.DefaultConfigDir()
	}
	a.ConfigDir = dir

	cfg, err := config.Load(dir)
	if err != nil {
		if cmd.Annotations[annotationConfigOptional] == "" {
			return err
		}
		a.loadErr = err
		cfg = config.Default()
	}
	a.Config = cfg

	debug, _ := cmd.Flags().GetBool("debug")
	a.Logger = newLogger(cmd, cfg.Logging, debug)
	cmd.SetContext(logging.WithLogger(cmd.Context(), a.Logger))

	a.Logger.Debug().Str("config", cfg.Path).Str("command", cmd.CommandPath()).Msg("Configuration loaded")
	return nil
}

func newLogger(cmd *cobra.Command, lc config.LoggingConfig, debug bool) zerolog.Logger {
	cfg := logging.DefaultLogConfig()
	cfg.Level = lc.Level
	if debug {
		cfg.Level = "debug"
	}
	cfg.File = lc.File
	if lc.Path != "" {
		cfg.FilePath = lc.Path
	}
	cfg.ConsoleOut = cmd.ErrOrStderr()
	cfg.NoColor = !isTerminal(cmd.ErrOrStderr())
	return logging.NewLoggerWithConfig(cfg)
}

// Store opens the SQLite store on first use.
func (a *App) Store() (store.DataStore, error) {
	a.storeOnce.Do(func() {
		path := a.Config.Data.DBPath
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			a.storeErr = fmt.Errorf("create database directory: %w", err)
			return
		}
		a.store, a.storeErr = store.NewSQLiteStore(path)
		if a.storeErr == nil {
			a.Logger.Debug().Str("path", path).Msg("SQLite store initialized")
		}
	})
	return a.store, a.storeErr
}

// optionalStore returns the store, or nil with a warning when it cannot be
// opened. Commands that only record history keep working without it.
func (a *App) optionalStore() store.DataStore {
	s, err := a.Store()
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Store unavailable, history will not be recorded")
		return nil
	}
	return s
}

// Close releases the store if it was opened.
func (a *App) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

// addCoreCommands adds core utility commands.
func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newExamplesCmd())
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Annotations: map[string]string{annotationConfigOptional: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("NSE Backtester v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
			return nil
		},
	}
}
