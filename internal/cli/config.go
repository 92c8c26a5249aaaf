package cli

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"nse-backtester/internal/config"
	"nse-backtester/pkg/utils"
)

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate config.toml. Values can be overridden with NSEBT_* environment variables.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:         "path",
		Short:       "Show configuration file path",
		Annotations: map[string]string{annotationConfigOptional: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			path := filepath.Join(app.ConfigDir, "config.toml")
			if output.IsJSON() {
				return output.JSON(map[string]string{"path": path})
			}
			output.Println(path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:         "validate",
		Short:       "Validate the configuration file",
		Annotations: map[string]string{annotationConfigOptional: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.loadErr != nil {
				if output.IsJSON() {
					_ = output.JSON(map[string]interface{}{"valid": false, "error": app.loadErr.Error()})
				} else {
					output.Error("✗ Configuration validation failed: %v", app.loadErr)
				}
				return app.loadErr
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:         "template",
		Short:       "Print the commented configuration template",
		Annotations: map[string]string{annotationConfigOptional: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			NewOutput(cmd).Printf("%s", config.Template())
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	if cfg.Path != "" {
		output.Dim("Loaded from %s", cfg.Path)
		output.Println()
	}

	output.Bold("Strategy")
	output.Printf("  Name:             %s\n", cfg.Strategy.Name)
	output.Printf("  MR Lookback:      %d\n", cfg.Strategy.MRLookback)
	output.Printf("  MR Threshold:     %s\n", utils.FormatPercent(cfg.Strategy.MRThreshold))
	output.Printf("  ORB Minutes:      %d\n", cfg.Strategy.ORBMinutes)
	output.Println()

	output.Bold("Risk")
	output.Printf("  Max Daily Loss:   %.2f%%\n", cfg.Risk.MaxDailyLossPct*100)
	output.Printf("  Max Risk/Trade:   %.2f%%\n", cfg.Risk.MaxRiskPerTradePct*100)
	output.Printf("  Daily Reset:      %v\n", cfg.Risk.ResetDailyLoss)
	output.Println()

	output.Bold("Session (%s)", cfg.Session.Timezone)
	output.Printf("  Market Open:      %s\n", cfg.Session.MarketOpen)
	output.Printf("  Entry Cutoff:     %s\n", cfg.Session.EntryCutoff)
	output.Printf("  Square-off:       %s\n", cfg.Session.ForceSquareOff)
	output.Printf("  Market Close:     %s\n", cfg.Session.MarketClose)
	output.Println()

	output.Bold("Execution")
	output.Printf("  Initial Capital:  %s\n", utils.FormatIndianCurrency(cfg.Backtest.InitialCapital))
	output.Printf("  Slippage:         %.1f bps\n", cfg.Execution.SlippageBps)
	output.Printf("  Cost Model:       %s\n", cfg.Execution.CostModel)
	output.Println()

	output.Bold("Data")
	output.Printf("  Cache Dir:        %s\n", cfg.Data.CacheDir)
	output.Printf("  Reports Dir:      %s\n", cfg.Data.ReportsDir)
	output.Printf("  Universe:         %s\n", cfg.Data.Universe)
	output.Printf("  Interval/Period:  %s / %s\n", cfg.Data.Interval, cfg.Data.Period)
	output.Printf("  Database:         %s\n", cfg.Data.DBPath)
	output.Println()

	output.Bold("Dashboard")
	output.Printf("  Address:          %s\n", cfg.Dashboard.Addr)
}
