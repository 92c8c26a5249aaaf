package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"nse-backtester/internal/report"
	"nse-backtester/internal/store"
	"nse-backtester/internal/strategy"
	"nse-backtester/pkg/utils"
)

func newRunsCmd(app *App) *cobra.Command {
	var (
		filter store.RunFilter
		since  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded backtest runs",
		Example: `  trader runs --symbol INFY --limit 5
  trader runs show 3f1c...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			st, err := app.Store()
			if err != nil {
				return err
			}

			filter.Symbol = strings.ToUpper(strings.TrimSpace(filter.Symbol))
			if filter.Strategy != "" {
				if filter.Strategy, err = strategy.Canonical(filter.Strategy); err != nil {
					return err
				}
			}
			if since > 0 {
				filter.Since = time.Now().Add(-since)
			}

			runs, err := st.GetRuns(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				if runs == nil {
					runs = []store.Run{}
				}
				return output.JSON(runs)
			}
			if len(runs) == 0 {
				output.Dim("No runs recorded")
				return nil
			}

			table := NewTable(output, "ID", "DATE", "SYMBOL", "STRATEGY", "TRADES", "WIN", "PNL", "MAX DD")
			for _, r := range runs {
				table.AddRow(
					r.ID,
					r.CreatedAt.In(utils.IndiaLocation).Format("2006-01-02 15:04"),
					r.Symbol,
					report.StrategyLabel(r.Strategy),
					fmt.Sprintf("%d", r.NumTrades),
					fmt.Sprintf("%.0f%%", r.WinRate*100),
					output.FormatPnL(r.RealizedPnL),
					fmt.Sprintf("%.2f%%", r.MaxDrawdown*100),
				)
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().StringVarP(&filter.Symbol, "symbol", "s", "", "only runs for this symbol")
	cmd.Flags().StringVar(&filter.Strategy, "strategy", "", "only runs of this strategy")
	cmd.Flags().DurationVar(&since, "since", 0, "only runs newer than this, e.g. 72h")
	cmd.Flags().IntVarP(&filter.Limit, "limit", "n", 20, "maximum runs to list")

	cmd.AddCommand(&cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the trades of a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			st, err := app.Store()
			if err != nil {
				return err
			}
			trades, err := st.GetRunTrades(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(trades)
			}
			if len(trades) == 0 {
				output.Dim("No trades recorded for run %s", args[0])
				return nil
			}

			table := NewTable(output, "ENTRY TIME", "EXIT TIME", "SIDE", "QTY", "ENTRY", "EXIT", "FEES", "PNL", "TAG")
			var total float64
			for _, t := range trades {
				total += t.PnLEst
				table.AddRow(
					t.EntryTime.In(utils.IndiaLocation).Format("01-02 15:04"),
					t.ExitTime.In(utils.IndiaLocation).Format("01-02 15:04"),
					output.FormatSide(string(t.Side)),
					fmt.Sprintf("%d", t.Quantity),
					fmt.Sprintf("%.2f", t.Entry),
					fmt.Sprintf("%.2f", t.Exit),
					fmt.Sprintf("%.2f", t.Fees),
					output.FormatPnL(t.PnLEst),
					t.ExitTag,
				)
			}
			table.Render()
			output.Println()
			output.Printf("Trades: %d  Net PnL: %s\n", len(trades), output.FormatPnL(total))
			return nil
		},
	})
	return cmd
}
