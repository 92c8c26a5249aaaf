package cli

import (
	"github.com/spf13/cobra"
)

func newExamplesCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "examples",
		Short:       "Show common workflow examples",
		Annotations: map[string]string{annotationConfigOptional: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			output.Bold("Common Workflow Examples")
			output.Println()

			examples := []struct {
				title    string
				commands []string
			}{
				{
					title: "Morning Watchlist",
					commands: []string{
						"trader fetch                        # Download the universe into the cache",
						"trader scan                         # All strategies, latest signal per symbol",
						"trader dashboard                    # Browse it at http://127.0.0.1:5000",
					},
				},
				{
					title: "Single Symbol",
					commands: []string{
						"trader fetch INFY --out datasets/INFY_5m.csv",
						"trader signal --data datasets/INFY_5m.csv --symbol INFY",
						"trader backtest --symbol INFY --strategy orb --orb-minutes 30",
					},
				},
				{
					title: "Compare Strategies",
					commands: []string{
						"trader backtest --symbol RELIANCE --strategy all",
						"trader runs --symbol RELIANCE      # Recorded runs, newest first",
						"trader runs show <run-id>          # Trades of one run",
					},
				},
				{
					title: "Configuration",
					commands: []string{
						"trader config show",
						"trader config validate",
						"NSEBT_EXECUTION_SLIPPAGE_BPS=0 trader backtest --symbol TCS",
					},
				},
			}

			for _, ex := range examples {
				output.Info("%s", ex.title)
				for _, c := range ex.commands {
					output.Printf("  %s\n", c)
				}
				output.Println()
			}
			return nil
		},
	}
}
