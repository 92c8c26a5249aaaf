// Command trader scans NSE symbols for intraday signals and backtests
// strategies over 5-minute bars.
package main

import (
	"context"
	"fmt"
	"os"

	"nse-backtester/internal/cli"
)

func main() {
	if err := cli.Execute(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
