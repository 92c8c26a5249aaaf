package report

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	apperrors "nse-backtester/internal/errors"
	"nse-backtester/internal/models"
	"nse-backtester/pkg/utils"
)

// MaxDrawdown returns the largest peak-to-trough fall of the equity curve as a
// positive fraction of the peak. It is 0 for an empty or rising curve.
func MaxDrawdown(curve []models.EquityPoint) float64 {
	var peak, worst float64
	for i, p := range curve {
		if i == 0 || p.Equity > peak {
			peak = p.Equity
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - p.Equity) / peak; dd > worst {
			worst = dd
		}
	}
	return worst
}

const (
	chartWidth  = 960
	chartHeight = 320
	chartPad    = 10
)

// equityPolyline scales the curve into the SVG viewport.
func equityPolyline(curve []models.EquityPoint) string {
	if len(curve) == 0 {
		return ""
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, p := range curve {
		lo = math.Min(lo, p.Equity)
		hi = math.Max(hi, p.Equity)
	}
	span := hi - lo
	if span == 0 {
		span = 1
	}

	xStep := 0.0
	if len(curve) > 1 {
		xStep = float64(chartWidth-2*chartPad) / float64(len(curve)-1)
	}
	pts := make([]string, len(curve))
	for i, p := range curve {
		x := chartPad + float64(i)*xStep
		y := chartPad + (hi-p.Equity)/span*float64(chartHeight-2*chartPad)
		pts[i] = fmt.Sprintf("%.1f,%.1f", x, y)
	}
	return strings.Join(pts, " ")
}

type htmlReport struct {
	Title       string
	Generated   string
	Summary     models.Summary
	MaxDrawdown float64
	Points      string
	Width       int
	Height      int
}

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"inr":   utils.FormatIndianCurrency,
	"pnl":   utils.FormatPnL,
	"num":   func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"pct":   func(v float64) string { return fmt.Sprintf("%.1f%%", v*100) },
	"pct2":  func(v float64) string { return fmt.Sprintf("%.2f%%", v*100) },
	"clock": func(t time.Time) string { return t.Format("2006-01-02 15:04") },
	"pnlClass": func(v float64) string {
		if v > 0 {
			return "win"
		}
		return "loss"
	},
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: Arial, sans-serif; margin: 20px; background-color: #f4f4f9; }
.container { max-width: 1000px; margin: auto; background: white; padding: 20px; border-radius: 8px; box-shadow: 0 0 10px rgba(0,0,0,0.1); }
h1, h2 { color: #333; }
.metrics { display: flex; gap: 20px; flex-wrap: wrap; margin-bottom: 20px; }
.metric { background: #eee; padding: 15px; border-radius: 5px; flex: 1; text-align: center; }
.metric h3 { margin: 0 0 10px; font-size: 14px; color: #666; }
.metric p { margin: 0; font-size: 22px; font-weight: bold; color: #333; }
svg { width: 100%; height: auto; background: #1e1e2e; border-radius: 5px; }
polyline { fill: none; stroke: #4fc3f7; stroke-width: 2; }
table { width: 100%; border-collapse: collapse; margin-top: 20px; }
th, td { padding: 8px; border-bottom: 1px solid #ddd; text-align: left; }
th { background-color: #f8f8f8; }
tr:hover { background-color: #f1f1f1; }
.win { color: green; }
.loss { color: red; }
</style>
</head>
<body>
<div class="container">
<h1>{{.Title}}</h1>
<p>Generated on: {{.Generated}}</p>
<div class="metrics">
<div class="metric"><h3>Final Equity</h3><p>{{inr .Summary.FinalEquity}}</p></div>
<div class="metric"><h3>Total PnL</h3><p>{{pnl .Summary.RealizedPnL}}</p></div>
<div class="metric"><h3>Win Rate</h3><p>{{pct .Summary.WinRate}}</p></div>
<div class="metric"><h3>Max Drawdown</h3><p>{{pct2 .MaxDrawdown}}</p></div>
<div class="metric"><h3>Total Trades</h3><p>{{.Summary.NumTrades}}</p></div>
</div>
<h2>Equity Curve</h2>
{{if .Points}}<svg viewBox="0 0 {{.Width}} {{.Height}}" preserveAspectRatio="none"><polyline points="{{.Points}}"/></svg>{{else}}<p>No equity data.</p>{{end}}
<h2>Trade List</h2>
<table>
<thead><tr><th>Symbol</th><th>Side</th><th>Entry Time</th><th>Exit Time</th><th>Entry</th><th>Exit</th><th>Qty</th><th>PnL</th><th>Exit Tag</th><th>Reason</th></tr></thead>
<tbody>
{{range .Summary.Trades}}<tr><td>{{.Symbol}}</td><td>{{.Side}}</td><td>{{clock .EntryTime}}</td><td>{{clock .ExitTime}}</td><td>{{num .Entry}}</td><td>{{num .Exit}}</td><td>{{.Quantity}}</td><td class="{{pnlClass .PnLEst}}">{{num .PnLEst}}</td><td>{{.ExitTag}}</td><td>{{.Reason}}</td></tr>
{{end}}</tbody>
</table>
</div>
</body>
</html>
`))

// RenderHTML writes a standalone backtest report for summary.
func RenderHTML(w io.Writer, summary models.Summary) error {
	title := "Backtest Performance Report"
	if summary.Symbol != "" {
		title = fmt.Sprintf("%s: %s %s", title, summary.Symbol, StrategyLabel(summary.Strategy))
	}
	data := htmlReport{
		Title:       title,
		Generated:   now().Format("2006-01-02 15:04:05"),
		Summary:     summary,
		MaxDrawdown: MaxDrawdown(summary.EquityCurve),
		Points:      equityPolyline(summary.EquityCurve),
		Width:       chartWidth,
		Height:      chartHeight,
	}
	return reportTemplate.Execute(w, data)
}

// WriteHTML renders the report to path, creating its directory.
func WriteHTML(summary models.Summary, path string) error {
	var buf bytes.Buffer
	if err := RenderHTML(&buf, summary); err != nil {
		return apperrors.Wrap(err, "render report")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return apperrors.Wrap(err, "create reports dir")
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}
