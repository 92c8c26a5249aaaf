package dashboard

import (
	"fmt"
	"html/template"
	"strings"

	"nse-backtester/internal/report"
)

var indexTemplate = template.Must(template.New("index").Funcs(template.FuncMap{
	"label": report.StrategyLabel,
	"rank":  func(i int) int { return i + 1 },
	"num":   func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"conf":  func(v float64) string { return fmt.Sprintf("%.0f%%", v*100) },
	"targets": func(ts []float64) string {
		parts := make([]string, 0, 3)
		for i, t := range ts {
			if i == 3 {
				break
			}
			parts = append(parts, fmt.Sprintf("%.2f", t))
		}
		return strings.Join(parts, ", ")
	},
	"sideClass": func(side interface{}) string {
		if fmt.Sprint(side) == "BUY" {
			return "buy"
		}
		return "sell"
	},
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>NSE Signal Dashboard</title>
<style>
body { font-family: Arial, sans-serif; margin: 20px; background: #f4f4f9; color: #333; }
.container { max-width: 1200px; margin: auto; }
.cards { display: flex; gap: 16px; margin-bottom: 20px; flex-wrap: wrap; }
.card { background: white; padding: 14px 18px; border-radius: 6px; box-shadow: 0 0 6px rgba(0,0,0,0.08); min-width: 120px; }
.card h3 { margin: 0 0 6px; font-size: 13px; color: #666; }
.card p { margin: 0; font-size: 22px; font-weight: bold; }
table { width: 100%; border-collapse: collapse; background: white; }
th, td { padding: 8px; border-bottom: 1px solid #ddd; text-align: left; font-size: 14px; }
th { background: #f8f8f8; }
.buy { color: green; font-weight: bold; }
.sell { color: red; font-weight: bold; }
#status { margin-left: 12px; color: #555; }
</style>
</head>
<body>
<div class="container">
<h1>NSE Signal Dashboard</h1>
<p>Watchlist: {{if .Generated}}{{.Generated}}{{else}}none yet{{end}}
<button id="refresh" onclick="refresh()">Refresh</button><span id="status">{{.Job.Status}} {{.Job.Message}}</span></p>
<div class="cards">
<div class="card"><h3>Signals</h3><p>{{.Counts.Total}}</p></div>
<div class="card"><h3>Buys</h3><p class="buy">{{.Counts.Buys}}</p></div>
<div class="card"><h3>Sells</h3><p class="sell">{{.Counts.Sells}}</p></div>
{{range $name, $n := .Counts.Strategies}}<div class="card"><h3>{{$name}}</h3><p>{{$n}}</p></div>
{{end}}</div>
<table>
<thead><tr><th>#</th><th>Time</th><th>Symbol</th><th>Strategy</th><th>Side</th><th>Conf</th><th>Entry</th><th>Stop</th><th>Targets</th><th>Reason</th></tr></thead>
<tbody>
{{range $i, $s := .Signals}}<tr><td>{{rank $i}}</td><td>{{$s.Timestamp.Format "15:04"}}</td><td><a href="/chart/{{$s.Symbol}}">{{$s.Symbol}}</a></td><td>{{label $s.Strategy}}</td><td class="{{sideClass $s.Side}}">{{$s.Side}}</td><td>{{conf $s.Confidence}}</td><td>{{num $s.Entry}}</td><td>{{num $s.Stop}}</td><td>{{targets $s.Targets}}</td><td>{{$s.Reasoning}}</td></tr>
{{else}}<tr><td colspan="10">No signals.</td></tr>
{{end}}</tbody>
</table>
</div>
<script>
function show(st) {
  document.getElementById("status").textContent = st.status + " " + (st.message || "");
  document.getElementById("refresh").disabled = st.status === "running";
  if (st.status === "done") { setTimeout(function () { location.reload(); }, 500); }
}
function refresh() {
  fetch("/refresh", {method: "POST"}).then(function (r) { return r.json(); }).then(function (b) {
    if (!b.ok) { document.getElementById("status").textContent = b.message; }
  });
}
(function () {
  var proto = location.protocol === "https:" ? "wss://" : "ws://";
  var ws = new WebSocket(proto + location.host + "/ws");
  var first = true;
  ws.onmessage = function (m) {
    var ev = JSON.parse(m.data);
    if (first) { first = false; if (ev.data.status === "done") { return; } }
    show(ev.data);
  };
})();
</script>
</body>
</html>
`))
