package report

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"nse-backtester/internal/models"
	"nse-backtester/pkg/utils"
)

func fixedNow(t *testing.T, ts time.Time) {
	t.Helper()
	prev := now
	now = func() time.Time { return ts }
	t.Cleanup(func() { now = prev })
}

func sampleSignals() []models.Signal {
	ts := time.Date(2026, 2, 17, 9, 35, 0, 0, utils.IndiaLocation)
	return []models.Signal{
		{Symbol: "INFY", Strategy: "orb", Timestamp: ts, Side: models.SideBuy, Entry: 1502.5, Stop: 1490,
			Targets: []float64{1521.25, 1530, 1540, 1550}, Confidence: 0.7, Reasoning: "ORB Buy: Close 1502.50 > Range High 1499.00"},
		{Symbol: "TCS", Strategy: "vwap", Timestamp: ts.Add(10 * time.Minute), Side: models.SideSell, Entry: 4000, Stop: 4012,
			Targets: []float64{3982}, Confidence: 0.6, Reasoning: "VWAP breakdown"},
		{Symbol: "SBIN", Timestamp: ts, Side: models.SideBuy, Entry: 700, Stop: 693, Confidence: 0.5},
	}
}

func TestStrategyLabel(t *testing.T) {
	tests := map[string]string{
		"mean_reversion": "Mean Reversion",
		"orb":            "Orb",
		"vwap":           "Vwap",
	}
	for in, want := range tests {
		if got := StrategyLabel(in); got != want {
			t.Errorf("StrategyLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSaveWatchlistAndLoadLatest(t *testing.T) {
	dir := t.TempDir()

	fixedNow(t, time.Date(2026, 2, 17, 9, 40, 0, 0, utils.IndiaLocation))
	if _, err := SaveWatchlist(sampleSignals()[:1], dir); err != nil {
		t.Fatal(err)
	}

	fixedNow(t, time.Date(2026, 2, 17, 15, 5, 9, 0, utils.IndiaLocation))
	path, err := SaveWatchlist(sampleSignals(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != "watchlist_2026-02-17_150509.json" {
		t.Errorf("path = %s", path)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var decoded []map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded[0]["timestamp"] != "2026-02-17T09:35:00+05:30" || decoded[0]["side"] != "BUY" {
		t.Errorf("first entry = %v", decoded[0])
	}

	wl, err := LoadLatestWatchlist(dir)
	if err != nil {
		t.Fatal(err)
	}
	if wl == nil || wl.Generated != "2026-02-17_150509" || len(wl.Signals) != 3 {
		t.Fatalf("latest watchlist = %+v", wl)
	}
	if wl.Signals[1].Meta.VWAP != 0 || wl.Signals[1].Stop != 4012 {
		t.Errorf("decoded signal = %+v", wl.Signals[1])
	}
}

func TestLoadLatestWatchlistEmptyDir(t *testing.T) {
	wl, err := LoadLatestWatchlist(t.TempDir())
	if err != nil || wl != nil {
		t.Errorf("got %v, %v; want nil, nil", wl, err)
	}
}

func TestWriteWatchlistTable(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteWatchlistTable(&buf, sampleSignals()); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(buf.String(), "\n")
	if len(lines) != 5 {
		t.Fatalf("lines = %d, want header, rule and 3 rows", len(lines))
	}
	if lines[0] != "RANK | TIME | SYMBOL | SIDE | CONF | ENTRY | STOP | TARGETS | REASON" {
		t.Errorf("header = %q", lines[0])
	}
	want := "   1 | 09:35 | INFY       | BUY  | 0.70 |    1502.50 |    1490.00 | 1521.25,1530.00,1540.00 | ORB Buy: Close 1502.50 > Range High 1499.00"
	if lines[2] != want {
		t.Errorf("row 1 =\n%q\nwant\n%q", lines[2], want)
	}
	if !strings.HasPrefix(lines[4], "   3 | 09:35 | SBIN") {
		t.Errorf("row 3 = %q", lines[4])
	}
}

func TestSaveWatchlistTable(t *testing.T) {
	fixedNow(t, time.Date(2026, 2, 17, 10, 0, 0, 0, utils.IndiaLocation))
	path, err := SaveWatchlistTable(sampleSignals(), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Ext(path) != ".txt" {
		t.Errorf("path = %s", path)
	}
}

func TestCountSignals(t *testing.T) {
	c := CountSignals(sampleSignals())
	if c.Total != 3 || c.Buys != 2 || c.Sells != 1 {
		t.Errorf("counts = %+v", c)
	}
	if c.Strategies["Orb"] != 1 || c.Strategies["Vwap"] != 1 || c.Strategies["UNKNOWN"] != 1 {
		t.Errorf("strategies = %v", c.Strategies)
	}
}

func TestMaxDrawdown(t *testing.T) {
	curve := func(vals ...float64) []models.EquityPoint {
		out := make([]models.EquityPoint, len(vals))
		for i, v := range vals {
			out[i] = models.EquityPoint{Equity: v}
		}
		return out
	}

	tests := []struct {
		name  string
		curve []models.EquityPoint
		want  float64
	}{
		{"empty", nil, 0},
		{"rising", curve(100, 101, 105), 0},
		{"single dip", curve(100, 90, 95), 0.10},
		{"deepest after new peak", curve(100, 95, 120, 90, 130), 0.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaxDrawdown(tt.curve); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("MaxDrawdown = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWriteHTML(t *testing.T) {
	fixedNow(t, time.Date(2026, 2, 17, 16, 0, 0, 0, utils.IndiaLocation))
	ts := time.Date(2026, 2, 17, 10, 0, 0, 0, utils.IndiaLocation)
	summary := models.Summary{
		Symbol:      "INFY",
		Strategy:    "mean_reversion",
		FinalEquity: 100500,
		RealizedPnL: 500,
		NumTrades:   1,
		WinRate:     1,
		Trades: []models.TradeRecord{
			{Symbol: "INFY", Side: models.SideBuy, Entry: 1500, Exit: 1505, Quantity: 100, PnLEst: 500,
				ExitTag: models.TagEODSquareOff, Reason: "<b>fade</b>", EntryTime: ts, ExitTime: ts.Add(5 * time.Hour)},
		},
		EquityCurve: []models.EquityPoint{
			{Timestamp: ts, Equity: 100000},
			{Timestamp: ts.Add(time.Hour), Equity: 99000},
			{Timestamp: ts.Add(2 * time.Hour), Equity: 100500},
		},
	}

	path := filepath.Join(t.TempDir(), "reports", "bt.html")
	if err := WriteHTML(summary, path); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	html := string(raw)

	for _, want := range []string{
		"Backtest Performance Report: INFY Mean Reversion",
		"₹1,00,500.00",
		"+₹500.00",
		"100.0%",
		"1.00%",
		"<polyline points=",
		`class="win"`,
		"eod_squareoff",
		"&lt;b&gt;fade&lt;/b&gt;",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("report missing %q", want)
		}
	}
}
