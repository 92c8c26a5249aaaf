package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"nse-backtester/internal/data"
	"nse-backtester/internal/models"
	"nse-backtester/internal/report"
	"nse-backtester/internal/store"
	"nse-backtester/pkg/utils"
)

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	if cfg.ReportsDir == "" {
		cfg.ReportsDir = t.TempDir()
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = t.TempDir()
	}
	cfg.Logger = zerolog.Nop()
	s := NewServer(cfg)
	t.Cleanup(s.Close)
	return s
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "dash.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func do(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func bars(symbol string, n int) []models.MarketBar {
	start := time.Date(2026, 3, 2, 9, 15, 0, 0, utils.IndiaLocation)
	out := make([]models.MarketBar, n)
	for i := range out {
		px := 1500 + float64(i)
		out[i] = models.MarketBar{
			Symbol: symbol, Timestamp: start.Add(time.Duration(i) * 5 * time.Minute),
			Open: px, High: px + 2, Low: px - 2, Close: px + 1, Volume: 1000,
		}
	}
	return out
}

func signals() []models.Signal {
	ts := time.Date(2026, 3, 2, 9, 35, 0, 0, utils.IndiaLocation)
	return []models.Signal{
		{Symbol: "INFY", Strategy: "orb", Timestamp: ts, Side: models.SideBuy, Entry: 1502.5, Stop: 1490, Confidence: 0.7, Reasoning: "range break"},
		{Symbol: "TCS", Strategy: "vwap", Timestamp: ts, Side: models.SideSell, Entry: 4000, Stop: 4012, Confidence: 0.6},
	}
}

func waitStatus(t *testing.T, s *Server, want JobState) JobStatus {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if st := s.Job().Status(); st.Status == want {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job never reached %s, last %+v", want, s.Job().Status())
	return JobStatus{}
}

func TestSignalsFromWatchlist(t *testing.T) {
	s := newTestServer(t, Config{})
	if _, err := report.SaveWatchlist(signals(), s.cfg.ReportsDir); err != nil {
		t.Fatal(err)
	}

	w := do(t, s, http.MethodGet, "/signals")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Signals    []models.Signal `json:"signals"`
		Generated  *string         `json:"generated"`
		Total      int             `json:"total"`
		Buys       int             `json:"buys"`
		Sells      int             `json:"sells"`
		Strategies map[string]int  `json:"strategies"`
	}
	decode(t, w, &body)
	if body.Total != 2 || body.Buys != 1 || body.Sells != 1 || len(body.Signals) != 2 {
		t.Errorf("body = %+v", body)
	}
	if body.Generated == nil || *body.Generated == "" {
		t.Error("generated missing")
	}
	if body.Strategies["Orb"] != 1 || body.Strategies["Vwap"] != 1 {
		t.Errorf("strategies = %v", body.Strategies)
	}
}

func TestSignalsEmpty(t *testing.T) {
	s := newTestServer(t, Config{})
	w := do(t, s, http.MethodGet, "/signals")
	if !strings.Contains(w.Body.String(), `"generated":null`) || !strings.Contains(w.Body.String(), `"signals":[]`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestSignalsFallBackToStore(t *testing.T) {
	st := newTestStore(t)
	if _, err := st.SaveSignals(context.Background(), signals()); err != nil {
		t.Fatal(err)
	}
	s := newTestServer(t, Config{Store: st})

	var body struct {
		Total   int             `json:"total"`
		Signals []models.Signal `json:"signals"`
	}
	decode(t, do(t, s, http.MethodGet, "/signals"), &body)
	if body.Total != 2 || body.Signals[0].Symbol != "INFY" {
		t.Errorf("body = %+v", body)
	}
}

func TestChartFromCache(t *testing.T) {
	s := newTestServer(t, Config{})
	path, err := data.CachePath(s.cfg.CacheDir, "INFY.NS", "5m")
	if err != nil {
		t.Fatal(err)
	}
	if err := data.SaveCSV(path, bars("INFY", 120), utils.IndiaLocation); err != nil {
		t.Fatal(err)
	}

	w := do(t, s, http.MethodGet, "/chart/infy")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var cs chartSeries
	decode(t, w, &cs)
	if len(cs.Timestamps) != 100 || len(cs.Close) != 100 {
		t.Fatalf("got %d bars, want 100", len(cs.Timestamps))
	}
	if cs.Timestamps[99] != "2026-03-02T19:10:00" || cs.Close[99] != 1620 {
		t.Errorf("last bar = %s %v", cs.Timestamps[99], cs.Close[99])
	}
	if cs.Timestamps[0] != "2026-03-02T10:55:00" {
		t.Errorf("first bar = %s", cs.Timestamps[0])
	}
	if len(cs.VWAP) != 100 || len(cs.SMA) != 100 {
		t.Errorf("overlays: vwap=%d sma=%d, want 100 each", len(cs.VWAP), len(cs.SMA))
	}
}

func TestChartFromStore(t *testing.T) {
	st := newTestStore(t)
	if err := st.SaveBars(context.Background(), "5m", bars("TCS", 5)); err != nil {
		t.Fatal(err)
	}
	s := newTestServer(t, Config{Store: st})

	var cs chartSeries
	decode(t, do(t, s, http.MethodGet, "/chart/TCS"), &cs)
	if len(cs.Open) != 5 || cs.Timestamps[0] != "2026-03-02T09:15:00" {
		t.Errorf("series = %+v", cs)
	}
	if len(cs.VWAP) != 5 || cs.SMA != nil {
		t.Errorf("overlays: vwap=%d sma=%d, want 5 and none", len(cs.VWAP), len(cs.SMA))
	}
}

func TestChartMissing(t *testing.T) {
	s := newTestServer(t, Config{Store: newTestStore(t)})
	w := do(t, s, http.MethodGet, "/chart/NOPE")
	if w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), "No data for NOPE") {
		t.Errorf("got %d %s", w.Code, w.Body.String())
	}
}

func TestRefreshLifecycle(t *testing.T) {
	release := make(chan struct{})
	s := newTestServer(t, Config{Refresh: func(ctx context.Context, progress func(string)) (string, error) {
		progress("Generating signals...")
		<-release
		return "Signals updated!", nil
	}})

	if w := do(t, s, http.MethodPost, "/refresh"); w.Code != http.StatusOK {
		t.Fatalf("first refresh = %d", w.Code)
	}
	if w := do(t, s, http.MethodPost, "/refresh"); w.Code != http.StatusConflict {
		t.Errorf("second refresh = %d, want 409", w.Code)
	}

	var running JobStatus
	decode(t, do(t, s, http.MethodGet, "/refresh/status"), &running)
	if running.Status != JobRunning || running.StartedAt == nil || running.FinishedAt != nil {
		t.Errorf("running status = %+v", running)
	}

	close(release)
	done := waitStatus(t, s, JobDone)
	if done.Message != "Signals updated!" || done.FinishedAt == nil {
		t.Errorf("done status = %+v", done)
	}

	// A finished job can run again.
	release = make(chan struct{})
	close(release)
	if w := do(t, s, http.MethodPost, "/refresh"); w.Code != http.StatusOK {
		t.Errorf("refresh after done = %d", w.Code)
	}
	waitStatus(t, s, JobDone)
}

func TestRefreshError(t *testing.T) {
	s := newTestServer(t, Config{Refresh: func(context.Context, func(string)) (string, error) {
		return "", errors.New("yahoo unreachable")
	}})
	do(t, s, http.MethodPost, "/refresh")
	st := waitStatus(t, s, JobError)
	if st.Message != "yahoo unreachable" {
		t.Errorf("message = %q", st.Message)
	}
}

func TestRefreshNotConfigured(t *testing.T) {
	s := newTestServer(t, Config{})
	if w := do(t, s, http.MethodPost, "/refresh"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", w.Code)
	}
}

func TestIndexAndMetrics(t *testing.T) {
	s := newTestServer(t, Config{})
	if _, err := report.SaveWatchlist(signals(), s.cfg.ReportsDir); err != nil {
		t.Fatal(err)
	}

	w := do(t, s, http.MethodGet, "/")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `<a href="/chart/INFY">INFY</a>`) {
		t.Errorf("index = %d %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "Vwap") {
		t.Error("strategy label missing")
	}

	if w := do(t, s, http.MethodGet, "/metrics"); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Errorf("metrics = %d", w.Code)
	}
}

func TestWebSocketPushesJobStatus(t *testing.T) {
	release := make(chan struct{})
	s := newTestServer(t, Config{Refresh: func(ctx context.Context, progress func(string)) (string, error) {
		<-release
		return "ok", nil
	}})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	type event struct {
		Topic string    `json:"topic"`
		Data  JobStatus `json:"data"`
	}
	var ev event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatal(err)
	}
	if ev.Data.Status != JobIdle {
		t.Errorf("snapshot = %+v", ev)
	}

	// The handler subscribes before sending the snapshot, so later events reach it.
	if err := s.StartRefresh(); err != nil {
		t.Fatal(err)
	}
	close(release)

	var seen []JobState
	for len(seen) == 0 || seen[len(seen)-1] != JobDone {
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("after %v: %v", seen, err)
		}
		seen = append(seen, ev.Data.Status)
	}
	if seen[0] != JobRunning || ev.Topic != "refresh" {
		t.Errorf("events = %v", seen)
	}
}

func TestJob(t *testing.T) {
	var snaps []JobStatus
	j := NewJob(func(s JobStatus) { snaps = append(snaps, s) })

	j.Progress("ignored while idle")
	j.Finish("ignored", nil)
	if len(snaps) != 0 {
		t.Fatalf("idle job published %v", snaps)
	}

	if err := j.Begin("start"); err != nil {
		t.Fatal(err)
	}
	if err := j.Begin("again"); err == nil {
		t.Error("second Begin succeeded")
	}
	j.Progress("half way")
	j.Finish("", errors.New(strings.Repeat("x", 400)))

	st := j.Status()
	if st.Status != JobError || len(st.Message) != maxJobMessage {
		t.Errorf("status = %s, message length %d", st.Status, len(st.Message))
	}
	if len(snaps) != 3 || snaps[1].Message != "half way" {
		t.Errorf("snapshots = %+v", snaps)
	}
}

func TestJobTruncatesMultibyteErrors(t *testing.T) {
	j := NewJob(nil)
	if err := j.Begin("start"); err != nil {
		t.Fatal(err)
	}
	// One ASCII byte shifts every rupee sign off a byte boundary at 300.
	j.Finish("", errors.New("x"+strings.Repeat("₹", 400)))

	msg := j.Status().Message
	if !utf8.ValidString(msg) {
		t.Fatalf("message is not valid UTF-8: %q", msg[len(msg)-4:])
	}
	if n := utf8.RuneCountInString(msg); n != maxJobMessage {
		t.Errorf("message has %d characters, want %d", n, maxJobMessage)
	}

	data, err := json.Marshal(j.Status())
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), `\ufffd`) {
		t.Errorf("json carries a replacement character: %s", data[len(data)-40:])
	}
}
