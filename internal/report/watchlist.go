// Package report renders engine output: ranked watchlists and backtest reports.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	apperrors "nse-backtester/internal/errors"
	"nse-backtester/internal/models"
)

// now is replaced in tests.
var now = time.Now

const fileStampLayout = "2006-01-02_150405"

// WatchlistGlob matches watchlist JSON files in a reports directory.
const WatchlistGlob = "watchlist_*.json"

var titleCaser = cases.Title(language.English)

// StrategyLabel turns a strategy name such as "mean_reversion" into "Mean Reversion".
func StrategyLabel(name string) string {
	return titleCaser.String(strings.ReplaceAll(name, "_", " "))
}

// SaveWatchlist writes signals as indented JSON to
// <dir>/watchlist_YYYY-MM-DD_HHMMSS.json and returns the path.
func SaveWatchlist(signals []models.Signal, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create reports dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("watchlist_%s.json", now().Format(fileStampLayout)))

	if signals == nil {
		signals = []models.Signal{}
	}
	data, err := json.MarshalIndent(signals, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode watchlist: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write watchlist: %w", err)
	}
	return path, nil
}

// SaveWatchlistTable writes the signals as a fixed-width text table next to
// the JSON watchlist and returns the path.
func SaveWatchlistTable(signals []models.Signal, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create reports dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("watchlist_%s.txt", now().Format(fileStampLayout)))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create watchlist table: %w", err)
	}
	defer f.Close()

	if err := WriteWatchlistTable(f, signals); err != nil {
		return "", err
	}
	return path, nil
}

// WriteWatchlistTable renders one ranked row per signal, showing at most three targets.
func WriteWatchlistTable(w io.Writer, signals []models.Signal) error {
	var b strings.Builder
	b.WriteString("RANK | TIME | SYMBOL | SIDE | CONF | ENTRY | STOP | TARGETS | REASON\n")
	b.WriteString(strings.Repeat("-", 150))

	for i, s := range signals {
		targets := s.Targets
		if len(targets) > 3 {
			targets = targets[:3]
		}
		parts := make([]string, len(targets))
		for j, t := range targets {
			parts[j] = fmt.Sprintf("%.2f", t)
		}

		fmt.Fprintf(&b, "\n%4d | %s | %-10s | %-4s | %4.2f | %10.2f | %10.2f | %-18s | %s",
			i+1, s.Timestamp.Format("15:04"), s.Symbol, s.Side, s.Confidence,
			s.Entry, s.Stop, strings.Join(parts, ","), s.Reasoning)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// Watchlist is a saved watchlist file.
type Watchlist struct {
	Path      string
	Generated string
	Signals   []models.Signal
}

// LoadLatestWatchlist reads the newest watchlist JSON in dir. It returns nil
// without error when there is none.
func LoadLatestWatchlist(dir string) (*Watchlist, error) {
	files, err := filepath.Glob(filepath.Join(dir, WatchlistGlob))
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, nil
	}
	sort.Strings(files)
	latest := files[len(files)-1]

	data, err := os.ReadFile(latest)
	if err != nil {
		return nil, apperrors.Wrap(err, "read watchlist")
	}
	var signals []models.Signal
	if err := json.Unmarshal(data, &signals); err != nil {
		return nil, apperrors.Wrapf(err, "decode %s", filepath.Base(latest))
	}

	name := filepath.Base(latest)
	generated := strings.TrimSuffix(strings.TrimPrefix(name, "watchlist_"), ".json")
	return &Watchlist{Path: latest, Generated: generated, Signals: signals}, nil
}

// Counts summarises a watchlist by side and strategy.
type Counts struct {
	Total      int            `json:"total"`
	Buys       int            `json:"buys"`
	Sells      int            `json:"sells"`
	Strategies map[string]int `json:"strategies"`
}

// CountSignals tallies signals by side and strategy. Signals without a
// strategy are counted as UNKNOWN.
func CountSignals(signals []models.Signal) Counts {
	c := Counts{Total: len(signals), Strategies: make(map[string]int)}
	for _, s := range signals {
		if s.Side == models.SideBuy {
			c.Buys++
		} else {
			c.Sells++
		}
		name := "UNKNOWN"
		if s.Strategy != "" {
			name = StrategyLabel(s.Strategy)
		}
		c.Strategies[name]++
	}
	return c
}
