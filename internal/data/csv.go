// Package data loads and stores intraday bars: CSV files, the universe list,
// the on-disk cache layout and the remote chart fetcher.
package data

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	apperrors "nse-backtester/internal/errors"
	"nse-backtester/internal/models"
	"nse-backtester/pkg/utils"
)

// TimestampLayout is the zone-less ISO-8601 layout bar files are written in.
const TimestampLayout = "2006-01-02T15:04:05"

var timestampLayouts = []string{
	TimestampLayout,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// csvBar is one row of a bar file.
type csvBar struct {
	Timestamp string  `csv:"timestamp"`
	Open      float64 `csv:"open"`
	High      float64 `csv:"high"`
	Low       float64 `csv:"low"`
	Close     float64 `csv:"close"`
	Volume    float64 `csv:"volume"`
}

// LoadCSV reads bars for symbol from a CSV file with the header
// timestamp,open,high,low,close,volume. Timestamps without a zone are read in
// loc (IST when nil). Bars are returned in ascending timestamp order.
func LoadCSV(path, symbol string, loc *time.Location) ([]models.MarketBar, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NewDataError("csv", symbol, "file not found: "+path, apperrors.ErrDataNotFound)
		}
		return nil, apperrors.NewDataError("csv", symbol, "open "+path, err)
	}
	defer f.Close()

	return ReadBars(f, symbol, loc)
}

// ReadBars decodes CSV bars from r. See LoadCSV.
func ReadBars(r io.Reader, symbol string, loc *time.Location) ([]models.MarketBar, error) {
	if loc == nil {
		loc = utils.IndiaLocation
	}

	var rows []*csvBar
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, apperrors.NewDataError("csv", symbol, "decode", fmt.Errorf("%w: %v", apperrors.ErrMalformedBar, err))
	}

	bars := make([]models.MarketBar, 0, len(rows))
	for i, row := range rows {
		// header is line 1
		line := i + 2
		ts, err := ParseTimestamp(row.Timestamp, loc)
		if err != nil {
			return nil, apperrors.NewDataError("csv", symbol, fmt.Sprintf("line %d", line), fmt.Errorf("%w: %v", apperrors.ErrMalformedBar, err))
		}
		bar := models.MarketBar{
			Symbol:    symbol,
			Timestamp: ts,
			Open:      row.Open,
			High:      row.High,
			Low:       row.Low,
			Close:     row.Close,
			Volume:    row.Volume,
		}
		if err := ValidateBar(bar); err != nil {
			return nil, apperrors.NewDataError("csv", symbol, fmt.Sprintf("line %d", line), err)
		}
		bars = append(bars, bar)
	}

	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Timestamp.Before(bars[j].Timestamp)
	})
	return bars, nil
}

// ParseTimestamp parses an ISO-8601 timestamp. Zone-less values are read in loc;
// values carrying an offset are converted to loc.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// ValidateBar checks that a bar's prices are finite and positive, its range
// is consistent and its volume is not negative.
func ValidateBar(b models.MarketBar) error {
	for _, v := range []float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite value", apperrors.ErrMalformedBar)
		}
	}
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return fmt.Errorf("%w: non-positive price", apperrors.ErrMalformedBar)
	}
	if b.High < b.Low {
		return fmt.Errorf("%w: high %.2f below low %.2f", apperrors.ErrMalformedBar, b.High, b.Low)
	}
	if b.Volume < 0 {
		return fmt.Errorf("%w: negative volume", apperrors.ErrMalformedBar)
	}
	return nil
}

// WriteBars encodes bars as CSV with zone-less timestamps in loc (IST when nil).
func WriteBars(w io.Writer, bars []models.MarketBar, loc *time.Location) error {
	if loc == nil {
		loc = utils.IndiaLocation
	}
	rows := make([]*csvBar, 0, len(bars))
	for _, b := range bars {
		rows = append(rows, &csvBar{
			Timestamp: b.Timestamp.In(loc).Format(TimestampLayout),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}
	return gocsv.Marshal(rows, w)
}

// SaveCSV writes bars to path, creating its directory. The file is replaced
// atomically so readers never see a partial write.
func SaveCSV(path string, bars []models.MarketBar, loc *time.Location) error {
	var buf bytes.Buffer
	if err := WriteBars(&buf, bars, loc); err != nil {
		return fmt.Errorf("encode bars: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	return os.Rename(tmp, path)
}
