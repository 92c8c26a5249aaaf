package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"nse-backtester/internal/analysis/indicators"
	"nse-backtester/internal/data"
	apperrors "nse-backtester/internal/errors"
	"nse-backtester/internal/models"
	"nse-backtester/internal/report"
	"nse-backtester/pkg/utils"
)

// chartBars is how many recent bars /chart returns.
const chartBars = 100

// chartSMAPeriod is the moving average overlaid on /chart.
const chartSMAPeriod = 20

// watchlist is the signal set the dashboard shows.
type watchlist struct {
	Generated string
	Signals   []models.Signal
}

// loadSignals reads the newest watchlist file, falling back to the newest
// scan in the store.
func (s *Server) loadSignals(ctx context.Context) (watchlist, error) {
	wl, err := report.LoadLatestWatchlist(s.cfg.ReportsDir)
	if err != nil {
		return watchlist{}, err
	}
	if wl != nil {
		return watchlist{Generated: wl.Generated, Signals: wl.Signals}, nil
	}

	if s.cfg.Store != nil {
		scan, err := s.cfg.Store.LatestSignals(ctx)
		if err != nil {
			return watchlist{}, err
		}
		if scan != nil {
			return watchlist{Generated: scan.CreatedAt.In(utils.IndiaLocation).Format("2006-01-02_150405"), Signals: scan.Signals}, nil
		}
	}
	return watchlist{Signals: []models.Signal{}}, nil
}

type indexPage struct {
	Generated string
	Signals   []models.Signal
	Counts    report.Counts
	Job       JobStatus
}

func (s *Server) handleIndex(c *gin.Context) {
	wl, err := s.loadSignals(c.Request.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Load watchlist failed")
		c.String(http.StatusInternalServerError, "load watchlist: %v", err)
		return
	}

	page := indexPage{
		Generated: wl.Generated,
		Signals:   wl.Signals,
		Counts:    report.CountSignals(wl.Signals),
		Job:       s.job.Status(),
	}
	c.Status(http.StatusOK)
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(c.Writer, page); err != nil {
		s.logger.Error().Err(err).Msg("Render index failed")
	}
}

func (s *Server) handleSignals(c *gin.Context) {
	wl, err := s.loadSignals(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	counts := report.CountSignals(wl.Signals)
	var generated interface{}
	if wl.Generated != "" {
		generated = wl.Generated
	}
	c.JSON(http.StatusOK, gin.H{
		"signals":    wl.Signals,
		"generated":  generated,
		"total":      counts.Total,
		"buys":       counts.Buys,
		"sells":      counts.Sells,
		"strategies": counts.Strategies,
	})
}

// chartSeries is the column-oriented bar payload of /chart.
type chartSeries struct {
	Timestamps []string  `json:"timestamps"`
	Open       []float64 `json:"open"`
	High       []float64 `json:"high"`
	Low        []float64 `json:"low"`
	Close      []float64 `json:"close"`
	Volume     []float64 `json:"volume"`
	VWAP       []float64 `json:"vwap,omitempty"`
	SMA        []float64 `json:"sma,omitempty"`
}

func newChartSeries(bars []models.MarketBar) chartSeries {
	cs := chartSeries{
		Timestamps: make([]string, len(bars)),
		Open:       make([]float64, len(bars)),
		High:       make([]float64, len(bars)),
		Low:        make([]float64, len(bars)),
		Close:      make([]float64, len(bars)),
		Volume:     make([]float64, len(bars)),
	}
	for i, b := range bars {
		cs.Timestamps[i] = b.Timestamp.In(utils.IndiaLocation).Format(data.TimestampLayout)
		cs.Open[i] = b.Open
		cs.High[i] = b.High
		cs.Low[i] = b.Low
		cs.Close[i] = b.Close
		cs.Volume[i] = b.Volume
	}
	// Overlays are dropped when the window is too short.
	if vwap, err := indicators.NewVWAP().Calculate(bars); err == nil {
		cs.VWAP = vwap
	}
	if sma, err := indicators.NewSMA(chartSMAPeriod).Calculate(bars); err == nil {
		cs.SMA = sma
	}
	return cs
}

// recentBars returns the last chartBars bars for symbol from the store, or
// from the CSV cache when the store has none.
func (s *Server) recentBars(ctx context.Context, symbol string) ([]models.MarketBar, error) {
	if s.cfg.Store != nil {
		bars, err := s.cfg.Store.LatestBars(ctx, symbol, s.cfg.Interval, chartBars)
		if err != nil {
			return nil, err
		}
		if len(bars) > 0 {
			return bars, nil
		}
	}

	path, err := data.FindCached(s.cfg.CacheDir, symbol, s.cfg.Interval)
	if err != nil {
		return nil, err
	}
	bars, err := data.LoadCSV(path, symbol, utils.IndiaLocation)
	if err != nil {
		return nil, err
	}
	if len(bars) > chartBars {
		bars = bars[len(bars)-chartBars:]
	}
	return bars, nil
}

func (s *Server) handleChart(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))

	bars, err := s.recentBars(c.Request.Context(), symbol)
	if err != nil {
		if errors.Is(err, apperrors.ErrDataNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("No data for %s", symbol)})
			return
		}
		s.logger.Warn().Err(err).Str("symbol", symbol).Msg("Chart data failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(bars) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("No data for %s", symbol)})
		return
	}
	c.JSON(http.StatusOK, newChartSeries(bars))
}

func (s *Server) handleRefresh(c *gin.Context) {
	if s.cfg.Refresh == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "message": "Refresh not configured"})
		return
	}
	if err := s.StartRefresh(); err != nil {
		if errors.Is(err, apperrors.ErrRefreshInProgress) {
			c.JSON(http.StatusConflict, gin.H{"ok": false, "message": "Already running"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "message": "Refresh started"})
}

func (s *Server) handleRefreshStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.job.Status())
}
