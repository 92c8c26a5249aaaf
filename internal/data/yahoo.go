package data

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	apperrors "nse-backtester/internal/errors"
	"nse-backtester/internal/models"
	"nse-backtester/pkg/utils"
)

// DefaultYahooBaseURL is the public chart endpoint.
const DefaultYahooBaseURL = "https://query1.finance.yahoo.com/v8/finance/chart"

// YahooFetcher downloads intraday bars from the Yahoo Finance chart API.
type YahooFetcher struct {
	BaseURL  string
	Location *time.Location
	Retry    utils.RetryConfig

	client *http.Client
	logger zerolog.Logger
}

// NewYahooFetcher creates a fetcher with a 15 second timeout and default retries.
func NewYahooFetcher(logger zerolog.Logger) *YahooFetcher {
	return &YahooFetcher{
		BaseURL:  DefaultYahooBaseURL,
		Location: utils.IndiaLocation,
		Retry:    utils.DefaultRetryConfig(),
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger,
	}
}

// Fetch returns bars for ticker (e.g. "INFY.NS") at interval over period
// ("5m", "5d"). Bars carry the ticker's bare symbol. Rows with missing
// prices are dropped; missing volume becomes zero.
func (f *YahooFetcher) Fetch(ctx context.Context, ticker, interval, period string) ([]models.MarketBar, error) {
	symbol := SymbolFromTicker(ticker)

	body, err := utils.RetryWithResult(ctx, f.Retry, func() ([]byte, error) {
		b, err := f.get(ctx, ticker, interval, period)
		if err != nil {
			f.logger.Debug().Err(err).Str("ticker", ticker).Msg("Chart request failed")
		}
		return b, err
	})
	if err != nil {
		return nil, apperrors.NewDataError("yahoo", symbol, "fetch "+ticker, err)
	}

	bars, err := parseChart(body, symbol, f.Location)
	if err != nil {
		return nil, apperrors.NewDataError("yahoo", symbol, "parse chart", err)
	}
	if len(bars) == 0 {
		return nil, apperrors.NewDataError("yahoo", symbol, "no data returned for "+ticker, apperrors.ErrDataNotFound)
	}
	return bars, nil
}

func (f *YahooFetcher) get(ctx context.Context, ticker, interval, period string) ([]byte, error) {
	q := url.Values{}
	q.Set("interval", interval)
	q.Set("range", period)
	endpoint := fmt.Sprintf("%s/%s?%s", f.BaseURL, url.PathEscape(ticker), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chart request: status %d", resp.StatusCode)
	}
	return body, nil
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func parseChart(body []byte, symbol string, loc *time.Location) ([]models.MarketBar, error) {
	var resp chartResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	if e := resp.Chart.Error; e != nil {
		return nil, fmt.Errorf("%s: %s", e.Code, e.Description)
	}
	if len(resp.Chart.Result) == 0 || len(resp.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, nil
	}

	res := resp.Chart.Result[0]
	q := res.Indicators.Quote[0]
	at := func(s []*float64, i int) (float64, bool) {
		if i >= len(s) || s[i] == nil {
			return 0, false
		}
		return *s[i], true
	}

	bars := make([]models.MarketBar, 0, len(res.Timestamp))
	for i, sec := range res.Timestamp {
		o, ok1 := at(q.Open, i)
		h, ok2 := at(q.High, i)
		l, ok3 := at(q.Low, i)
		c, ok4 := at(q.Close, i)
		if !(ok1 && ok2 && ok3 && ok4) {
			continue
		}
		v, _ := at(q.Volume, i)

		bar := models.MarketBar{
			Symbol:    symbol,
			Timestamp: time.Unix(sec, 0).In(loc),
			Open:      o,
			High:      h,
			Low:       l,
			Close:     c,
			Volume:    v,
		}
		if ValidateBar(bar) != nil {
			continue
		}
		bars = append(bars, bar)
	}
	return bars, nil
}
