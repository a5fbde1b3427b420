package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"etrade-trader/internal/errors"
	"etrade-trader/internal/models"
)

// YahooFetcher implements Source using the Yahoo Finance public chart API.
type YahooFetcher struct {
	Client  *http.Client
	BaseURL string
}

// NewYahooFetcher creates a new Yahoo Finance fetcher with optional proxy support.
func NewYahooFetcher(proxyURL string) *YahooFetcher {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &YahooFetcher{
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		BaseURL: "https://query1.finance.yahoo.com",
	}
}

func (f *YahooFetcher) Name() string { return "yahoo" }

// yahooChart is the response structure from the Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol              string  `json:"symbol"`
				RegularMarketPrice  float64 `json:"regularMarketPrice"`
				PreviousClose       float64 `json:"chartPreviousClose"`
				RegularMarketTime   int64   `json:"regularMarketTime"`
				RegularMarketVolume int64   `json:"regularMarketVolume"`
			} `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// FetchQuote fetches the current price for a symbol.
func (f *YahooFetcher) FetchQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=1d", f.BaseURL, url.PathEscape(symbol))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrQuoteUnavailable, "yahoo fetch %s: %v", symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrQuoteUnavailable, "yahoo read body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(errors.ErrQuoteUnavailable, "yahoo: status %d, body: %s", resp.StatusCode, string(body))
	}

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, errors.Wrapf(errors.ErrQuoteUnavailable, "yahoo decode: %v", err)
	}
	if chart.Chart.Error != nil {
		return nil, errors.Wrapf(errors.ErrQuoteUnavailable, "yahoo api error: %s", chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 {
		return nil, errors.Wrapf(errors.ErrQuoteUnavailable, "yahoo: no data for %s", symbol)
	}

	meta := chart.Chart.Result[0].Meta
	if meta.RegularMarketPrice <= 0 {
		return nil, errors.Wrapf(errors.ErrQuoteUnavailable, "yahoo: no price for %s", symbol)
	}

	q := &models.Quote{
		Symbol:    symbol,
		Last:      meta.RegularMarketPrice,
		PrevClose: meta.PreviousClose,
		Volume:    meta.RegularMarketVolume,
		Timestamp: time.Unix(meta.RegularMarketTime, 0),
	}
	if q.PrevClose > 0 {
		q.Change = q.Last - q.PrevClose
		q.ChangePercent = q.Change / q.PrevClose * 100
	}
	if q.Timestamp.IsZero() || meta.RegularMarketTime == 0 {
		q.Timestamp = time.Now()
	}
	return q, nil
}
