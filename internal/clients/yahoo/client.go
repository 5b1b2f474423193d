// Package yahoo implements the PriceProvider capability against the
// Yahoo Finance v8 chart API.
package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrNoQuote is returned when the API answers but carries no usable
// price history for the ticker. Callers treat it as "price unknown".
var ErrNoQuote = errors.New("yahoo: no quote available")

// Client for the Yahoo Finance chart endpoint.
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a new Yahoo Finance client.
func NewClient(log zerolog.Logger) *Client {
	return &Client{
		baseURL: "https://query2.finance.yahoo.com/v8/finance/chart",
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log.With().Str("client", "yahoo").Logger(),
	}
}

// chartResponse mirrors the slice of the v8 chart payload we consume.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				RegularMarketTime  int64   `json:"regularMarketTime"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
	} `json:"chart"`
}

// FetchLastClose returns the most recent traded price for a ticker.
func (c *Client) FetchLastClose(ctx context.Context, ticker string) (float64, error) {
	resp, err := c.getChart(ctx, ticker, "1d", "1m")
	if err != nil {
		return 0, err
	}

	price := resp.Chart.Result[0].Meta.RegularMarketPrice
	if price > 0 {
		return price, nil
	}

	// Meta price missing - fall back to the last non-zero close bar.
	closes := c.closes(resp)
	for i := len(closes) - 1; i >= 0; i-- {
		if closes[i] > 0 {
			return closes[i], nil
		}
	}

	// Thinly traded symbols sometimes have no intraday bars at all;
	// retry on the daily range before giving up.
	resp, err = c.getChart(ctx, ticker, "5d", "1d")
	if err != nil {
		return 0, err
	}
	closes = c.closes(resp)
	for i := len(closes) - 1; i >= 0; i-- {
		if closes[i] > 0 {
			return closes[i], nil
		}
	}

	return 0, ErrNoQuote
}

// FetchLastTwoCloses returns the most recent price and the close of
// the previous trading day.
func (c *Client) FetchLastTwoCloses(ctx context.Context, ticker string) (current, previous float64, err error) {
	resp, err := c.getChart(ctx, ticker, "5d", "1d")
	if err != nil {
		return 0, 0, err
	}

	closes := c.closes(resp)

	// Collect the trailing non-zero closes; the chart API pads partial
	// days with zeros.
	var valid []float64
	for _, cl := range closes {
		if cl > 0 {
			valid = append(valid, cl)
		}
	}
	if len(valid) < 2 {
		return 0, 0, ErrNoQuote
	}

	current = valid[len(valid)-1]
	previous = valid[len(valid)-2]

	// Prefer the live meta price for the current leg when available.
	if meta := resp.Chart.Result[0].Meta.RegularMarketPrice; meta > 0 {
		current = meta
	}

	return current, previous, nil
}

// getChart fetches and decodes one chart payload.
func (c *Client) getChart(ctx context.Context, ticker, rng, interval string) (*chartResponse, error) {
	ticker = strings.TrimSpace(ticker)
	if ticker == "" {
		return nil, ErrNoQuote
	}

	u := fmt.Sprintf("%s/%s?range=%s&interval=%s", c.baseURL, url.PathEscape(ticker), rng, interval)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", "foliotrack/1.0")

	c.log.Debug().Str("ticker", ticker).Str("range", rng).Msg("Fetching chart")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chart request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNoQuote
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chart API returned status %d", resp.StatusCode)
	}

	var decoded chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to parse chart response: %w", err)
	}
	if len(decoded.Chart.Result) == 0 {
		return nil, ErrNoQuote
	}

	return &decoded, nil
}

// closes extracts the close series from a decoded payload, tolerating
// missing indicator blocks.
func (c *Client) closes(resp *chartResponse) []float64 {
	r := resp.Chart.Result[0]
	if len(r.Indicators.Quote) == 0 {
		return nil
	}
	return r.Indicators.Quote[0].Close
}
