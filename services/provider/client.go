// Package provider implements the HTTP client for the price data provider.
// The provider serves per-symbol OHLC history keyed by formatted timestamp;
// the engine reads only the Close column.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/eonurk/finance-bro/models"
)

const DefaultTimeout = 15 * time.Second

// Client fetches close histories from the price data provider.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a provider client against baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// symbolPayload mirrors the provider's per-symbol response with
// getAll=false&index=Close: history maps "2006-01-02 15:04:05" keys to a
// single-column row.
type symbolPayload struct {
	History map[string]struct {
		Close *float64 `json:"Close"`
	} `json:"history"`
}

// FetchHistory requests close history for every symbol in one call and
// returns chronologically sorted series. Symbols whose history is missing
// or entirely malformed are omitted from the result rather than failing
// the batch.
func (c *Client) FetchHistory(ctx context.Context, symbols []string, period models.Period) (map[string]models.PriceSeries, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("%w: no symbols requested", models.ErrConfiguration)
	}

	endpoint := fmt.Sprintf("%s/api/stock/%s", c.baseURL, url.PathEscape(strings.Join(symbols, ",")))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", models.ErrFetch, err)
	}
	q := req.URL.Query()
	q.Set("period", string(period))
	q.Set("getAll", "false")
	q.Set("index", "Close")
	req.URL.RawQuery = q.Encode()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrFetch, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", models.ErrFetch, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: provider returned %d: %s", models.ErrFetch, resp.StatusCode, truncate(body, 200))
	}

	var payload map[string]symbolPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", models.ErrFetch, err)
	}

	result := make(map[string]models.PriceSeries, len(symbols))
	for _, symbol := range symbols {
		entry, ok := payload[symbol]
		if !ok || len(entry.History) == 0 {
			log.Printf("Warning: no history for %s in provider response", symbol)
			continue
		}
		series := parseHistory(symbol, entry)
		if len(series) > 0 {
			result[symbol] = series
		}
	}
	return result, nil
}

// parseHistory converts a history map into an ascending PriceSeries,
// dropping rows with unparseable timestamps or non-finite closes.
func parseHistory(symbol string, entry symbolPayload) models.PriceSeries {
	series := make(models.PriceSeries, 0, len(entry.History))
	for key, row := range entry.History {
		ts, err := time.Parse(models.TimestampLayout, key)
		if err != nil {
			log.Printf("Warning: %s: skipping unparseable timestamp %q", symbol, key)
			continue
		}
		if row.Close == nil || math.IsNaN(*row.Close) || math.IsInf(*row.Close, 0) {
			continue
		}
		series = append(series, models.PricePoint{Timestamp: ts, Close: *row.Close})
	}
	sort.Slice(series, func(i, j int) bool {
		return series[i].Timestamp.Before(series[j].Timestamp)
	})
	return series
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
