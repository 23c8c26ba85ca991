package scanner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/eonurk/finance-bro/models"
)

// crossingSeries builds a series whose close dips under its 14-bar SMA and
// then jumps above it, producing exactly one buy for the SMA rule at the
// final index.
func crossingSeries(base time.Time) models.PriceSeries {
	closes := make([]float64, 16)
	for i := 0; i < 14; i++ {
		closes[i] = 10
	}
	closes[14] = 9
	closes[15] = 12

	series := make(models.PriceSeries, len(closes))
	for i, c := range closes {
		series[i] = models.PricePoint{Timestamp: base.Add(time.Duration(i) * time.Hour), Close: c}
	}
	return series
}

type fakeFetcher struct {
	mu      sync.Mutex
	calls   int
	dataset map[string]models.PriceSeries
	err     error
}

func (f *fakeFetcher) FetchHistory(_ context.Context, _ []string, _ models.Period) (map[string]models.PriceSeries, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.dataset, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeFetcher) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type capturePublisher struct {
	mu    sync.Mutex
	feeds [][]models.NotificationRecord
}

func (p *capturePublisher) PublishFeed(records []models.NotificationRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.feeds = append(p.feeds, records)
}

func baseConfig() Config {
	return Config{
		Symbols:    []string{"AAPL"},
		Period:     models.Period1M,
		Indicators: []models.Indicator{models.IndicatorSMA},
		Interval:   time.Minute,
		Staleness:  time.Hour,
	}
}

func newTestScanner(t *testing.T, fetcher Fetcher, cfg Config, publisher FeedPublisher) *Scanner {
	t.Helper()
	s, err := New(fetcher, cfg, publisher, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestScanProducesFeed(t *testing.T) {
	base := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	fetcher := &fakeFetcher{dataset: map[string]models.PriceSeries{"AAPL": crossingSeries(base)}}
	publisher := &capturePublisher{}
	s := newTestScanner(t, fetcher, baseConfig(), publisher)

	if err := s.RunNow(); err != nil {
		t.Fatalf("RunNow: %v", err)
	}

	records, status := s.Feed()
	if len(records) != 1 {
		t.Fatalf("feed: got %d records, want 1 (%v)", len(records), records)
	}
	rec := records[0]
	if rec.Symbol != "AAPL" || rec.Indicator != models.IndicatorSMA || rec.Kind != models.SignalBuy {
		t.Errorf("record: got %+v", rec)
	}
	if rec.ID == "" {
		t.Errorf("record has empty ID")
	}
	if !rec.IsNew {
		t.Errorf("first scan records should be flagged new")
	}
	if status.LastError != "" || status.LastScanAt.IsZero() {
		t.Errorf("status: got %+v", status)
	}

	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	if len(publisher.feeds) != 1 || len(publisher.feeds[0]) != 1 {
		t.Errorf("publisher: got %v", publisher.feeds)
	}
}

func TestUnchangedParametersFetchOnce(t *testing.T) {
	base := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	fetcher := &fakeFetcher{dataset: map[string]models.PriceSeries{"AAPL": crossingSeries(base)}}
	s := newTestScanner(t, fetcher, baseConfig(), nil)

	for i := 0; i < 3; i++ {
		if err := s.RunNow(); err != nil {
			t.Fatalf("RunNow %d: %v", i, err)
		}
	}
	if got := fetcher.callCount(); got != 1 {
		t.Errorf("fetch calls: got %d, want 1 within staleness window", got)
	}
}

func TestParameterChangeInvalidatesCache(t *testing.T) {
	base := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	fetcher := &fakeFetcher{dataset: map[string]models.PriceSeries{"AAPL": crossingSeries(base)}}
	s := newTestScanner(t, fetcher, baseConfig(), nil)

	if err := s.RunNow(); err != nil {
		t.Fatalf("RunNow: %v", err)
	}

	// Adding an indicator changes the enabled set.
	cfg := s.Config()
	cfg.Indicators = []models.Indicator{models.IndicatorSMA, models.IndicatorEMA}
	if err := s.UpdateConfig(cfg); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	if err := s.RunNow(); err != nil {
		t.Fatalf("RunNow after indicator change: %v", err)
	}
	if got := fetcher.callCount(); got != 2 {
		t.Fatalf("fetch calls after indicator change: got %d, want 2", got)
	}

	// Reordering the same set must not refetch: comparison is unordered.
	cfg.Indicators = []models.Indicator{models.IndicatorEMA, models.IndicatorSMA}
	if err := s.UpdateConfig(cfg); err != nil {
		t.Fatalf("UpdateConfig reorder: %v", err)
	}
	if err := s.RunNow(); err != nil {
		t.Fatalf("RunNow after reorder: %v", err)
	}
	if got := fetcher.callCount(); got != 2 {
		t.Errorf("fetch calls after reorder: got %d, want 2", got)
	}

	// A different period forces a refetch.
	cfg.Period = models.Period1Y
	if err := s.UpdateConfig(cfg); err != nil {
		t.Fatalf("UpdateConfig period: %v", err)
	}
	if err := s.RunNow(); err != nil {
		t.Fatalf("RunNow after period change: %v", err)
	}
	if got := fetcher.callCount(); got != 3 {
		t.Errorf("fetch calls after period change: got %d, want 3", got)
	}
}

func TestFetchFailureKeepsPreviousFeed(t *testing.T) {
	base := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	fetcher := &fakeFetcher{dataset: map[string]models.PriceSeries{"AAPL": crossingSeries(base)}}
	cfg := baseConfig()
	cfg.Staleness = time.Nanosecond // force a fetch every cycle
	s := newTestScanner(t, fetcher, cfg, nil)

	if err := s.RunNow(); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	fetcher.setErr(errors.New("provider down"))

	if err := s.RunNow(); err == nil {
		t.Fatal("expected error from failed fetch")
	}

	records, status := s.Feed()
	if len(records) != 1 {
		t.Fatalf("feed after failure: got %d records, want previous 1", len(records))
	}
	if status.LastError == "" {
		t.Errorf("status should carry the fetch error")
	}

	// Recovery clears the error flag.
	fetcher.setErr(nil)
	if err := s.RunNow(); err != nil {
		t.Fatalf("RunNow after recovery: %v", err)
	}
	if _, status := s.Feed(); status.LastError != "" {
		t.Errorf("error flag not cleared after successful scan: %q", status.LastError)
	}
}

func TestBadSymbolSkippedNotFatal(t *testing.T) {
	base := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	fetcher := &fakeFetcher{dataset: map[string]models.PriceSeries{
		"AAPL": crossingSeries(base),
		"TINY": crossingSeries(base)[:3], // too short for any window
	}}
	cfg := baseConfig()
	cfg.Symbols = []string{"AAPL", "TINY", "MISSING"}
	s := newTestScanner(t, fetcher, cfg, nil)

	if err := s.RunNow(); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	records, _ := s.Feed()
	if len(records) != 1 || records[0].Symbol != "AAPL" {
		t.Errorf("feed: got %v, want single AAPL record", records)
	}
}

func TestFeedSortedDescendingAndIsNew(t *testing.T) {
	base := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	fetcher := &fakeFetcher{dataset: map[string]models.PriceSeries{
		"AAPL": crossingSeries(base),
		"MSFT": crossingSeries(base.Add(time.Hour)), // later event
	}}
	cfg := baseConfig()
	cfg.Symbols = []string{"AAPL", "MSFT"}
	s := newTestScanner(t, fetcher, cfg, nil)

	if err := s.RunNow(); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	records, _ := s.Feed()
	if len(records) != 2 {
		t.Fatalf("feed: got %d records, want 2", len(records))
	}
	if records[0].Symbol != "MSFT" || records[1].Symbol != "AAPL" {
		t.Errorf("order: got %s, %s; want MSFT first", records[0].Symbol, records[1].Symbol)
	}
	for _, rec := range records {
		if !rec.IsNew {
			t.Errorf("first scan: %s should be new", rec.Symbol)
		}
	}

	// The events are historical, so a second scan flags nothing as new.
	if err := s.RunNow(); err != nil {
		t.Fatalf("second RunNow: %v", err)
	}
	records, _ = s.Feed()
	for _, rec := range records {
		if rec.IsNew {
			t.Errorf("second scan: %s should not be new", rec.Symbol)
		}
	}
}

func TestStoppedScannerDiscardsCycles(t *testing.T) {
	base := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	fetcher := &fakeFetcher{dataset: map[string]models.PriceSeries{"AAPL": crossingSeries(base)}}
	s := newTestScanner(t, fetcher, baseConfig(), nil)

	s.Stop()
	if err := s.RunNow(); err != nil {
		t.Fatalf("RunNow on stopped scanner: %v", err)
	}
	if got := fetcher.callCount(); got != 0 {
		t.Errorf("fetch calls after stop: got %d, want 0", got)
	}
	if err := s.UpdateConfig(baseConfig()); !errors.Is(err, models.ErrConfiguration) {
		t.Errorf("UpdateConfig on stopped scanner: got %v, want configuration error", err)
	}
}

func TestConfigValidation(t *testing.T) {
	fetcher := &fakeFetcher{}
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no symbols", func(c *Config) { c.Symbols = nil }},
		{"bad period", func(c *Config) { c.Period = "2w" }},
		{"no indicators", func(c *Config) { c.Indicators = nil }},
		{"bad indicator", func(c *Config) { c.Indicators = []models.Indicator{"VWAP"} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := baseConfig()
			tc.mutate(&cfg)
			if _, err := New(fetcher, cfg, nil, nil); !errors.Is(err, models.ErrConfiguration) {
				t.Errorf("got %v, want configuration error", err)
			}
		})
	}
}
