// Package scanner runs the periodic multi-symbol scan that keeps the
// notification feed fresh, fetching raw history only when the cache is
// stale or the scan parameters changed.
package scanner

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"

	"github.com/eonurk/finance-bro/models"
	"github.com/eonurk/finance-bro/services/signals"
)

const (
	DefaultInterval  = 5 * time.Minute
	DefaultStaleness = 15 * time.Minute
	FetchTimeout     = 60 * time.Second
)

// Fetcher supplies raw close histories for a symbol universe.
type Fetcher interface {
	FetchHistory(ctx context.Context, symbols []string, period models.Period) (map[string]models.PriceSeries, error)
}

// FeedPublisher receives the feed of each completed scan, e.g. for
// WebSocket broadcast. Implementations must not block.
type FeedPublisher interface {
	PublishFeed(records []models.NotificationRecord)
}

// Archiver persists completed scan summaries for reporting. Failures are
// logged, never propagated into the scan.
type Archiver interface {
	ArchiveScan(sum Summary, records []models.NotificationRecord) error
}

// Config holds the runtime-mutable scan parameters.
type Config struct {
	Symbols    []string           `json:"symbols"`
	Period     models.Period      `json:"period"`
	Indicators []models.Indicator `json:"indicators"`
	Interval   time.Duration      `json:"interval"`
	Staleness  time.Duration      `json:"staleness"`
}

func (c *Config) validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("%w: empty symbol universe", models.ErrConfiguration)
	}
	if _, err := models.ParsePeriod(string(c.Period)); err != nil {
		return err
	}
	if len(c.Indicators) == 0 {
		return fmt.Errorf("%w: no indicators enabled", models.ErrConfiguration)
	}
	for _, ind := range c.Indicators {
		if _, err := models.ParseIndicator(string(ind)); err != nil {
			return err
		}
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Staleness <= 0 {
		c.Staleness = DefaultStaleness
	}
	return nil
}

// Summary describes one completed or failed scan cycle.
type Summary struct {
	StartedAt     time.Time `json:"started_at"`
	CompletedAt   time.Time `json:"completed_at"`
	Symbols       int       `json:"symbols"`
	Notifications int       `json:"notifications"`
	Fetched       bool      `json:"fetched"`
	Err           string    `json:"error,omitempty"`
}

// Status reports the scanner state alongside the feed.
type Status struct {
	Running     bool      `json:"running"`
	LastScanAt  time.Time `json:"last_scan_at"`
	LastFetchAt time.Time `json:"last_fetch_at"`
	LastError   string    `json:"last_error,omitempty"`
}

// scanCache is the single cached dataset, owned by one scanner instance and
// mutated only at cycle boundaries.
type scanCache struct {
	lastFetch    time.Time
	period       models.Period
	indicatorSet map[models.Indicator]bool
	dataset      map[string]models.PriceSeries
}

// Scanner orchestrates indicator computation, signal detection, and
// notification aggregation across the configured universe on a fixed
// interval.
type Scanner struct {
	fetcher   Fetcher
	publisher FeedPublisher
	archiver  Archiver

	cron *gocron.Scheduler

	// cycleMu serializes scan cycles; a new cycle never starts while a
	// previous one for this instance is in flight.
	cycleMu sync.Mutex

	mu         sync.RWMutex
	cfg        Config
	cache      *scanCache
	feed       []models.NotificationRecord
	lastScanAt time.Time
	lastError  string
	running    bool
	closed     bool
}

// New creates a scanner. publisher and archiver may be nil.
func New(fetcher Fetcher, cfg Config, publisher FeedPublisher, archiver Archiver) (*Scanner, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("%w: nil fetcher", models.ErrConfiguration)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Scanner{
		fetcher:   fetcher,
		publisher: publisher,
		archiver:  archiver,
		cfg:       cfg,
		cron:      gocron.NewScheduler(time.UTC),
	}, nil
}

// Start schedules the periodic scan.
func (s *Scanner) Start() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("%w: scanner is stopped", models.ErrConfiguration)
	}
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	interval := s.cfg.Interval
	s.mu.Unlock()

	if err := s.schedule(interval); err != nil {
		return err
	}
	s.cron.StartAsync()
	log.Printf("Scanner started (interval: %v)", interval)
	return nil
}

func (s *Scanner) schedule(interval time.Duration) error {
	s.cron.Clear()
	_, err := s.cron.Every(interval).SingletonMode().Do(func() {
		if err := s.runCycle(); err != nil {
			log.Printf("Scan cycle failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("%w: scheduling scan job: %v", models.ErrConfiguration, err)
	}
	return nil
}

// Stop cancels the pending timer and marks the scanner closed. Results of
// any in-flight fetch are discarded at commit time.
func (s *Scanner) Stop() {
	s.mu.Lock()
	s.closed = true
	s.running = false
	s.mu.Unlock()

	s.cron.Stop()
	log.Println("Scanner stopped")
}

// RunNow triggers one scan cycle immediately, serialized with the timer.
func (s *Scanner) RunNow() error {
	return s.runCycle()
}

// Config returns a copy of the current scan parameters.
func (s *Scanner) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg := s.cfg
	cfg.Symbols = append([]string(nil), s.cfg.Symbols...)
	cfg.Indicators = append([]models.Indicator(nil), s.cfg.Indicators...)
	return cfg
}

// UpdateConfig swaps the scan parameters and resets the pending timer. The
// cache is invalidated lazily on the next cycle if the period or indicator
// set changed.
func (s *Scanner) UpdateConfig(cfg Config) error {
	if err := cfg.validate(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("%w: scanner is stopped", models.ErrConfiguration)
	}
	s.cfg = cfg
	running := s.running
	s.mu.Unlock()

	if running {
		if err := s.schedule(cfg.Interval); err != nil {
			return err
		}
	}
	log.Printf("Scanner config updated: %d symbols, period %s, %d indicators",
		len(cfg.Symbols), cfg.Period, len(cfg.Indicators))
	return nil
}

// Feed returns the notification feed of the most recent successfully
// completed scan plus the scanner status.
func (s *Scanner) Feed() ([]models.NotificationRecord, Status) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]models.NotificationRecord, len(s.feed))
	copy(records, s.feed)

	status := Status{
		Running:    s.running,
		LastScanAt: s.lastScanAt,
		LastError:  s.lastError,
	}
	if s.cache != nil {
		status.LastFetchAt = s.cache.lastFetch
	}
	return records, status
}

// runCycle performs one scan: reuse or refresh the cached dataset, detect
// the latest signal per (symbol, indicator), and swap in the new feed.
func (s *Scanner) runCycle() error {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil
	}
	cfg := s.cfg
	cache := s.cache
	s.mu.RUnlock()

	started := time.Now()
	dataset := map[string]models.PriceSeries{}
	fetched := false

	if cache != nil {
		dataset = cache.dataset
	}
	if needsFetch(cache, cfg, started) {
		ctx, cancel := context.WithTimeout(context.Background(), FetchTimeout)
		data, err := s.fetcher.FetchHistory(ctx, cfg.Symbols, cfg.Period)
		cancel()
		if err != nil {
			// The last good dataset and feed stay in place for the next
			// interval; only the error flag changes.
			s.mu.Lock()
			if !s.closed {
				s.lastError = err.Error()
			}
			s.mu.Unlock()
			s.archive(Summary{StartedAt: started, CompletedAt: time.Now(), Err: err.Error()}, nil)
			return err
		}
		dataset = data
		fetched = true
	}

	records := buildFeed(cfg, dataset)

	s.mu.Lock()
	if s.closed {
		// Teardown happened while the fetch was in flight.
		s.mu.Unlock()
		return nil
	}
	if fetched {
		s.cache = &scanCache{
			lastFetch:    started,
			period:       cfg.Period,
			indicatorSet: indicatorSet(cfg.Indicators),
			dataset:      dataset,
		}
	}
	prevScan := s.lastScanAt
	for i := range records {
		records[i].IsNew = records[i].Timestamp.After(prevScan)
	}
	s.feed = records
	s.lastScanAt = time.Now()
	s.lastError = ""
	s.mu.Unlock()

	if s.publisher != nil {
		s.publisher.PublishFeed(records)
	}
	s.archive(Summary{
		StartedAt:     started,
		CompletedAt:   time.Now(),
		Symbols:       len(cfg.Symbols),
		Notifications: len(records),
		Fetched:       fetched,
	}, records)

	log.Printf("Scan completed: %d symbols, %d notifications, fetched=%v",
		len(cfg.Symbols), len(records), fetched)
	return nil
}

func (s *Scanner) archive(sum Summary, records []models.NotificationRecord) {
	if s.archiver == nil {
		return
	}
	if err := s.archiver.ArchiveScan(sum, records); err != nil {
		log.Printf("Warning: failed to archive scan: %v", err)
	}
}

// needsFetch applies the caching policy: fetch only when there is no prior
// fetch, the cache is stale, the period changed, or the enabled-indicator
// set changed (compared as an unordered set).
func needsFetch(cache *scanCache, cfg Config, now time.Time) bool {
	if cache == nil {
		return true
	}
	if now.Sub(cache.lastFetch) > cfg.Staleness {
		return true
	}
	if cache.period != cfg.Period {
		return true
	}
	return !setsEqual(cache.indicatorSet, indicatorSet(cfg.Indicators))
}

func indicatorSet(inds []models.Indicator) map[models.Indicator]bool {
	set := make(map[models.Indicator]bool, len(inds))
	for _, ind := range inds {
		set[ind] = true
	}
	return set
}

func setsEqual(a, b map[models.Indicator]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

// buildFeed detects the most recent signal per (symbol, enabled indicator)
// and returns the records sorted descending by event timestamp. Symbols
// with missing or unusable histories are skipped without aborting the
// batch.
func buildFeed(cfg Config, dataset map[string]models.PriceSeries) []models.NotificationRecord {
	records := make([]models.NotificationRecord, 0, len(cfg.Symbols)*len(cfg.Indicators))

	for _, symbol := range cfg.Symbols {
		series, ok := dataset[symbol]
		if !ok || len(series) == 0 {
			log.Printf("Warning: skipping %s: no usable history", symbol)
			continue
		}
		for _, ind := range cfg.Indicators {
			events, err := signals.DetectIndicator(symbol, ind, series)
			if err != nil {
				log.Printf("Warning: skipping %s/%s: %v", symbol, ind, err)
				continue
			}
			if len(events) == 0 {
				continue
			}
			records = append(records, models.NotificationRecord{
				ID:          uuid.NewString(),
				SignalEvent: events[len(events)-1],
			})
		}
	}

	sort.Slice(records, func(i, j int) bool {
		if !records[i].Timestamp.Equal(records[j].Timestamp) {
			return records[i].Timestamp.After(records[j].Timestamp)
		}
		if records[i].Symbol != records[j].Symbol {
			return records[i].Symbol < records[j].Symbol
		}
		return records[i].Indicator < records[j].Indicator
	})
	return records
}
