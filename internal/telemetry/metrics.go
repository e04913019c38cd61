// Package telemetry aggregates local query statistics: per-mode and
// per-vault counts, top query terms, recent zero-result queries, and a
// latency histogram. Everything stays on the machine; aggregates flush
// to SQLite tables beside the chunk data.
package telemetry

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/noterag/noterag/internal/store"
)

// Bucket is a latency histogram bucket. Boundaries cover the spread
// between a warm BM25 lookup and a full rerank-plus-answer round trip.
type Bucket string

const (
	Bucket50   Bucket = "p50"   // <50ms
	Bucket200  Bucket = "p200"  // 50-200ms
	Bucket1000 Bucket = "p1000" // 200ms-1s
	Bucket5000 Bucket = "p5000" // 1-5s
	BucketSlow Bucket = "slow"  // >=5s
)

// BucketFor converts a duration to its histogram bucket.
func BucketFor(d time.Duration) Bucket {
	switch ms := d.Milliseconds(); {
	case ms < 50:
		return Bucket50
	case ms < 200:
		return Bucket200
	case ms < 1000:
		return Bucket1000
	case ms < 5000:
		return Bucket5000
	default:
		return BucketSlow
	}
}

// Event is one recorded search.
type Event struct {
	Query   string
	Mode    string // vector, bm25, hybrid, query
	Vault   string // vault selector as requested
	Results int
	Latency time.Duration
}

// TermCount is a query term and how often it was searched.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Snapshot is an immutable view of the aggregates since process start.
type Snapshot struct {
	ModeCounts        map[string]int64 `json:"mode_counts"`
	VaultCounts       map[string]int64 `json:"vault_counts"`
	TopTerms          []TermCount      `json:"top_terms"`
	ZeroResultQueries []string         `json:"zero_result_queries"`
	Latency           map[Bucket]int64 `json:"latency"`
	TotalQueries      int64            `json:"total_queries"`
	ZeroResultCount   int64            `json:"zero_result_count"`
	Since             time.Time        `json:"since"`
}

// ZeroResultRate returns the fraction of queries with no results.
func (s *Snapshot) ZeroResultRate() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries)
}

// FlushTarget persists drained aggregates. *Store implements it.
type FlushTarget interface {
	SaveModeCounts(date string, counts map[string]int64) error
	SaveVaultCounts(date string, counts map[string]int64) error
	UpsertTermCounts(terms map[string]int64) error
	AddZeroResult(query string, at time.Time) error
	SaveLatencyCounts(date string, counts map[Bucket]int64) error
}

// Config sizes the in-memory aggregates.
type Config struct {
	TopTermsCapacity    int
	ZeroResultsCapacity int
	FlushInterval       time.Duration // 0 disables the background flush
}

// DefaultConfig returns the standard capacities.
func DefaultConfig() Config {
	return Config{
		TopTermsCapacity:    100,
		ZeroResultsCapacity: 100,
		FlushInterval:       time.Minute,
	}
}

// ring is a fixed-capacity FIFO over the most recent values. Callers
// hold the collector lock.
type ring[T any] struct {
	items []T
	head  int
	size  int
}

func newRing[T any](capacity int) *ring[T] {
	return &ring[T]{items: make([]T, capacity)}
}

func (r *ring[T]) add(v T) {
	r.items[r.head] = v
	r.head = (r.head + 1) % len(r.items)
	if r.size < len(r.items) {
		r.size++
	}
}

// all returns the buffered values oldest first.
func (r *ring[T]) all() []T {
	out := make([]T, 0, r.size)
	if r.size == len(r.items) {
		out = append(out, r.items[r.head:]...)
		out = append(out, r.items[:r.head]...)
	} else {
		out = append(out, r.items[:r.size]...)
	}
	return out
}

type zeroEntry struct {
	query string
	at    time.Time
}

// Collector gathers query telemetry. Safe for concurrent use. With a
// store attached it periodically flushes deltas; without one it is a
// purely in-memory view.
type Collector struct {
	mu sync.Mutex

	modes    map[string]int64
	vaults   map[string]int64
	terms    *lru.Cache[string, int64]
	zero     *ring[string]
	latency  map[Bucket]int64
	total    int64
	zeroSeen int64
	since    time.Time

	// Deltas recorded since the last successful flush. Draining these
	// instead of re-sending totals keeps the daily tables exact across
	// repeated flushes.
	pendingModes   map[string]int64
	pendingVaults  map[string]int64
	pendingTerms   map[string]int64
	pendingLatency map[Bucket]int64
	pendingZero    []zeroEntry
	zeroCap        int

	store  FlushTarget
	ticker *time.Ticker
	stop   chan struct{}
	closed bool
}

// NewCollector creates a collector with default capacities. A nil
// store keeps everything in memory.
func NewCollector(target FlushTarget) *Collector {
	return NewCollectorWithConfig(target, DefaultConfig())
}

// NewCollectorWithConfig creates a collector with explicit capacities.
func NewCollectorWithConfig(target FlushTarget, cfg Config) *Collector {
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = 100
	}
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = 100
	}
	terms, _ := lru.New[string, int64](cfg.TopTermsCapacity)

	c := &Collector{
		modes:          make(map[string]int64),
		vaults:         make(map[string]int64),
		terms:          terms,
		zero:           newRing[string](cfg.ZeroResultsCapacity),
		latency:        make(map[Bucket]int64),
		since:          time.Now(),
		pendingModes:   make(map[string]int64),
		pendingVaults:  make(map[string]int64),
		pendingTerms:   make(map[string]int64),
		pendingLatency: make(map[Bucket]int64),
		zeroCap:        cfg.ZeroResultsCapacity,
		store:          target,
		stop:           make(chan struct{}),
	}
	if target != nil && cfg.FlushInterval > 0 {
		c.ticker = time.NewTicker(cfg.FlushInterval)
		go c.flushLoop()
	}
	return c
}

func (c *Collector) flushLoop() {
	for {
		select {
		case <-c.ticker.C:
			if err := c.Flush(); err != nil {
				slog.Warn("telemetry flush failed", "error", err)
			}
		case <-c.stop:
			return
		}
	}
}

var queryStopWords = store.BuildStopWordMap(store.DefaultNoteStopWords)

// extractTerms tokenizes a query the way the full-text layer does,
// then drops tokens under three characters to keep the report legible.
func extractTerms(query string) []string {
	var terms []string
	for _, tok := range store.TokenizeQuery(query, queryStopWords) {
		if len(tok) >= 3 {
			terms = append(terms, tok)
		}
	}
	return terms
}

// Record captures one search.
func (c *Collector) Record(ev Event) {
	terms := extractTerms(ev.Query)
	bucket := BucketFor(ev.Latency)
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	c.total++
	if ev.Mode != "" {
		c.modes[ev.Mode]++
	}
	if ev.Vault != "" {
		c.vaults[ev.Vault]++
	}
	for _, term := range terms {
		count, _ := c.terms.Get(term)
		c.terms.Add(term, count+1)
	}
	c.latency[bucket]++
	if ev.Results == 0 {
		c.zeroSeen++
		c.zero.add(ev.Query)
	}

	if c.store == nil {
		return
	}
	if ev.Mode != "" {
		c.pendingModes[ev.Mode]++
	}
	if ev.Vault != "" {
		c.pendingVaults[ev.Vault]++
	}
	for _, term := range terms {
		c.pendingTerms[term]++
	}
	c.pendingLatency[bucket]++
	if ev.Results == 0 {
		// Bounded so a dead store cannot grow the backlog.
		if len(c.pendingZero) >= c.zeroCap {
			c.pendingZero = c.pendingZero[1:]
		}
		c.pendingZero = append(c.pendingZero, zeroEntry{query: ev.Query, at: now})
	}
}

// Snapshot returns the aggregates since process start.
func (c *Collector) Snapshot() *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	modes := make(map[string]int64, len(c.modes))
	for k, v := range c.modes {
		modes[k] = v
	}
	vaults := make(map[string]int64, len(c.vaults))
	for k, v := range c.vaults {
		vaults[k] = v
	}
	latency := make(map[Bucket]int64, len(c.latency))
	for k, v := range c.latency {
		latency[k] = v
	}

	top := make([]TermCount, 0, c.terms.Len())
	for _, term := range c.terms.Keys() {
		if count, ok := c.terms.Peek(term); ok {
			top = append(top, TermCount{Term: term, Count: count})
		}
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		return top[i].Term < top[j].Term
	})

	return &Snapshot{
		ModeCounts:        modes,
		VaultCounts:       vaults,
		TopTerms:          top,
		ZeroResultQueries: c.zero.all(),
		Latency:           latency,
		TotalQueries:      c.total,
		ZeroResultCount:   c.zeroSeen,
		Since:             c.since,
	}
}

// Flush drains deltas recorded since the previous flush into the
// store. On failure the drained counts are merged back, so a transient
// store error loses nothing.
func (c *Collector) Flush() error {
	if c.store == nil {
		return nil
	}

	c.mu.Lock()
	modes := c.pendingModes
	vaults := c.pendingVaults
	terms := c.pendingTerms
	latency := c.pendingLatency
	zero := c.pendingZero
	c.pendingModes = make(map[string]int64)
	c.pendingVaults = make(map[string]int64)
	c.pendingTerms = make(map[string]int64)
	c.pendingLatency = make(map[Bucket]int64)
	c.pendingZero = nil
	c.mu.Unlock()

	if len(modes) == 0 && len(vaults) == 0 && len(terms) == 0 &&
		len(latency) == 0 && len(zero) == 0 {
		return nil
	}

	day := time.Now().Format("2006-01-02")
	if err := c.writeOut(day, modes, vaults, terms, latency, zero); err != nil {
		c.restorePending(modes, vaults, terms, latency, zero)
		return err
	}
	return nil
}

func (c *Collector) writeOut(day string, modes, vaults, terms map[string]int64,
	latency map[Bucket]int64, zero []zeroEntry) error {
	if len(modes) > 0 {
		if err := c.store.SaveModeCounts(day, modes); err != nil {
			return fmt.Errorf("flush mode counts: %w", err)
		}
	}
	if len(vaults) > 0 {
		if err := c.store.SaveVaultCounts(day, vaults); err != nil {
			return fmt.Errorf("flush vault counts: %w", err)
		}
	}
	if len(terms) > 0 {
		if err := c.store.UpsertTermCounts(terms); err != nil {
			return fmt.Errorf("flush term counts: %w", err)
		}
	}
	if len(latency) > 0 {
		if err := c.store.SaveLatencyCounts(day, latency); err != nil {
			return fmt.Errorf("flush latency counts: %w", err)
		}
	}
	for _, z := range zero {
		if err := c.store.AddZeroResult(z.query, z.at); err != nil {
			return fmt.Errorf("flush zero-result query: %w", err)
		}
	}
	return nil
}

func (c *Collector) restorePending(modes, vaults, terms map[string]int64,
	latency map[Bucket]int64, zero []zeroEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range modes {
		c.pendingModes[k] += v
	}
	for k, v := range vaults {
		c.pendingVaults[k] += v
	}
	for k, v := range terms {
		c.pendingTerms[k] += v
	}
	for k, v := range latency {
		c.pendingLatency[k] += v
	}
	c.pendingZero = append(zero, c.pendingZero...)
}

// Close stops the background flush and runs a final one.
func (c *Collector) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if c.ticker != nil {
		c.ticker.Stop()
		close(c.stop)
	}
	return c.Flush()
}
