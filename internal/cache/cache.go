// Package cache stores finished reports keyed by their normalized niche.
package cache

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ayush/truth-engine/internal/models"
)

// DefaultTTL is how long a cached report stays servable.
const DefaultTTL = 24 * time.Hour

// Store is a report cache. Get reports false for absent or expired entries.
type Store interface {
	Get(ctx context.Context, query string) (*models.Report, bool, error)
	Put(ctx context.Context, query string, report *models.Report) error
}

// Normalize folds case and trims whitespace so equivalent queries share a slot.
func Normalize(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

// Entry is a single cached report.
type Entry struct {
	Key      string
	Report   models.Report
	StoredAt time.Time
}

// TTL is the expiry policy applied on read.
type TTL struct {
	MaxAge time.Duration
}

// Expired reports whether an entry stored at storedAt is no longer servable at now.
func (p TTL) Expired(storedAt, now time.Time) bool {
	return now.Sub(storedAt) >= p.MaxAge
}

// Option configures a Memory cache.
type Option func(*Memory)

// WithClock replaces the wall clock used for storing and expiring entries.
func WithClock(now func() time.Time) Option {
	return func(m *Memory) { m.now = now }
}

// WithTTL sets the expiry policy.
func WithTTL(ttl time.Duration) Option {
	return func(m *Memory) { m.policy = TTL{MaxAge: ttl} }
}

// Memory is a process-lifetime cache. Expired entries are never purged, only
// treated as misses until the next Put for that key.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
	policy  TTL
	now     func() time.Time
}

func NewMemory(opts ...Option) *Memory {
	m := &Memory{
		entries: make(map[string]Entry),
		policy:  TTL{MaxAge: DefaultTTL},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns a deep copy of the cached report for query.
func (m *Memory) Get(_ context.Context, query string) (*models.Report, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[Normalize(query)]
	m.mu.RUnlock()

	if !ok || m.policy.Expired(e.StoredAt, m.now()) {
		return nil, false, nil
	}
	return clone(&e.Report), true, nil
}

// Put stores report under query, replacing any previous entry.
func (m *Memory) Put(_ context.Context, query string, report *models.Report) error {
	key := Normalize(query)
	e := Entry{Key: key, Report: *clone(report), StoredAt: m.now()}

	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// clone copies r including its slices, so callers never share backing arrays
// with a stored entry.
func clone(r *models.Report) *models.Report {
	c := *r
	c.PainPoints = slices.Clone(r.PainPoints)
	c.Opportunities = slices.Clone(r.Opportunities)
	c.Competitors = slices.Clone(r.Competitors)
	c.MarketingChannels = slices.Clone(r.MarketingChannels)
	c.BarriersToEntry = slices.Clone(r.BarriersToEntry)
	c.UrgencyFactors = slices.Clone(r.UrgencyFactors)
	c.DemandSignals = slices.Clone(r.DemandSignals)
	c.RiskFactors = slices.Clone(r.RiskFactors)
	c.CommunityQuotes = slices.Clone(r.CommunityQuotes)
	c.Sources = slices.Clone(r.Sources)
	return &c
}
