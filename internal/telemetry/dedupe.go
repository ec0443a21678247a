package telemetry

import (
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultDedupeMaxSize = 256
	defaultDedupeWindow  = 30 * time.Second
)

// DedupeConfig bounds the advisory caches. Both caches are best-effort:
// eviction or clearing never affects task delivery guarantees.
type DedupeConfig struct {
	// MaxSize is the maximum number of entries in each LRU cache.
	MaxSize int
	// Window is how long an entry suppresses duplicates.
	Window time.Duration
}

func (c DedupeConfig) withDefaults() DedupeConfig {
	if c.MaxSize <= 0 {
		c.MaxSize = defaultDedupeMaxSize
	}
	if c.Window <= 0 {
		c.Window = defaultDedupeWindow
	}
	return c
}

// ReportIDs hands out stable progress-report identifiers for telemetry.
// The same task keeps the same report id while its entry stays in the cache;
// after eviction a fresh id is generated, which is acceptable for an
// advisory identifier.
type ReportIDs struct {
	mu    sync.Mutex
	cache *lru.Cache[string, string]
}

// NewReportIDs builds a bounded report-id cache.
func NewReportIDs(maxSize int) *ReportIDs {
	if maxSize <= 0 {
		maxSize = defaultDedupeMaxSize
	}
	cache, err := lru.New[string, string](maxSize)
	if err != nil {
		return &ReportIDs{}
	}
	return &ReportIDs{cache: cache}
}

// For returns the report id for a task, creating one on first use.
func (r *ReportIDs) For(taskID string) string {
	if r == nil || r.cache == nil {
		return uuid.NewString()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.cache.Get(taskID); ok {
		return id
	}
	id := uuid.NewString()
	r.cache.Add(taskID, id)
	return id
}

type fingerprintEntry struct {
	storedAt time.Time
}

// ErrorFingerprints suppresses duplicate error reports within a short
// window. Entries expire by TTL and the cache is size-bounded, so a burst of
// distinct errors simply rotates the window.
type ErrorFingerprints struct {
	config DedupeConfig

	mu    sync.Mutex
	cache *lru.Cache[string, fingerprintEntry]
}

// NewErrorFingerprints builds a bounded fingerprint cache.
func NewErrorFingerprints(config DedupeConfig) *ErrorFingerprints {
	config = config.withDefaults()
	cache, err := lru.New[string, fingerprintEntry](config.MaxSize)
	if err != nil {
		return &ErrorFingerprints{config: config}
	}
	return &ErrorFingerprints{config: config, cache: cache}
}

// Suppress reports whether an identical fingerprint was seen within the
// window. A fresh or expired fingerprint is recorded and not suppressed.
func (f *ErrorFingerprints) Suppress(fingerprint string) bool {
	if f == nil || f.cache == nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	if entry, ok := f.cache.Get(fingerprint); ok {
		if now.Sub(entry.storedAt) < f.config.Window {
			return true
		}
	}
	f.cache.Add(fingerprint, fingerprintEntry{storedAt: now})
	return false
}
