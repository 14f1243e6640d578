package ratelimit

import (
	"sync"
	"time"

	"github.com/patrickwarner/portalmetrics/internal/observability"
)

// Config holds the view rate limiting settings.
type Config struct {
	Capacity   int     // burst allowance per visitor
	RefillRate float64 // sustained views per second per visitor
	Enabled    bool
	// IdleTTL is how long an unused bucket is kept before Sweep drops it.
	IdleTTL time.Duration
}

// VisitorLimiter keeps one token bucket per visitor key, created lazily.
type VisitorLimiter struct {
	mu      sync.RWMutex
	buckets map[string]*TokenBucket
	config  Config
	scope   string
	metrics observability.MetricsRegistry
	now     func() time.Time
}

// NewVisitorLimiter returns a limiter reporting under scope (e.g. "view").
func NewVisitorLimiter(scope string, config Config, metrics observability.MetricsRegistry) *VisitorLimiter {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &VisitorLimiter{
		buckets: make(map[string]*TokenBucket),
		config:  config,
		scope:   scope,
		metrics: metrics,
		now:     time.Now,
	}
}

// Allow reports whether the visitor identified by key may proceed. A
// disabled limiter or an empty key always allows.
func (l *VisitorLimiter) Allow(key string) bool {
	if l == nil || !l.config.Enabled || key == "" {
		return true
	}
	l.metrics.IncrementRateLimitRequests(l.scope)

	l.mu.RLock()
	bucket, ok := l.buckets[key]
	l.mu.RUnlock()

	if !ok {
		l.mu.Lock()
		bucket, ok = l.buckets[key]
		if !ok {
			bucket = newTokenBucket(l.config.Capacity, l.config.RefillRate, l.now)
			l.buckets[key] = bucket
		}
		l.mu.Unlock()
	}

	allowed := bucket.Allow()
	if !allowed {
		l.metrics.IncrementRateLimitHits(l.scope)
	}
	return allowed
}

// Sweep drops buckets idle for longer than IdleTTL and returns how many
// were removed.
func (l *VisitorLimiter) Sweep() int {
	if l.config.IdleTTL <= 0 {
		return 0
	}
	cutoff := l.now().Add(-l.config.IdleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, b := range l.buckets {
		if b.idleSince().Before(cutoff) {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked visitors.
func (l *VisitorLimiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.buckets)
}
