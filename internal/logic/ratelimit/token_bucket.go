// Package ratelimit throttles view counting per visitor with token buckets.
//
// A bucket holds up to Capacity tokens and refills continuously at
// RefillRate tokens per second. Each counted view spends one token, so a
// visitor can burst up to Capacity views and then sustain RefillRate views
// per second.
package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket is a thread-safe token bucket.
type TokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	tokens     float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	lastSeen   time.Time
	now        func() time.Time
}

// NewTokenBucket returns a full bucket.
func NewTokenBucket(capacity int, refillRate float64) *TokenBucket {
	return newTokenBucket(capacity, refillRate, time.Now)
}

func newTokenBucket(capacity int, refillRate float64, now func() time.Time) *TokenBucket {
	t := now()
	return &TokenBucket{
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		refillRate: refillRate,
		lastRefill: t,
		lastSeen:   t,
		now:        now,
	}
}

// Allow spends one token if available.
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	if elapsed := now.Sub(tb.lastRefill).Seconds(); elapsed > 0 {
		tb.tokens = min(tb.capacity, tb.tokens+elapsed*tb.refillRate)
		tb.lastRefill = now
	}
	tb.lastSeen = now

	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

func (tb *TokenBucket) idleSince() time.Time {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.lastSeen
}
