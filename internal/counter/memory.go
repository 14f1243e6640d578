package counter

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/patrickwarner/portalmetrics/internal/models"
)

// MemoryCounter keeps counters in process. Each key owns an atomic cell, so
// increments on different keys never contend and increments on the same key
// are a single atomic add.
type MemoryCounter struct {
	cells sync.Map // counter key -> *atomic.Int64
}

// NewMemoryCounter returns an empty MemoryCounter.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{}
}

func (m *MemoryCounter) cell(key string) *atomic.Int64 {
	if c, ok := m.cells.Load(key); ok {
		return c.(*atomic.Int64)
	}
	c, _ := m.cells.LoadOrStore(key, new(atomic.Int64))
	return c.(*atomic.Int64)
}

// Increment atomically adds delta and returns the new value.
func (m *MemoryCounter) Increment(ctx context.Context, entityID string, metric models.Metric, delta int64) (int64, error) {
	if err := validateIncrement(entityID, metric, delta); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("increment %s: %w", Key(entityID, metric), err)
	}
	return m.cell(Key(entityID, metric)).Add(delta), nil
}

// Read returns the current value without creating the counter.
func (m *MemoryCounter) Read(_ context.Context, entityID string, metric models.Metric) (int64, error) {
	if err := validateKey(entityID, metric); err != nil {
		return 0, err
	}
	if c, ok := m.cells.Load(Key(entityID, metric)); ok {
		return c.(*atomic.Int64).Load(), nil
	}
	return 0, nil
}

// ReadMany returns values for all entityIDs.
func (m *MemoryCounter) ReadMany(ctx context.Context, entityIDs []string, metric models.Metric) (map[string]int64, error) {
	out := make(map[string]int64, len(entityIDs))
	for _, id := range entityIDs {
		v, err := m.Read(ctx, id, metric)
		if err != nil {
			return nil, err
		}
		out[id] = v
	}
	return out, nil
}

// Reset drops every counter. Intended for tests and local runs.
func (m *MemoryCounter) Reset() {
	m.cells.Range(func(k, _ any) bool {
		m.cells.Delete(k)
		return true
	})
}
