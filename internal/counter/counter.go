// Package counter implements the event counters behind view, impression and
// click tracking.
//
// Every update goes through a single atomic read-modify-write primitive of the
// backing store (Redis INCRBY, or an atomic add for the in-process store), so
// concurrent increments of the same key never lose updates. Reads are snapshot
// reads: they may trail an increment that is in flight but never observe a
// partial value.
package counter

import (
	"context"
	"errors"
	"fmt"

	"github.com/patrickwarner/portalmetrics/internal/models"
)

var (
	// ErrStoreUnavailable is returned when the backing store cannot be reached.
	// Callers on the render path log it and carry on without the count.
	ErrStoreUnavailable = errors.New("counter store unavailable")
	// ErrInvalidCommand is returned for malformed increment or read requests.
	ErrInvalidCommand = errors.New("invalid counter command")
)

// Store is an atomic per-key counter store.
type Store interface {
	// Increment adds delta to the counter for (entityID, metric), creating it
	// at zero when absent, and returns the value after the increment.
	Increment(ctx context.Context, entityID string, metric models.Metric, delta int64) (int64, error)
	// Read returns the current value, or 0 when the counter was never incremented.
	Read(ctx context.Context, entityID string, metric models.Metric) (int64, error)
	// ReadMany returns the current values for all entityIDs. Absent counters
	// are reported as 0.
	ReadMany(ctx context.Context, entityIDs []string, metric models.Metric) (map[string]int64, error)
}

// IncrementCommand is the validated form of an increment request.
type IncrementCommand struct {
	EntityID string        `json:"entity_id"`
	Metric   models.Metric `json:"metric"`
	Delta    int64         `json:"delta"`
}

// Validate checks the command and fills in the default delta of 1.
func (c *IncrementCommand) Validate() error {
	if c.Delta == 0 {
		c.Delta = 1
	}
	if err := validateKey(c.EntityID, c.Metric); err != nil {
		return err
	}
	if c.Delta < 0 {
		return fmt.Errorf("%w: delta must be positive, got %d", ErrInvalidCommand, c.Delta)
	}
	return nil
}

// Apply runs the command against store.
func (c IncrementCommand) Apply(ctx context.Context, store Store) (int64, error) {
	if err := c.Validate(); err != nil {
		return 0, err
	}
	return store.Increment(ctx, c.EntityID, c.Metric, c.Delta)
}

func validateKey(entityID string, metric models.Metric) error {
	if entityID == "" {
		return fmt.Errorf("%w: entity id required", ErrInvalidCommand)
	}
	if !metric.Valid() {
		return fmt.Errorf("%w: unknown metric %q", ErrInvalidCommand, metric)
	}
	return nil
}

func validateIncrement(entityID string, metric models.Metric, delta int64) error {
	if err := validateKey(entityID, metric); err != nil {
		return err
	}
	if delta < 1 {
		return fmt.Errorf("%w: delta must be positive, got %d", ErrInvalidCommand, delta)
	}
	return nil
}

// Key returns the storage key for a counter.
func Key(entityID string, metric models.Metric) string {
	return "counter:" + string(metric) + ":" + entityID
}
