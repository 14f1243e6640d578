package counter

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/patrickwarner/portalmetrics/internal/models"
)

// DefaultBatchSize bounds the number of keys fetched by a single MGET.
const DefaultBatchSize = 500

// RedisCounter stores counters as plain Redis integers.
type RedisCounter struct {
	client    redis.UniversalClient
	batchSize int
}

// NewRedisCounter returns a RedisCounter using client. A non-positive
// batchSize selects DefaultBatchSize.
func NewRedisCounter(client redis.UniversalClient, batchSize int) *RedisCounter {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &RedisCounter{client: client, batchSize: batchSize}
}

// Increment uses INCRBY, which Redis executes atomically per key.
func (r *RedisCounter) Increment(ctx context.Context, entityID string, metric models.Metric, delta int64) (int64, error) {
	if err := validateIncrement(entityID, metric, delta); err != nil {
		return 0, err
	}
	if r == nil || r.client == nil {
		return 0, ErrStoreUnavailable
	}
	val, err := r.client.IncrBy(ctx, Key(entityID, metric), delta).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	return val, nil
}

// Read returns the counter value, treating a missing key as zero.
func (r *RedisCounter) Read(ctx context.Context, entityID string, metric models.Metric) (int64, error) {
	if err := validateKey(entityID, metric); err != nil {
		return 0, err
	}
	if r == nil || r.client == nil {
		return 0, ErrStoreUnavailable
	}
	val, err := r.client.Get(ctx, Key(entityID, metric)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, unavailable(err)
	}
	return val, nil
}

// ReadMany fetches counters with MGET, at most batchSize keys per round trip.
func (r *RedisCounter) ReadMany(ctx context.Context, entityIDs []string, metric models.Metric) (map[string]int64, error) {
	if !metric.Valid() {
		return nil, fmt.Errorf("%w: unknown metric %q", ErrInvalidCommand, metric)
	}
	if r == nil || r.client == nil {
		return nil, ErrStoreUnavailable
	}
	out := make(map[string]int64, len(entityIDs))
	for start := 0; start < len(entityIDs); start += r.batchSize {
		end := min(start+r.batchSize, len(entityIDs))
		if err := r.readBatch(ctx, entityIDs[start:end], metric, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *RedisCounter) readBatch(ctx context.Context, ids []string, metric models.Metric, out map[string]int64) error {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = Key(id, metric)
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return unavailable(err)
	}
	for i, v := range vals {
		out[ids[i]] = parseCount(v)
	}
	return nil
}

// parseCount converts an MGET reply element; nil means the key is absent.
func parseCount(v interface{}) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// unavailable keeps err in the chain so callers can tell a cancelled request
// from a store outage.
func unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
