package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ReloadChannel carries catalog invalidation messages between instances.
const ReloadChannel = "portal-catalog-reload"

// ReloadMessage is published when ad or content metadata changed.
type ReloadMessage struct {
	Entity string `json:"entity"`
	Reason string `json:"reason,omitempty"`
}

// RedisStore owns the Redis client used for counters and reload notifications.
type RedisStore struct {
	Client *redis.Client
}

// InitRedis connects to Redis, instruments the client for tracing and
// verifies connectivity.
func InitRedis(ctx context.Context, addr string, poolSize int) (*RedisStore, error) {
	opts := &redis.Options{Addr: addr}
	if poolSize > 0 {
		opts.PoolSize = poolSize
	}
	rs := &RedisStore{Client: redis.NewClient(opts)}

	if err := redisotel.InstrumentTracing(rs.Client); err != nil {
		return nil, fmt.Errorf("failed to instrument redis tracing: %w", err)
	}

	if err := rs.Client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	zap.L().Info("Connected to Redis", zap.String("addr", addr))
	return rs, nil
}

// Ping checks that Redis is reachable.
func (r *RedisStore) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return fmt.Errorf("redis not configured")
	}
	return r.Client.Ping(ctx).Err()
}

// PublishReload notifies every instance that metadata should be reloaded.
func (r *RedisStore) PublishReload(ctx context.Context, msg ReloadMessage) error {
	if r == nil || r.Client == nil {
		return fmt.Errorf("redis not configured")
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal reload message: %w", err)
	}
	return r.Client.Publish(ctx, ReloadChannel, payload).Err()
}

// SubscribeReload calls fn for every reload message until ctx is cancelled.
// Malformed payloads are logged and skipped.
func (r *RedisStore) SubscribeReload(ctx context.Context, logger *zap.Logger, fn func(ReloadMessage)) {
	if r == nil || r.Client == nil {
		return
	}
	sub := r.Client.Subscribe(ctx, ReloadChannel)
	defer func() {
		if err := sub.Close(); err != nil {
			logger.Warn("reload subscription close", zap.Error(err))
		}
	}()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			var msg ReloadMessage
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				logger.Warn("bad reload message", zap.Error(err), zap.String("payload", m.Payload))
				continue
			}
			fn(msg)
		}
	}
}

// Close shuts down the Redis client.
func (r *RedisStore) Close() {
	if r != nil && r.Client != nil {
		if err := r.Client.Close(); err != nil {
			zap.L().Error("redis close", zap.Error(err))
		}
	}
}
