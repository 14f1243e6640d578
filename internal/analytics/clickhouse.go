package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"go.uber.org/zap"

	"github.com/patrickwarner/portalmetrics/internal/models"
)

// ErrUnavailable is returned when the event log is not configured.
var ErrUnavailable = errors.New("analytics unavailable")

// ClickHouse stores events in a MergeTree table.
type ClickHouse struct {
	DB *sql.DB
}

const createEventsTable = `CREATE TABLE IF NOT EXISTS portal_events (
    id          UUID,
    timestamp   DateTime64(3, 'UTC'),
    metric      LowCardinality(String),
    entity_id   String,
    position    LowCardinality(String),
    country     LowCardinality(String),
    device_type LowCardinality(String),
    request_id  String
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(timestamp)
ORDER BY (metric, entity_id, timestamp)`

// InitClickHouse connects to ClickHouse and ensures the events table exists.
func InitClickHouse(ctx context.Context, dsn string) (*ClickHouse, error) {
	db, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	db.SetMaxOpenConns(10)
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, createEventsTable); err != nil {
		return nil, fmt.Errorf("clickhouse create table: %w", err)
	}
	zap.L().Info("Connected to ClickHouse")
	return &ClickHouse{DB: db}, nil
}

// WriteEvents inserts events as a single batch.
func (c *ClickHouse) WriteEvents(ctx context.Context, events []Event) error {
	if c == nil || c.DB == nil {
		return ErrUnavailable
	}
	if len(events) == 0 {
		return nil
	}
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO portal_events (id, timestamp, metric, entity_id, position, country, device_type, request_id)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare batch: %w", err)
	}
	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx, ev.ID, ev.Timestamp, string(ev.Metric), ev.EntityID, ev.Position, ev.Country, ev.DeviceType, ev.RequestID); err != nil {
			_ = stmt.Close()
			_ = tx.Rollback()
			return fmt.Errorf("append event: %w", err)
		}
	}
	if err := stmt.Close(); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("close batch: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// DailyCounts returns per-day event counts for metric since the given time,
// oldest day first. Days without events are absent.
func (c *ClickHouse) DailyCounts(ctx context.Context, metric models.Metric, since time.Time) ([]DailyCount, error) {
	if c == nil || c.DB == nil {
		return nil, ErrUnavailable
	}
	query := `
		SELECT
			toDate(timestamp) AS day,
			count() AS events
		FROM portal_events
		WHERE metric = ?
			AND timestamp >= ?
		GROUP BY day
		ORDER BY day`
	rows, err := c.DB.QueryContext(ctx, query, string(metric), since.UTC())
	if err != nil {
		return nil, fmt.Errorf("query daily counts: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []DailyCount
	for rows.Next() {
		var d DailyCount
		var n uint64
		if err := rows.Scan(&d.Day, &n); err != nil {
			return nil, fmt.Errorf("scan daily count: %w", err)
		}
		d.Count = int64(n)
		out = append(out, d)
	}
	return out, rows.Err()
}

// EventsForEntity returns the newest events recorded against entityID.
func (c *ClickHouse) EventsForEntity(ctx context.Context, entityID string, limit int) ([]Event, error) {
	if c == nil || c.DB == nil {
		return nil, ErrUnavailable
	}
	query := `SELECT toString(id), timestamp, metric, entity_id, position, country, device_type, request_id
		FROM portal_events WHERE entity_id = ? ORDER BY timestamp DESC LIMIT ?`
	rows, err := c.DB.QueryContext(ctx, query, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Warn("rows close", zap.Error(err))
		}
	}()

	var events []Event
	for rows.Next() {
		var ev Event
		var metric string
		if err := rows.Scan(&ev.ID, &ev.Timestamp, &metric, &ev.EntityID, &ev.Position, &ev.Country, &ev.DeviceType, &ev.RequestID); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Metric = models.Metric(metric)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return events, nil
}

// Close terminates the ClickHouse connection.
func (c *ClickHouse) Close() {
	if c != nil && c.DB != nil {
		if err := c.DB.Close(); err != nil {
			zap.L().Error("clickhouse close", zap.Error(err))
		}
	}
}
