package analytics

import (
	"time"

	"github.com/google/uuid"

	"github.com/patrickwarner/portalmetrics/internal/models"
)

// Event is one row of the event log. The counters hold the running totals;
// the log keeps per-event context for trend queries.
type Event struct {
	ID         string        `json:"id"`
	Timestamp  time.Time     `json:"timestamp"`
	Metric     models.Metric `json:"metric"`
	EntityID   string        `json:"entity_id"`
	Position   string        `json:"position,omitempty"`
	Country    string        `json:"country,omitempty"`
	DeviceType string        `json:"device_type,omitempty"`
	RequestID  string        `json:"request_id,omitempty"`
}

// NewEvent stamps an event with a fresh id and the current time.
func NewEvent(metric models.Metric, entityID string) Event {
	return Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Metric:    metric,
		EntityID:  entityID,
	}
}

// DailyCount is the number of events of one metric on one UTC day.
type DailyCount struct {
	Day   time.Time `json:"day"`
	Count int64     `json:"count"`
}
