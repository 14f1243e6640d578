package analytics

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/portalmetrics/internal/observability"
)

// Writer persists a batch of events.
type Writer interface {
	WriteEvents(ctx context.Context, events []Event) error
}

// RecorderConfig controls buffering of the async recorder.
type RecorderConfig struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

// Recorder ships events to a Writer in the background. Record never blocks
// the request path: when the buffer is full the event is dropped and counted.
type Recorder struct {
	writer  Writer
	cfg     RecorderConfig
	logger  *zap.Logger
	metrics observability.MetricsRegistry

	mu      sync.RWMutex
	stopped bool
	events  chan Event
	done    chan struct{}
	once    sync.Once
}

// NewRecorder returns a recorder. Call Run to start shipping events.
func NewRecorder(writer Writer, cfg RecorderConfig, logger *zap.Logger, metrics observability.MetricsRegistry) *Recorder {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 10000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Recorder{
		writer:  writer,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		events:  make(chan Event, cfg.BufferSize),
		done:    make(chan struct{}),
	}
}

// Record enqueues ev. A nil recorder discards it, and once Run has begun
// its final drain new events are dropped and counted as such.
func (r *Recorder) Record(ev Event) {
	if r == nil {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.stopped {
		r.metrics.IncrementDroppedEvent(string(ev.Metric), "stopped")
		return
	}
	select {
	case r.events <- ev:
		r.metrics.IncrementEvent(string(ev.Metric))
	default:
		r.metrics.IncrementDroppedEvent(string(ev.Metric), "buffer_full")
	}
}

// Run ships events until ctx is cancelled, then flushes what is buffered and
// returns.
func (r *Recorder) Run(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, r.cfg.BatchSize)
	for {
		select {
		case ev := <-r.events:
			batch = append(batch, ev)
			if len(batch) >= r.cfg.BatchSize {
				batch = r.flush(batch)
			}
		case <-ticker.C:
			batch = r.flush(batch)
		case <-ctx.Done():
			r.mu.Lock()
			r.stopped = true
			r.mu.Unlock()
			r.drain(batch)
			return
		}
	}
}

// drain flushes the pending batch and whatever is still queued.
func (r *Recorder) drain(batch []Event) {
	for {
		select {
		case ev := <-r.events:
			batch = append(batch, ev)
			if len(batch) >= r.cfg.BatchSize {
				batch = r.flush(batch)
			}
		default:
			r.flush(batch)
			return
		}
	}
}

func (r *Recorder) flush(batch []Event) []Event {
	if len(batch) == 0 {
		return batch
	}
	// Run has already been cancelled when draining, so the final write gets
	// its own deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.writer.WriteEvents(ctx, batch); err != nil {
		r.logger.Error("event batch write failed", zap.Int("events", len(batch)), zap.Error(err))
		r.metrics.IncrementAnalyticsErrors("write")
		for _, ev := range batch {
			r.metrics.IncrementDroppedEvent(string(ev.Metric), "write_failed")
		}
	}
	return batch[:0]
}

// Wait blocks until Run has returned.
func (r *Recorder) Wait() {
	if r == nil {
		return
	}
	r.once.Do(func() { <-r.done })
}
