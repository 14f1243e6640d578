package analytics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/patrickwarner/portalmetrics/internal/models"
)

type fakeWriter struct {
	mu      sync.Mutex
	batches [][]Event
	err     error
}

func (f *fakeWriter) WriteEvents(_ context.Context, events []Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, append([]Event(nil), events...))
	return nil
}

func (f *fakeWriter) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func TestRecorder_FlushesOnBatchSize(t *testing.T) {
	w := &fakeWriter{}
	r := NewRecorder(w, RecorderConfig{BufferSize: 100, BatchSize: 3, FlushInterval: time.Hour}, zaptest.NewLogger(t), nil)

	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)

	for i := 0; i < 3; i++ {
		r.Record(NewEvent(models.MetricView, "post-1"))
	}
	require.Eventually(t, func() bool { return w.total() == 3 }, time.Second, 5*time.Millisecond)

	cancel()
	r.Wait()
	assert.Len(t, w.batches, 1)
}

func TestRecorder_DrainsOnShutdown(t *testing.T) {
	w := &fakeWriter{}
	r := NewRecorder(w, RecorderConfig{BufferSize: 100, BatchSize: 50, FlushInterval: time.Hour}, zaptest.NewLogger(t), nil)

	for i := 0; i < 7; i++ {
		r.Record(NewEvent(models.MetricClick, "ad-1"))
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Run(ctx)

	assert.Equal(t, 7, w.total())
}

func TestRecorder_RecordAfterShutdownIsDropped(t *testing.T) {
	w := &fakeWriter{}
	r := NewRecorder(w, RecorderConfig{BufferSize: 100, BatchSize: 50, FlushInterval: time.Hour}, zaptest.NewLogger(t), nil)

	r.Record(NewEvent(models.MetricView, "post-1"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Run(ctx)
	require.Equal(t, 1, w.total())

	r.Record(NewEvent(models.MetricView, "post-2"))
	assert.Zero(t, len(r.events), "nothing reads the buffer after shutdown")
	assert.Equal(t, 1, w.total())
}

func TestRecorder_FlushesOnInterval(t *testing.T) {
	w := &fakeWriter{}
	r := NewRecorder(w, RecorderConfig{BufferSize: 100, BatchSize: 50, FlushInterval: 10 * time.Millisecond}, zaptest.NewLogger(t), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		r.Wait()
	}()
	go r.Run(ctx)

	r.Record(NewEvent(models.MetricImpression, "ad-2"))
	require.Eventually(t, func() bool { return w.total() == 1 }, time.Second, 5*time.Millisecond)
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	w := &fakeWriter{}
	r := NewRecorder(w, RecorderConfig{BufferSize: 2, BatchSize: 10, FlushInterval: time.Hour}, zaptest.NewLogger(t), nil)

	for i := 0; i < 5; i++ {
		r.Record(NewEvent(models.MetricView, "post-1"))
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Run(ctx)

	assert.Equal(t, 2, w.total())
}

func TestRecorder_WriteErrorDoesNotStop(t *testing.T) {
	w := &fakeWriter{err: errors.New("clickhouse down")}
	r := NewRecorder(w, RecorderConfig{BufferSize: 10, BatchSize: 1, FlushInterval: time.Hour}, zaptest.NewLogger(t), nil)

	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)
	r.Record(NewEvent(models.MetricView, "post-1"))
	r.Record(NewEvent(models.MetricView, "post-2"))

	cancel()
	r.Wait()
	assert.Zero(t, w.total())
}

func TestRecorder_NilSafe(t *testing.T) {
	var r *Recorder
	r.Record(NewEvent(models.MetricView, "post-1"))
	r.Wait()
}

func TestNewEvent(t *testing.T) {
	ev := NewEvent(models.MetricView, "post-1")
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, models.MetricView, ev.Metric)
	assert.WithinDuration(t, time.Now(), ev.Timestamp, time.Second)
}

func TestClickHouse_Unconfigured(t *testing.T) {
	var c *ClickHouse
	ctx := context.Background()
	assert.ErrorIs(t, c.WriteEvents(ctx, []Event{NewEvent(models.MetricView, "x")}), ErrUnavailable)
	_, err := c.DailyCounts(ctx, models.MetricView, time.Now())
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = c.EventsForEntity(ctx, "x", 10)
	assert.ErrorIs(t, err, ErrUnavailable)
}
