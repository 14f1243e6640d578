package reporting

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/patrickwarner/portalmetrics/internal/counter"
)

func TestSnapshotter_RunOnce(t *testing.T) {
	store := counter.NewMemoryCounter()
	seedViews(t, store, map[string]int64{"post-a": 7, "post-c": 3})
	a := newTestAggregator(t, fixtureContent(), store, nil)

	s, err := NewSnapshotter(a, "0 */5 * * * *", time.Second, zaptest.NewLogger(t), nil)
	require.NoError(t, err)

	r, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(10), r.TotalViews)
	assert.Equal(t, WindowAll, r.Window)

	s.Start()
	s.Stop()
}

func TestSnapshotter_InvalidSchedule(t *testing.T) {
	a := newTestAggregator(t, fixtureContent(), counter.NewMemoryCounter(), nil)
	_, err := NewSnapshotter(a, "every tuesday", time.Second, zaptest.NewLogger(t), nil)
	assert.Error(t, err)
}
