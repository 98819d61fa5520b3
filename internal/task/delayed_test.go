package task

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/tagmatch/internal/testutil"
)

func TestDelayedRunsOnce(t *testing.T) {
	d := NewDelayed("test", testutil.NopLogger())

	var runs atomic.Int32
	require.True(t, d.Schedule(context.Background(), 5*time.Millisecond, func(context.Context) { runs.Add(1) }))
	assert.True(t, d.Pending())

	require.Eventually(t, func() bool { return !d.Pending() }, time.Second, time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())
}

func TestDelayedIgnoresScheduleWhilePending(t *testing.T) {
	d := NewDelayed("test", testutil.NopLogger())

	var runs atomic.Int32
	fn := func(context.Context) { runs.Add(1) }

	require.True(t, d.Schedule(context.Background(), 10*time.Millisecond, fn))
	assert.False(t, d.Schedule(context.Background(), 10*time.Millisecond, fn))
	assert.False(t, d.Schedule(context.Background(), 0, fn))

	require.Eventually(t, func() bool { return !d.Pending() }, time.Second, time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())

	// can schedule again once the first completed
	require.True(t, d.Schedule(context.Background(), 0, fn))
	require.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, time.Millisecond)
}

func TestDelayedCancel(t *testing.T) {
	d := NewDelayed("test", testutil.NopLogger())

	var runs atomic.Int32
	d.Schedule(context.Background(), time.Hour, func(context.Context) { runs.Add(1) })
	d.Cancel()
	d.Cancel()

	assert.False(t, d.Pending())
	assert.Equal(t, int32(0), runs.Load())
}

func TestDelayedCancelWithNothingPending(t *testing.T) {
	d := NewDelayed("test", testutil.NopLogger())
	d.Cancel()
	assert.False(t, d.Pending())
}
