package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunNowRecordsLastRun(t *testing.T) {
	svc := New(nil)
	details, err := svc.RunNow(context.Background(), JobSessionSweep, func(context.Context) (any, error) {
		return map[string]int{"deleted": 3}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"deleted": 3}, details)

	run, ok := svc.LastRun(JobSessionSweep)
	require.True(t, ok)
	assert.Equal(t, "completed", run.Status)
	assert.False(t, run.CompletedAt.Before(run.StartedAt))
}

func TestRunNowFailure(t *testing.T) {
	svc := New(nil)
	boom := errors.New("boom")
	_, err := svc.RunNow(context.Background(), "failing", func(context.Context) (any, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
	run, ok := svc.LastRun("failing")
	require.True(t, ok)
	assert.Equal(t, "failed", run.Status)
}

func TestScheduleRunsThroughWorker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	svc := New(nil)
	svc.Start(ctx)

	var calls atomic.Int32
	svc.Schedule(ctx, JobSessionSweep, 5*time.Millisecond, func(context.Context) (any, error) {
		calls.Add(1)
		return nil, nil
	})

	require.Eventually(t, func() bool { return calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	svc.Wait()
}

func TestScheduleIgnoresNonPositiveInterval(t *testing.T) {
	svc := New(nil)
	svc.Schedule(context.Background(), "never", 0, func(context.Context) (any, error) { return nil, nil })
	svc.Wait()
	_, ok := svc.LastRun("never")
	assert.False(t, ok)
}

func TestEnqueueReportsFullQueue(t *testing.T) {
	svc := New(nil)
	noop := func(context.Context) (any, error) { return nil, nil }
	for i := 0; i < cap(svc.queue); i++ {
		require.True(t, svc.Enqueue("fill", noop))
	}
	assert.False(t, svc.Enqueue("overflow", noop))
}
