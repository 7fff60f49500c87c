package engine_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zametkikostik/tonhub-exchange/pkg/engine"
)

func TestSchedulerRunsTasks(t *testing.T) {
	sched := engine.NewScheduler(zerolog.Nop())

	var runs atomic.Int64
	sched.Add(engine.Task{
		Name:     "counter",
		Interval: 5 * time.Millisecond,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	ctx := context.Background()
	sched.Start(ctx)

	assert.Eventually(t, func() bool {
		return runs.Load() >= 3
	}, time.Second, 5*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, sched.Stop(stopCtx))

	// No further cycles after Stop.
	final := runs.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, final, runs.Load())
}

func TestSchedulerKeepsRunningAfterTaskError(t *testing.T) {
	sched := engine.NewScheduler(zerolog.Nop())

	var runs atomic.Int64
	sched.Add(engine.Task{
		Name:     "flaky",
		Interval: 5 * time.Millisecond,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return errors.New("cycle failed")
		},
	})

	sched.Start(context.Background())
	assert.Eventually(t, func() bool {
		return runs.Load() >= 2
	}, time.Second, 5*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, sched.Stop(stopCtx))
}

func TestSchedulerStopsOnContextCancel(t *testing.T) {
	sched := engine.NewScheduler(zerolog.Nop())

	var runs atomic.Int64
	sched.Add(engine.Task{
		Name:     "counter",
		Interval: 5 * time.Millisecond,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	sched.Start(ctx)
	cancel()

	stopCtx, stop := context.WithTimeout(context.Background(), time.Second)
	defer stop()
	require.NoError(t, sched.Stop(stopCtx))
}
