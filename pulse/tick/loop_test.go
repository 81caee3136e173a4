package tick

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestLoopDriversAreExclusive(t *testing.T) {
	var sched, job atomic.Int32
	var l *Loop
	l = New(Config{Interval: 5 * time.Millisecond}, Handlers{
		Scheduler: func(context.Context, time.Time) {
			if sched.Add(1) == 3 {
				l.Arm(DriverJob)
			}
		},
		Job: func(context.Context, time.Time) { job.Add(1) },
	}, zaptest.NewLogger(t).Sugar())
	l.Start()
	defer l.Stop()

	require.NoError(t, l.Do(func() { l.Arm(DriverScheduler) }))
	require.Eventually(t, func() bool { return job.Load() >= 3 }, time.Second, time.Millisecond)
	assert.Equal(t, int32(3), sched.Load(), "scheduler driver must stop once the job driver is armed")
	assert.Equal(t, DriverJob, l.Stats().Driver)
}

func TestLoopSleepWakes(t *testing.T) {
	var woke atomic.Bool
	var l *Loop
	l = New(Config{Interval: 5 * time.Millisecond}, Handlers{
		Wake: func(context.Context, time.Time) {
			woke.Store(true)
			l.Arm(DriverScheduler)
		},
	}, zaptest.NewLogger(t).Sugar())
	l.Start()
	defer l.Stop()

	require.NoError(t, l.Do(func() {
		l.Arm(DriverNone)
		l.Sleep(20 * time.Millisecond)
	}))
	assert.False(t, l.Stats().SleepUntil.IsZero())
	require.Eventually(t, woke.Load, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return l.Stats().Driver == DriverScheduler }, time.Second, time.Millisecond)
	assert.True(t, l.Stats().SleepUntil.IsZero())
}

func TestLoopCancelSleep(t *testing.T) {
	var woke atomic.Bool
	l := New(Config{Interval: time.Millisecond}, Handlers{
		Wake: func(context.Context, time.Time) { woke.Store(true) },
	}, zaptest.NewLogger(t).Sugar())
	l.Start()
	defer l.Stop()

	require.NoError(t, l.Do(func() { l.Sleep(10 * time.Millisecond) }))
	require.NoError(t, l.Do(func() { l.CancelSleep() }))
	time.Sleep(30 * time.Millisecond)
	assert.False(t, woke.Load())
}

func TestDoAfterStop(t *testing.T) {
	l := New(DefaultConfig(), Handlers{}, zaptest.NewLogger(t).Sugar())
	l.Start()
	l.Stop()
	assert.ErrorIs(t, l.Do(func() {}), ErrStopped)
}
