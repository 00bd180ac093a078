package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock fires every wait immediately and records how long it was
// asked to wait.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	delays []time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delays = append(c.delays, d)
	c.now = c.now.Add(d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func (c *fakeClock) waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.delays...)
}

func TestSchedulerIntervalAndBackoff(t *testing.T) {
	t.Parallel()

	// fail, fail, fail, fail, ok, fail, ok, then stop
	script := []error{errors.New("e1"), errors.New("e2"), errors.New("e3"), errors.New("e4"), nil, errors.New("e5"), nil}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int32
	clock := &fakeClock{now: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}
	log, hook := test.NewNullLogger()

	s := &Scheduler{
		Name:       "evaluate",
		Interval:   time.Second,
		Backoff:    5 * time.Second,
		MaxBackoff: 15 * time.Second,
		Clock:      clock,
		Log:        log,
		Task: func(context.Context) error {
			n := atomic.AddInt32(&calls, 1)
			if int(n) >= len(script) {
				cancel()
				return nil
			}
			return script[n-1]
		},
	}

	err := s.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	want := []time.Duration{
		0,                // first run is immediate
		5 * time.Second,  // after e1
		10 * time.Second, // after e2
		15 * time.Second, // after e3, capped
		15 * time.Second, // after e4
		time.Second,      // after ok
		5 * time.Second,  // after e5, backoff reset by the success
	}
	assert.Equal(t, want, clock.waits()[:len(want)])

	st := s.Stats()
	assert.Equal(t, 5, st.Failures)
	assert.Equal(t, len(script), st.Runs)

	var errorsLogged int
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel {
			errorsLogged++
			assert.Equal(t, "evaluate", e.Data["scheduler"])
		}
	}
	assert.Equal(t, 5, errorsLogged)
}

func TestSchedulerStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &Scheduler{Interval: time.Hour, Task: func(context.Context) error {
		t.Fatal("task must not run after cancel")
		return nil
	}}
	assert.ErrorIs(t, s.Run(ctx), context.Canceled)
}

func TestSchedulerNilTask(t *testing.T) {
	t.Parallel()

	assert.Error(t, (&Scheduler{}).Run(context.Background()))
}

func TestRunAll(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var a, b int32
	RunAll(ctx,
		&Scheduler{Name: "a", Interval: time.Millisecond, Task: func(context.Context) error { atomic.AddInt32(&a, 1); return nil }},
		&Scheduler{Name: "b", Interval: time.Millisecond, Task: func(context.Context) error { atomic.AddInt32(&b, 1); return nil }},
	)
	require.Error(t, ctx.Err())
	assert.Positive(t, atomic.LoadInt32(&a))
	assert.Positive(t, atomic.LoadInt32(&b))
}
