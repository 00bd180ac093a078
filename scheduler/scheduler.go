// Package scheduler drives periodic work: order evaluation, expiry and
// valuation each run as their own Scheduler.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Clock abstracts waiting so tests never sleep.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock is the wall clock.
var RealClock Clock = realClock{}

type Task func(ctx context.Context) error

// Scheduler runs Task immediately, then every Interval after a success.
// After a failure it waits Backoff, doubling on each consecutive failure
// up to MaxBackoff.
type Scheduler struct {
	Name       string
	Interval   time.Duration
	Backoff    time.Duration
	MaxBackoff time.Duration
	Task       Task
	Clock      Clock
	Log        logrus.FieldLogger

	mu    sync.Mutex
	stats Stats
}

type Stats struct {
	Runs     int
	Failures int
	LastRun  time.Time
	LastErr  error
}

func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Run blocks until ctx is cancelled and returns ctx.Err().
func (s *Scheduler) Run(ctx context.Context) error {
	if s.Task == nil {
		return errors.New("scheduler: nil task")
	}
	clock := s.Clock
	if clock == nil {
		clock = RealClock
	}
	log := s.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("scheduler", s.Name)

	backoff := s.Backoff
	if backoff <= 0 {
		backoff = s.Interval
	}

	var delay time.Duration
	next := backoff
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clock.After(delay):
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := s.Task(ctx)
		s.record(clock.Now(), err)

		if err == nil {
			delay = s.Interval
			next = backoff
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay = next
		next *= 2
		if s.MaxBackoff > 0 && next > s.MaxBackoff {
			next = s.MaxBackoff
		}
		if s.MaxBackoff > 0 && delay > s.MaxBackoff {
			delay = s.MaxBackoff
		}
		log.WithError(err).WithField("retry_in", delay.String()).Error("task failed")
	}
}

func (s *Scheduler) record(at time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Runs++
	s.stats.LastRun = at
	s.stats.LastErr = err
	if err != nil {
		s.stats.Failures++
	}
}

// RunAll runs every scheduler until ctx is cancelled and waits for all of
// them to return.
func RunAll(ctx context.Context, ss ...*Scheduler) {
	var wg sync.WaitGroup
	for _, s := range ss {
		s := s
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Run(ctx)
		}()
	}
	wg.Wait()
}
