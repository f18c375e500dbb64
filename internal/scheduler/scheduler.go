// Package scheduler runs refresh actions on a fixed interval. Each tick
// recomputes the time window before invoking the action, and every tick runs
// in its own goroutine: a slow tick never delays the next one, and whichever
// tick settles last publishes last.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"hawkview/internal/models"
	"hawkview/internal/window"
)

const DefaultInterval = 20 * time.Second

// Action refreshes one view for the given window.
type Action func(ctx context.Context, w models.TimeWindow)

type Scheduler struct {
	clock Clock
	log   *slog.Logger
}

func New(clock Clock, logger *slog.Logger) *Scheduler {
	if clock == nil {
		clock = realClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{clock: clock, log: logger.With("module", "scheduler")}
}

func (s *Scheduler) Now() time.Time {
	return s.clock.Now()
}

// Task is the handle of one recurring refresh. The owner must Cancel it.
type Task struct {
	name     string
	interval time.Duration
	ticker   Ticker
	stop     chan struct{}
	once     sync.Once
	loop     sync.WaitGroup
	inflight sync.WaitGroup
}

// Start arms a ticker that first fires one interval from now. ctx bounds the
// loop and is handed to every action; cancelling the task alone does not
// cancel actions already running.
func (s *Scheduler) Start(ctx context.Context, name string, interval time.Duration, spec *window.Spec, action Action) *Task {
	if interval <= 0 {
		interval = DefaultInterval
	}
	t := &Task{
		name:     name,
		interval: interval,
		ticker:   s.clock.Ticker(interval),
		stop:     make(chan struct{}),
	}
	t.loop.Add(1)
	go s.run(ctx, t, spec, action)
	s.log.Debug("task started", "task", name, "interval", interval)
	return t
}

func (s *Scheduler) run(ctx context.Context, t *Task, spec *window.Spec, action Action) {
	defer t.loop.Done()
	defer t.ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case <-t.ticker.Chan():
			select {
			case <-t.stop:
				return
			default:
			}
			w := spec.Compute(s.clock.Now())
			t.inflight.Add(1)
			go func() {
				defer t.inflight.Done()
				action(ctx, w)
			}()
		}
	}
}

func (t *Task) Interval() time.Duration {
	return t.interval
}

// Cancel stops the ticker. Repeated calls are no-ops.
func (t *Task) Cancel() {
	t.once.Do(func() {
		close(t.stop)
	})
}

// Wait blocks until the loop has exited and every started action returned.
func (t *Task) Wait() {
	t.loop.Wait()
	t.inflight.Wait()
}
