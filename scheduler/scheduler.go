// Package scheduler runs the node's periodic background work: deposit
// polling, the withdrawal sweep, batch production and batch finalization.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/btcl2/l2node/taskgroup"
)

var (
	ErrStarted    = errors.New("scheduler: already started")
	ErrNotStarted = errors.New("scheduler: not started")
)

// Task is a named unit of periodic work. Run is called once per Interval;
// an error is logged and the task runs again on the next tick.
type Task struct {
	Name     string
	Interval time.Duration
	// Immediate runs the task once when the supervisor starts.
	Immediate bool
	Run       func(ctx context.Context) error
}

// Opt configures Supervisor.
type Opt func(*Supervisor)

func WithLogger(logger *zap.Logger) Opt {
	return func(s *Supervisor) {
		s.logger = logger
	}
}

func WithClock(clock clockwork.Clock) Opt {
	return func(s *Supervisor) {
		s.clock = clock
	}
}

// Supervisor owns a set of tasks and their lifetime.
type Supervisor struct {
	logger *zap.Logger
	clock  clockwork.Clock

	mu     sync.Mutex
	tasks  []Task
	cancel context.CancelFunc
	group  *taskgroup.Group
}

func New(opts ...Opt) *Supervisor {
	s := &Supervisor{
		logger: zap.NewNop(),
		clock:  clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers a task. Tasks must be added before Start.
func (s *Supervisor) Add(task Task) error {
	if task.Name == "" || task.Run == nil {
		return errors.New("scheduler: task needs a name and a run function")
	}
	if task.Interval <= 0 {
		return fmt.Errorf("scheduler: task %s has non-positive interval %s", task.Name, task.Interval)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.group != nil {
		return ErrStarted
	}
	for _, t := range s.tasks {
		if t.Name == task.Name {
			return fmt.Errorf("scheduler: duplicate task %s", task.Name)
		}
	}
	s.tasks = append(s.tasks, task)
	return nil
}

// Start launches every task. It returns immediately.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.group != nil {
		return ErrStarted
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.group = taskgroup.New(taskgroup.WithContext(ctx))
	for _, task := range s.tasks {
		if err := s.group.Go(func(ctx context.Context) error {
			s.loop(ctx, task)
			return ctx.Err()
		}); err != nil {
			return err
		}
	}
	s.logger.Info("scheduler started", zap.Int("tasks", len(s.tasks)))
	return nil
}

// Stop cancels all tasks and waits for running ones to return.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	group, cancel := s.group, s.cancel
	s.mu.Unlock()
	if group == nil {
		return ErrNotStarted
	}
	cancel()
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	s.logger.Info("scheduler stopped")
	return nil
}

func (s *Supervisor) loop(ctx context.Context, task Task) {
	logger := s.logger.With(zap.String("task", task.Name))
	logger.Debug("task scheduled", zap.Duration("interval", task.Interval))
	if task.Immediate {
		s.run(ctx, logger, task)
	}
	timer := s.clock.NewTimer(task.Interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.Chan():
			s.run(ctx, logger, task)
			timer.Reset(task.Interval)
		}
	}
}

func (s *Supervisor) run(ctx context.Context, logger *zap.Logger, task Task) {
	start := s.clock.Now()
	err := task.Run(ctx)
	runDuration.WithLabelValues(task.Name).Observe(s.clock.Since(start).Seconds())
	switch {
	case err == nil:
		runs.WithLabelValues(task.Name, "ok").Inc()
	case ctx.Err() != nil:
		runs.WithLabelValues(task.Name, "canceled").Inc()
	default:
		runs.WithLabelValues(task.Name, "error").Inc()
		logger.Warn("task failed, retrying on next tick", zap.Error(err))
	}
}
