// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/recovery-warden/api/schemas"
)

// Runner performs one complete run and reports the schedule for the next.
type Runner interface {
	Run(ctx context.Context) schemas.RunReport
}

// SleepFunc waits for d or until ctx is done, returning ctx.Err() in the latter case.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Scheduler repeats runs forever. The first run starts immediately; every
// later one waits for the delay the previous run returned. The delay is
// threaded from run to run as a value and never stored globally.
type Scheduler struct {
	runner    Runner
	observers []schemas.RunObserver
	sleep     SleepFunc
	logger    *zap.Logger
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithObservers registers observers called after every run, in order.
func WithObservers(observers ...schemas.RunObserver) Option {
	return func(s *Scheduler) { s.observers = append(s.observers, observers...) }
}

// WithSleep replaces the timer based wait, mostly for tests.
func WithSleep(sleep SleepFunc) Option {
	return func(s *Scheduler) { s.sleep = sleep }
}

// New creates a scheduler around runner.
func New(runner Runner, logger *zap.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		runner: runner,
		sleep:  Sleep,
		logger: logger.Named("scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunForever loops until ctx is cancelled. A failing or panicking run never
// stops the loop.
func (s *Scheduler) RunForever(ctx context.Context) {
	s.logger.Info("Scheduler started.")
	for ctx.Err() == nil {
		state := s.RunOnce(ctx)

		delay := state.Delay()
		s.logger.Info("Waiting for the next run.",
			zap.Duration("delay", delay),
			zap.Time("next_run", time.Now().Add(delay)))
		if err := s.sleep(ctx, delay); err != nil {
			break
		}
	}
	s.logger.Info("Scheduler stopped.")
}

// RunOnce performs a single run, hands the report to every observer and
// returns the schedule for the next run.
func (s *Scheduler) RunOnce(ctx context.Context) schemas.ScheduleState {
	report := s.runSafely(ctx)
	for _, obs := range s.observers {
		s.observe(ctx, obs, report)
	}
	return report.Schedule
}

func (s *Scheduler) runSafely(ctx context.Context) (report schemas.RunReport) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Recovered from panic in run.",
				zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			report = schemas.RunReport{Schedule: schemas.DefaultScheduleState()}
		}
	}()
	return s.runner.Run(ctx)
}

func (s *Scheduler) observe(ctx context.Context, obs schemas.RunObserver, report schemas.RunReport) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("Run observer panicked.", zap.Any("panic", r))
		}
	}()
	obs.RunCompleted(ctx, report)
}

// Sleep waits for d unless ctx finishes first.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
