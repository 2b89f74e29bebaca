// internal/scheduler/scheduler_test.go
package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/recovery-warden/api/schemas"
	"github.com/xkilldash9x/recovery-warden/internal/mocks"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptedRunner returns the queued delays in order and then repeats the last.
type scriptedRunner struct {
	mu     sync.Mutex
	delays []int
	calls  int
	panics map[int]bool
}

func (r *scriptedRunner) Run(context.Context) schemas.RunReport {
	r.mu.Lock()
	i := r.calls
	r.calls++
	r.mu.Unlock()
	if r.panics[i] {
		panic("run blew up")
	}
	d := r.delays[len(r.delays)-1]
	if i < len(r.delays) {
		d = r.delays[i]
	}
	return schemas.RunReport{RunID: "run", Entered: true, Schedule: schemas.ScheduleState{NextDelayMinutes: d}}
}

// recordingSleep records requested delays and cancels after limit calls.
type recordingSleep struct {
	mu     sync.Mutex
	waits  []time.Duration
	limit  int
	cancel context.CancelFunc
}

func (s *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	n := len(s.waits)
	s.mu.Unlock()
	if n >= s.limit {
		s.cancel()
		return ctx.Err()
	}
	return nil
}

func TestRunForever_ThreadsScheduleBetweenRuns(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := &scriptedRunner{delays: []int{30, 5, 0}}
	rec := &recordingSleep{limit: 3, cancel: cancel}
	New(runner, zaptest.NewLogger(t), WithSleep(rec.sleep)).RunForever(ctx)

	assert.Equal(t, 3, runner.calls, "the first run starts before any wait")
	assert.Equal(t, []time.Duration{30 * time.Minute, 5 * time.Minute, 10 * time.Minute}, rec.waits)
}

func TestRunForever_SurvivesPanickingRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := &scriptedRunner{delays: []int{20}, panics: map[int]bool{0: true}}
	rec := &recordingSleep{limit: 2, cancel: cancel}
	New(runner, zaptest.NewLogger(t), WithSleep(rec.sleep)).RunForever(ctx)

	assert.Equal(t, 2, runner.calls)
	assert.Equal(t, []time.Duration{10 * time.Minute, 20 * time.Minute}, rec.waits)
}

func TestRunForever_CancelledContextDoesNotRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := &scriptedRunner{delays: []int{1}}
	New(runner, nil).RunForever(ctx)
	assert.Zero(t, runner.calls)
}

func TestRunForever_StopsWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner := &scriptedRunner{delays: []int{60}}

	done := make(chan struct{})
	go func() {
		defer close(done)
		New(runner, zaptest.NewLogger(t)).RunForever(ctx)
	}()

	require.Eventually(t, func() bool {
		runner.mu.Lock()
		defer runner.mu.Unlock()
		return runner.calls == 1
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancellation")
	}
}

func TestRunOnce_NotifiesObservers(t *testing.T) {
	first := new(mocks.MockRunObserver)
	first.On("RunCompleted", mock.Anything, mock.MatchedBy(func(r schemas.RunReport) bool {
		return r.Schedule.NextDelayMinutes == 15
	})).Return().Once()

	panicking := new(mocks.MockRunObserver)
	panicking.On("RunCompleted", mock.Anything, mock.Anything).Panic("observer bug").Once()

	last := new(mocks.MockRunObserver)
	last.On("RunCompleted", mock.Anything, mock.Anything).Return().Once()

	s := New(&scriptedRunner{delays: []int{15}}, zaptest.NewLogger(t), WithObservers(first, panicking, last))
	state := s.RunOnce(context.Background())

	assert.Equal(t, 15, state.NextDelayMinutes)
	first.AssertExpectations(t)
	last.AssertExpectations(t)
}

func TestSleep(t *testing.T) {
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}
