package discovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/muurk/ssdp/internal/logging"
)

// DefaultWorkers bounds how many scheduled task bodies run at once.
const DefaultWorkers = 4

// Task is a handle to scheduled work. Cancel is safe to call more than once
// and from inside the task body.
type Task struct {
	name     string
	period   time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	finished chan struct{}
}

// Name returns the label the task was scheduled under.
func (t *Task) Name() string { return t.name }

// Period returns the repeat interval; zero for one-shot tasks.
func (t *Task) Period() time.Duration { return t.period }

// Cancel stops future executions. A body already running is not interrupted.
func (t *Task) Cancel() { t.cancel() }

// Cancelled reports whether Cancel was called or the scheduler shut down.
func (t *Task) Cancelled() bool { return t.ctx.Err() != nil }

// Done is closed once the task goroutine has exited.
func (t *Task) Done() <-chan struct{} { return t.finished }

func (t *Task) String() string {
	return fmt.Sprintf("Task %s every %s", t.name, t.period)
}

// CancelAll cancels every non-nil task.
func CancelAll(tasks []*Task) {
	for _, t := range tasks {
		if t != nil {
			t.Cancel()
		}
	}
}

// Scheduler runs periodic and delayed tasks against an injectable clock.
// Task bodies share a bounded pool of worker slots.
type Scheduler struct {
	clock  clock.Clock
	slots  *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewScheduler creates a scheduler. workers <= 0 uses DefaultWorkers and a
// nil clock uses the wall clock.
func NewScheduler(clk clock.Clock, workers int) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		clock:  clk,
		slots:  semaphore.NewWeighted(int64(workers)),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Clock returns the scheduler's time source.
func (s *Scheduler) Clock() clock.Clock { return s.clock }

// Every runs fn at a fixed rate, first after one period. Ticks that arrive
// while a run is executing are discarded once it returns, so a slow body
// is not followed by an immediate catch-up run.
func (s *Scheduler) Every(name string, period time.Duration, fn func()) (*Task, error) {
	if period <= 0 {
		return nil, fmt.Errorf("task %s: period must be positive, got %s", name, period)
	}

	t, err := s.newTask(name, period)
	if err != nil {
		return nil, err
	}

	// The ticker is created before returning so a mock clock advanced
	// right after scheduling still fires it.
	ticker := s.clock.Ticker(period)

	go func() {
		defer s.wg.Done()
		defer close(t.finished)
		defer ticker.Stop()

		for {
			select {
			case <-t.ctx.Done():
				return
			case <-ticker.C:
				if !s.execute(t, fn) {
					return
				}
				// The ticker holds one pending tick.
				select {
				case <-ticker.C:
				default:
				}
			}
		}
	}()

	return t, nil
}

// After runs fn once after delay.
func (s *Scheduler) After(name string, delay time.Duration, fn func()) (*Task, error) {
	t, err := s.newTask(name, 0)
	if err != nil {
		return nil, err
	}

	timer := s.clock.Timer(delay)

	go func() {
		defer s.wg.Done()
		defer close(t.finished)
		defer t.cancel()

		select {
		case <-t.ctx.Done():
			timer.Stop()
		case <-timer.C:
			s.execute(t, fn)
		}
	}()

	return t, nil
}

func (s *Scheduler) newTask(name string, period time.Duration) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSchedulerClosed
	}

	ctx, cancel := context.WithCancel(s.ctx)
	s.wg.Add(1)
	return &Task{
		name:     name,
		period:   period,
		ctx:      ctx,
		cancel:   cancel,
		finished: make(chan struct{}),
	}, nil
}

// execute waits for a worker slot and runs fn. It returns false when the
// task was cancelled while waiting; a panicking body still counts as run.
func (s *Scheduler) execute(t *Task, fn func()) (ran bool) {
	if err := s.slots.Acquire(t.ctx, 1); err != nil {
		return false
	}
	defer s.slots.Release(1)
	ran = true

	defer func() {
		if r := recover(); r != nil {
			logging.Error("Scheduled task panicked",
				zap.String("task", t.name),
				zap.Any("panic", r),
			)
		}
	}()

	fn()
	return ran
}

// Shutdown cancels every task and waits for running bodies to return or
// for ctx to expire, whichever comes first.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler shutdown: %w", ctx.Err())
	}
}
