package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"folio/internal/logging"
)

// Func is the operation an Executor runs. It must return promptly once ctx
// is cancelled.
type Func[In, Out any] func(ctx context.Context, in In) (Out, error)

// Outcome is delivered to the completion callback of an accepted submission.
type Outcome[Out any] struct {
	JobID     string
	Value     Out
	Err       error
	Cancelled bool
	Elapsed   time.Duration
}

// Executor admits at most one in-flight run of its operation.
type Executor[In, Out any] struct {
	name   string
	fn     Func[In, Out]
	logger *slog.Logger

	running atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc
	// done is closed when the current run, including its callback, returns.
	done    chan struct{}
}

// New creates an idle executor for fn. name identifies the executor in logs.
func New[In, Out any](name string, fn Func[In, Out], logger *slog.Logger) *Executor[In, Out] {
	return &Executor[In, Out]{
		name:   name,
		fn:     fn,
		logger: logging.NewComponentLogger(logger, "jobs").With(logging.String(logging.FieldJob, name)),
	}
}

// Submit starts fn(in) on a new goroutine and returns true, or returns false
// without doing anything when a run is already in flight. onComplete, when
// non-nil, runs on the worker goroutine before the executor becomes idle
// again, so a Submit issued from inside onComplete is dropped.
func (e *Executor[In, Out]) Submit(ctx context.Context, in In, onComplete func(Outcome[Out])) bool {
	if !e.running.CompareAndSwap(false, true) {
		e.logger.Debug("job dropped; already running")
		return false
	}
	if ctx == nil {
		ctx = context.Background()
	}

	jobID := uuid.NewString()
	jobCtx, cancel := context.WithCancel(logging.WithJobID(ctx, jobID))

	done := make(chan struct{})
	e.mu.Lock()
	e.cancel = cancel
	e.done = done
	e.mu.Unlock()

	go e.run(jobCtx, cancel, done, jobID, in, onComplete)
	return true
}

func (e *Executor[In, Out]) run(ctx context.Context, cancel context.CancelFunc, done chan struct{}, jobID string, in In, onComplete func(Outcome[Out])) {
	defer close(done)
	defer e.running.Store(false)

	started := time.Now()
	e.logger.DebugContext(ctx, "job started")

	value, err := e.invoke(ctx, in)
	outcome := Outcome[Out]{
		JobID:     jobID,
		Value:     value,
		Err:       err,
		Cancelled: err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()),
		Elapsed:   time.Since(started),
	}

	e.mu.Lock()
	e.cancel = nil
	e.mu.Unlock()
	cancel()

	switch {
	case outcome.Cancelled:
		e.logger.InfoContext(ctx, "job cancelled", logging.Duration("elapsed", outcome.Elapsed))
	case err != nil:
		e.logger.DebugContext(ctx, "job failed", logging.Duration("elapsed", outcome.Elapsed), logging.Error(err))
	default:
		e.logger.DebugContext(ctx, "job finished", logging.Duration("elapsed", outcome.Elapsed))
	}

	if onComplete != nil {
		onComplete(outcome)
	}
}

func (e *Executor[In, Out]) invoke(ctx context.Context, in In) (value Out, err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(e.logger, "job panicked", "job_panic",
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())))
			err = fmt.Errorf("%s job panicked: %v", e.name, r)
		}
	}()
	return e.fn(ctx, in)
}

// Busy reports whether a run is in flight.
func (e *Executor[In, Out]) Busy() bool {
	return e.running.Load()
}

// Cancel asks the in-flight run, if any, to stop. It does not wait.
func (e *Executor[In, Out]) Cancel() {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the in-flight run, including its completion callback,
// has returned. It may be called concurrently with Submit; a run accepted
// after Wait starts is not waited for.
func (e *Executor[In, Out]) Wait() {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done != nil {
		<-done
	}
}
