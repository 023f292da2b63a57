package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmitWhileBusyIsDropped(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	exec := New("test", func(ctx context.Context, in int) (int, error) {
		calls.Add(1)
		<-release
		return in * 2, nil
	}, nil)

	completions := make(chan Outcome[int], 2)
	onComplete := func(o Outcome[int]) { completions <- o }

	if !exec.Submit(context.Background(), 21, onComplete) {
		t.Fatal("first submit should be accepted")
	}
	if !exec.Busy() {
		t.Fatal("executor should be busy")
	}
	if exec.Submit(context.Background(), 99, onComplete) {
		t.Fatal("second submit should be dropped while busy")
	}

	close(release)
	exec.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("operation ran %d times, want 1", got)
	}
	if len(completions) != 1 {
		t.Fatalf("got %d completions, want 1", len(completions))
	}
	outcome := <-completions
	if outcome.Value != 42 || outcome.Err != nil || outcome.Cancelled {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if outcome.JobID == "" {
		t.Fatal("expected job id")
	}
	if exec.Busy() {
		t.Fatal("executor should be idle after completion")
	}
}

func TestExecutorAcceptsAgainAfterCompletion(t *testing.T) {
	exec := New("test", func(ctx context.Context, in string) (string, error) {
		return in, nil
	}, nil)

	for _, input := range []string{"a", "b"} {
		done := make(chan Outcome[string], 1)
		if !exec.Submit(context.Background(), input, func(o Outcome[string]) { done <- o }) {
			t.Fatalf("submit %q should be accepted", input)
		}
		exec.Wait()
		if got := (<-done).Value; got != input {
			t.Fatalf("value = %q, want %q", got, input)
		}
	}
}

func TestCancelStopsInFlightRun(t *testing.T) {
	started := make(chan struct{})
	exec := New("test", func(ctx context.Context, _ struct{}) (int, error) {
		close(started)
		<-ctx.Done()
		return 0, ctx.Err()
	}, nil)

	done := make(chan Outcome[int], 1)
	exec.Submit(context.Background(), struct{}{}, func(o Outcome[int]) { done <- o })
	<-started
	exec.Cancel()

	select {
	case outcome := <-done:
		if !outcome.Cancelled {
			t.Fatalf("expected cancelled outcome, got %+v", outcome)
		}
		if !errors.Is(outcome.Err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", outcome.Err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for cancellation")
	}
	exec.Wait()
}

func TestErrorsAreDeliveredNotCancelled(t *testing.T) {
	boom := errors.New("boom")
	exec := New("test", func(ctx context.Context, _ int) (int, error) {
		return 0, boom
	}, nil)

	done := make(chan Outcome[int], 1)
	exec.Submit(context.Background(), 0, func(o Outcome[int]) { done <- o })
	exec.Wait()

	outcome := <-done
	if !errors.Is(outcome.Err, boom) || outcome.Cancelled {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}

func TestPanicIsRecoveredAsError(t *testing.T) {
	exec := New("test", func(ctx context.Context, _ int) (int, error) {
		panic("bad corpus")
	}, nil)

	done := make(chan Outcome[int], 1)
	exec.Submit(context.Background(), 0, func(o Outcome[int]) { done <- o })
	exec.Wait()

	outcome := <-done
	if outcome.Err == nil {
		t.Fatal("expected panic to surface as error")
	}
	if exec.Busy() {
		t.Fatal("executor should be idle after a panic")
	}
}

func TestSubmitFromCallbackIsDropped(t *testing.T) {
	var exec *Executor[int, int]
	exec = New("test", func(ctx context.Context, in int) (int, error) {
		return in, nil
	}, nil)

	accepted := make(chan bool, 1)
	exec.Submit(context.Background(), 1, func(Outcome[int]) {
		accepted <- exec.Submit(context.Background(), 2, nil)
	})
	exec.Wait()

	if <-accepted {
		t.Fatal("submit from inside the completion callback should be dropped")
	}
}

func TestWaitBlocksUntilCallbackReturns(t *testing.T) {
	release := make(chan struct{})
	exec := New("test", func(ctx context.Context, in int) (int, error) {
		<-release
		return in, nil
	}, nil)

	var callbackDone atomic.Bool
	exec.Submit(context.Background(), 1, func(Outcome[int]) {
		time.Sleep(10 * time.Millisecond)
		callbackDone.Store(true)
	})

	waited := make(chan struct{})
	go func() {
		exec.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		t.Fatal("Wait returned while the run was still in flight")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	select {
	case <-waited:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after the run finished")
	}
	if !callbackDone.Load() {
		t.Fatal("Wait returned before the completion callback finished")
	}
}

func TestWaitRunsAlongsideSubmit(t *testing.T) {
	exec := New("test", func(ctx context.Context, in int) (int, error) {
		return in, nil
	}, nil)

	exec.Wait()

	stop := make(chan struct{})
	waiters := make(chan struct{})
	go func() {
		defer close(waiters)
		for {
			select {
			case <-stop:
				return
			default:
				exec.Wait()
			}
		}
	}()

	for i := range 200 {
		exec.Submit(context.Background(), i, nil)
	}
	close(stop)

	select {
	case <-waiters:
	case <-time.After(5 * time.Second):
		t.Fatal("concurrent Wait calls did not return")
	}
	exec.Wait()
	if exec.Busy() {
		t.Fatal("executor should be idle after Wait")
	}
}
