package supervisor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func waitAll(t *testing.T, s *Supervisor) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Wait(ctx); errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("goroutines did not exit in time")
	}
}

func TestGoRunsAndWaitReturns(t *testing.T) {
	t.Parallel()

	s := New(context.Background())
	ran := make(chan struct{})
	s.Go("work", func(ctx context.Context) error {
		close(ran)
		return nil
	})

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("goroutine never ran")
	}
	waitAll(t, s)
	if err := s.Err(); err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
	if n := s.Active(); n != 0 {
		t.Fatalf("active = %d after wait, want 0", n)
	}
}

func TestPanicRecovered(t *testing.T) {
	t.Parallel()

	s := New(context.Background())
	s.Go0("boom", func(context.Context) {
		panic("kaboom")
	})
	waitAll(t, s)

	err := s.Err()
	if err == nil {
		t.Fatal("panic not reported as error")
	}
	if !strings.Contains(err.Error(), "boom") || !strings.Contains(err.Error(), "kaboom") {
		t.Fatalf("err = %q, want goroutine name and panic value", err)
	}
}

func TestCancelOnFirstError(t *testing.T) {
	t.Parallel()

	s := New(context.Background(), WithCancelOnError(true))
	first := errors.New("first failure")
	s.Go("fail", func(context.Context) error { return first })

	select {
	case <-s.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("context not canceled after goroutine error")
	}
	if !errors.Is(s.Err(), first) {
		t.Fatalf("err = %v, want %v", s.Err(), first)
	}

	// A later failure must not displace the first recorded error.
	s.Go("late", func(context.Context) error { return errors.New("second failure") })
	waitAll(t, s)
	if !errors.Is(s.Err(), first) {
		t.Fatalf("err = %v, first error not retained", s.Err())
	}
}

func TestContextCanceledIsNotAnError(t *testing.T) {
	t.Parallel()

	s := New(context.Background(), WithCancelOnError(true))
	s.Go("loop", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	s.Cancel()
	waitAll(t, s)
	if err := s.Err(); err != nil {
		t.Fatalf("err = %v, want nil for a clean cancellation", err)
	}
}

func TestWaitTimeoutAndActive(t *testing.T) {
	t.Parallel()

	s := New(context.Background())
	block := make(chan struct{})
	s.Go0("stuck", func(context.Context) { <-block })

	if n := s.Active(); n != 1 {
		t.Fatalf("active = %d, want 1", n)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := s.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("wait err = %v, want deadline exceeded", err)
	}

	close(block)
	waitAll(t, s)
	if n := s.Active(); n != 0 {
		t.Fatalf("active = %d after exit, want 0", n)
	}
}

func TestParentCancellationPropagates(t *testing.T) {
	t.Parallel()

	parent, cancel := context.WithCancel(context.Background())
	s := New(parent)
	done := make(chan struct{})
	s.Go0("watch", func(ctx context.Context) {
		<-ctx.Done()
		close(done)
	})

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("parent cancellation did not reach the goroutine")
	}
	waitAll(t, s)
}
