package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSupervisorWait(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	ran := make(chan struct{})
	s.Go("worker", func(ctx context.Context) error {
		close(ran)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	select {
	case <-ran:
	default:
		t.Fatal("goroutine never ran")
	}
}

func TestSupervisorPanicBecomesError(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	s.Go("boom", func(ctx context.Context) error {
		panic("kaput")
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if err := s.FirstErr(); err == nil {
		t.Fatal("panic must surface as first error")
	}
}

func TestSupervisorCancelOnError(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), WithCancelOnError(true))
	s.Go("fails", func(ctx context.Context) error {
		return errors.New("broken")
	})
	s.Go("waits", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v (cancel-on-error must release waiters)", err)
	}
}

func TestSupervisorIgnoresCancellation(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	s.Go("clean", func(ctx context.Context) error {
		return context.Canceled
	})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = s.Wait(ctx)
	if err := s.FirstErr(); err != nil {
		t.Fatalf("context.Canceled is a clean exit, got %v", err)
	}
}
