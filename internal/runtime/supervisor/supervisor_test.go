package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestGoPublishesFirstErrorAndCancels(t *testing.T) {
	s := New(context.Background(), WithCancelOnError(true))
	boom := errors.New("boom")
	s.Go("failing", func(ctx context.Context) error { return boom })
	s.Go("waiting", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.Wait(ctx)
	if !errors.Is(err, boom) {
		t.Fatalf("Wait = %v, want boom", err)
	}
	if s.Context().Err() == nil {
		t.Fatal("context should be cancelled")
	}
}

func TestGoRecoversPanic(t *testing.T) {
	s := New(context.Background())
	s.Go0("panicky", func(ctx context.Context) { panic("oops") })
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err == nil {
		t.Fatal("expected panic to surface as error")
	}
	if s.Context().Err() != nil {
		t.Fatal("context should not be cancelled without WithCancelOnError")
	}
}

func TestGoRestartRetriesUntilSuccess(t *testing.T) {
	s := New(context.Background())
	var calls atomic.Int32
	s.GoRestart("flaky", func(ctx context.Context) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}, WithRestartBackoff(time.Millisecond, 5*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("Wait = %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
}

func TestGoRestartGivesUp(t *testing.T) {
	s := New(context.Background())
	s.GoRestart("broken", func(ctx context.Context) error {
		return errors.New("always")
	}, WithRestartBackoff(time.Millisecond, time.Millisecond), WithMaxRestarts(2))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err == nil {
		t.Fatal("expected final error after max restarts")
	}
}

func TestFailAndStop(t *testing.T) {
	s := New(context.Background(), WithCancelOnError(true))
	s.Fail(nil)
	if s.Err() != nil {
		t.Fatal("Fail(nil) must be a no-op")
	}
	s.Fail(errors.New("fatal"))
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("Fail should cancel the context")
	}
	if err := s.Stop(context.Background()); err == nil || err.Error() != "fatal" {
		t.Fatalf("Stop = %v", err)
	}
}
