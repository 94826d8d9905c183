package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"rategrate/grate/domain"
	"rategrate/grate/infra"
	"rategrate/internal/testutil"
)

type blockingGrate struct{}

func (blockingGrate) Wait(ctx context.Context, _ string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		// não deve chegar aqui nos testes
		return nil
	}
}

func (blockingGrate) Release(string) error { return nil }

type countingGrate struct {
	waits      int
	releases   int
	releaseErr error
}

func (g *countingGrate) Wait(context.Context, string) error {
	g.waits++
	return nil
}

func (g *countingGrate) Release(string) error {
	g.releases++
	return g.releaseErr
}

func TestGate_AllowsWhenNoGrate(t *testing.T) {
	gate := Gate[string]{}
	release, err := gate.Acquire(context.Background(), "k")
	if err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := release(); err != nil {
		t.Fatalf("expected nil release error, got %v", err)
	}
}

func TestGate_UsesTimeout(t *testing.T) {
	gate := Gate[string]{Grate: blockingGrate{}, AcquireTimeout: 10 * time.Millisecond}

	_, err := gate.Acquire(context.Background(), "k")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestGate_NoTimeoutDelegatesToGrate(t *testing.T) {
	g := &countingGrate{}
	gate := Gate[string]{Grate: g}

	release, err := gate.Acquire(context.Background(), "k")
	if err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if g.waits != 1 {
		t.Fatalf("expected Wait to be called once, got %d", g.waits)
	}

	_ = release()
	_ = release()
	if g.releases != 1 {
		t.Fatalf("expected a single Release for repeated release calls, got %d", g.releases)
	}
}

func TestWaitAndRun_ReturnsActionResult(t *testing.T) {
	g := &countingGrate{}

	got, err := WaitAndRun[string](context.Background(), g, "k", func(context.Context) (int, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	if g.waits != 1 || g.releases != 1 {
		t.Fatalf("expected one wait and one release, got %d/%d", g.waits, g.releases)
	}
}

func TestWaitAndRun_ReleasesOnActionError(t *testing.T) {
	g := &countingGrate{}
	boom := errors.New("boom")

	_, err := WaitAndRun[string](context.Background(), g, "k", func(context.Context) (int, error) {
		return 0, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected action error, got %v", err)
	}
	if g.releases != 1 {
		t.Fatalf("expected release after failing action, got %d", g.releases)
	}
}

func TestWaitAndRun_ReleasesOnPanic(t *testing.T) {
	g := &countingGrate{}

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Fatalf("expected panic to propagate")
			}
		}()
		_, _ = WaitAndRun[string](context.Background(), g, "k", func(context.Context) (int, error) {
			panic("boom")
		})
	}()

	if g.releases != 1 {
		t.Fatalf("expected release after panic, got %d", g.releases)
	}
}

func TestWaitAndRun_JoinsReleaseError(t *testing.T) {
	g := &countingGrate{releaseErr: domain.ErrDisposed}

	_, err := WaitAndRun[string](context.Background(), g, "k", func(context.Context) (int, error) {
		return 1, nil
	})
	if !errors.Is(err, domain.ErrDisposed) {
		t.Fatalf("expected release error to surface, got %v", err)
	}
}

func TestWaitAndRun_SkipsActionWhenWaitFails(t *testing.T) {
	gate := Gate[string]{Grate: blockingGrate{}, AcquireTimeout: 5 * time.Millisecond}
	called := false

	_, err := WaitAndRun[string](context.Background(), gate, "k", func(context.Context) (int, error) {
		called = true
		return 0, nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
	if called {
		t.Fatalf("expected action not to run without a permit")
	}
}

func TestWaitAndRun_ActionErrorDoesNotLeakPermit(t *testing.T) {
	clock := testutil.NewManualClock()
	k, err := infra.NewKeyedQuotaTracker[string](domain.Config{Capacity: 1, Window: time.Second}, infra.WithClock(clock))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer k.Close()

	_, err = WaitAndRun[string](context.Background(), k, "k", func(context.Context) (string, error) {
		return "", errors.New("upstream failed")
	})
	if err == nil {
		t.Fatalf("expected action error")
	}

	s, _ := k.Snapshot("k")
	if s.InFlight != 0 || s.Pending != 1 {
		t.Fatalf("expected permit cooling after failed action, got %+v", s)
	}

	clock.Advance(time.Second)
	s, _ = k.Snapshot("k")
	if s.Available != 1 {
		t.Fatalf("expected permit back after window, got %+v", s)
	}
}

func TestGate_Run(t *testing.T) {
	g := &countingGrate{}
	gate := Gate[string]{Grate: g, AcquireTimeout: time.Second}

	ran := false
	if err := gate.Run(context.Background(), "k", func(context.Context) error {
		ran = true
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ran || g.releases != 1 {
		t.Fatalf("expected action run and released, ran=%v releases=%d", ran, g.releases)
	}
}
