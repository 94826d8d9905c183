package ratelimit

import (
	"testing"
	"time"
)

func TestStore_GetReusesLimiterPerKey(t *testing.T) {
	s := NewStore(1, 1)

	a1 := s.Get("a")
	a2 := s.Get("a")
	b := s.Get("b")

	if a1 != a2 {
		t.Fatalf("expected same limiter for the same key")
	}
	if a1 == b {
		t.Fatalf("expected different limiters for different keys")
	}
	if s.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", s.Len())
	}
}

func TestStore_EveryIsKeyedByInterval(t *testing.T) {
	s := NewStore(1, 1)

	l1 := s.Every("client", 100*time.Millisecond)
	l2 := s.Every("client", 200*time.Millisecond)
	if l1 == l2 {
		t.Fatalf("expected different limiters per interval")
	}

	if !l1.Allow() {
		t.Fatalf("expected first request to pass")
	}
	if l1.Allow() {
		t.Fatalf("expected second immediate request to be rejected")
	}
	if !l2.Allow() {
		t.Fatalf("expected the other interval to be independent")
	}
}

func TestStore_CleanupRemovesIdleEntries(t *testing.T) {
	s := NewStore(1, 1, WithIdleTTL(-time.Second))
	_ = s.Get("a")

	s.Cleanup()
	if s.Len() != 0 {
		t.Fatalf("expected idle entry to be removed, got %d", s.Len())
	}
}

func TestStore_CleanupKeepsRecentEntries(t *testing.T) {
	s := NewStore(1, 1, WithIdleTTL(time.Hour))
	_ = s.Get("a")

	s.Cleanup()
	if s.Len() != 1 {
		t.Fatalf("expected recent entry to stay, got %d", s.Len())
	}
}

func TestStore_Accessors(t *testing.T) {
	s := NewStore(2.5, 4, WithCleanupEvery(time.Minute))
	if s.RPS() != 2.5 || s.Burst() != 4 || s.CleanupEvery() != time.Minute {
		t.Fatalf("unexpected accessors: rps=%v burst=%d every=%v", s.RPS(), s.Burst(), s.CleanupEvery())
	}
}
