package grate

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"rategrate/internal/testutil"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestHeaderKeyFunc_PrefersHeader(t *testing.T) {
	fn := HeaderKeyFunc("X-Api-Token")

	r := httptest.NewRequest(http.MethodGet, "http://api.example/", nil)
	r.Header.Set("X-Api-Token", " tok-1 ")
	if got := fn(r); got != "tok-1" {
		t.Fatalf("expected header key, got %q", got)
	}
}

func TestHeaderKeyFunc_FallbacksToHost(t *testing.T) {
	fn := HeaderKeyFunc("X-Api-Token")

	r := httptest.NewRequest(http.MethodGet, "http://api.example:8080/x", nil)
	if got := fn(r); got != "api.example:8080" {
		t.Fatalf("expected url host, got %q", got)
	}
}

func TestTransport_GatesPerKey(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	clock := testutil.NewManualClock()
	k, err := NewKeyed[string](2, time.Second, WithClock(clock))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer k.Close()

	client := &http.Client{Transport: &Transport[string]{Grate: k, KeyFn: HeaderKeyFunc("X-Api-Token")}}

	get := func(ctx context.Context, token string) error {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
		req.Header.Set("X-Api-Token", token)
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.Body.Close()
	}

	for i := 0; i < 2; i++ {
		if err := get(context.Background(), "a"); err != nil {
			t.Fatalf("expected request %d to pass, got %v", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := get(ctx, "a"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected third request for a to wait past deadline, got %v", err)
	}
	if err := get(context.Background(), "b"); err != nil {
		t.Fatalf("expected other token to pass, got %v", err)
	}
	if got := hits.Load(); got != 3 {
		t.Fatalf("expected 3 requests to reach the server, got %d", got)
	}

	clock.Advance(time.Second)
	if err := get(context.Background(), "a"); err != nil {
		t.Fatalf("expected a to pass after the window, got %v", err)
	}
}

func TestTransport_ReleasesOnRoundTripError(t *testing.T) {
	clock := testutil.NewManualClock()
	tr, err := New(1, time.Second, WithClock(clock))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer tr.Close()

	boom := errors.New("connection refused")
	rt := &Transport[NoKey]{
		Base:  roundTripFunc(func(*http.Request) (*http.Response, error) { return nil, boom }),
		Grate: tr.Grate(),
	}

	req := httptest.NewRequest(http.MethodGet, "http://api.example/", nil)
	if _, err := rt.RoundTrip(req); !errors.Is(err, boom) {
		t.Fatalf("expected transport error, got %v", err)
	}

	s := tr.Snapshot()
	if s.InFlight != 0 || s.Pending != 1 {
		t.Fatalf("expected permit released into its window, got %+v", s)
	}
}

func TestTransport_NoGratePassesThrough(t *testing.T) {
	called := false
	rt := &Transport[string]{
		Base: roundTripFunc(func(*http.Request) (*http.Response, error) {
			called = true
			return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
		}),
	}

	resp, err := rt.RoundTrip(httptest.NewRequest(http.MethodGet, "http://api.example/", nil))
	if err != nil || resp.StatusCode != http.StatusOK || !called {
		t.Fatalf("expected pass-through, got resp=%v err=%v", resp, err)
	}
}
