package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"rategrate/grate/infra"
	"rategrate/internal/config"
	"rategrate/middleware/ratelimit"
)

// newRateServer imita as rotas do testserver usando os mesmos stores.
func newRateServer(t *testing.T) *httptest.Server {
	t.Helper()
	simple := ratelimit.NewStore(1, 1)
	windows := ratelimit.NewWindowStore()
	keyFn := ratelimit.DefaultKeyFunc("X-Client-Token", false)
	start := time.Now()

	tick := func(w http.ResponseWriter) {
		_, _ = w.Write([]byte(strconv.FormatInt(time.Since(start).Milliseconds(), 10)))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ratetest", func(w http.ResponseWriter, r *http.Request) { tick(w) })
	mux.HandleFunc("GET /ratetest/simple/{ms}", func(w http.ResponseWriter, r *http.Request) {
		ms, _ := strconv.Atoi(r.PathValue("ms"))
		if !simple.Every(keyFn(r), time.Duration(ms)*time.Millisecond).Allow() {
			ratelimit.Reject(w, http.StatusTooManyRequests, ratelimit.Decision{}, "")
			return
		}
		tick(w)
	})
	mux.HandleFunc("GET /ratetest/bucketed/{size}/{lifetime}", func(w http.ResponseWriter, r *http.Request) {
		size, _ := strconv.Atoi(r.PathValue("size"))
		lifetime, _ := strconv.Atoi(r.PathValue("lifetime"))
		dec := windows.Decide(keyFn(r), size, time.Duration(lifetime)*time.Millisecond)
		if !dec.Allowed {
			ratelimit.Reject(w, http.StatusTooManyRequests, dec, "")
			return
		}
		tick(w)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestRunner(baseURL string, requests int) *runner {
	cfg := config.Default().Client
	cfg.BaseURL = baseURL
	cfg.Token = "client-1"
	cfg.Requests = requests
	return runnerFromConfig(cfg)
}

func TestBase_Passes(t *testing.T) {
	srv := newRateServer(t)
	r := newTestRunner(srv.URL, 3)

	if res := r.base(context.Background()); !res.ok {
		t.Fatalf("expected base to pass, got %q", res.detail)
	}
}

func TestBucketed_GatedClientIsNeverRejected(t *testing.T) {
	srv := newRateServer(t)
	r := newTestRunner(srv.URL, 5)
	mem := infra.NewMemoryStatsStore()
	r.stats = mem

	res := r.bucketed(context.Background(), 2, 50*time.Millisecond)
	if !res.ok {
		t.Fatalf("expected bucketed to pass, got %q", res.detail)
	}
	if res.elapsed < 100*time.Millisecond {
		t.Fatalf("expected at least two windows of waiting, got %v", res.elapsed)
	}
	if got := mem.Total().Acquired; got != 5 {
		t.Fatalf("expected 5 acquired permits, got %d", got)
	}
}

func TestSimple_GatedClientIsNeverRejected(t *testing.T) {
	srv := newRateServer(t)
	r := newTestRunner(srv.URL, 3)

	res := r.simple(context.Background(), 40*time.Millisecond)
	if !res.ok {
		t.Fatalf("expected simple to pass, got %q", res.detail)
	}
}

func TestScenario_FailsOnRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ratelimit.Reject(w, http.StatusTooManyRequests, ratelimit.Decision{}, "no")
	}))
	t.Cleanup(srv.Close)
	r := newTestRunner(srv.URL, 2)

	res := r.bucketed(context.Background(), 2, 10*time.Millisecond)
	if res.ok || !strings.Contains(res.detail, "status 429") {
		t.Fatalf("expected failure on 429, got ok=%v detail=%q", res.ok, res.detail)
	}
}

func TestGet_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "boom", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("7"))
	}))
	t.Cleanup(srv.Close)
	r := newTestRunner(srv.URL, 1)

	client, tracker, err := r.newClient("retry", 1, time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = tracker.Close() }()

	status, body, err := r.get(context.Background(), client, "/")
	if err != nil || status != http.StatusOK || body != "7" {
		t.Fatalf("expected retried success, got status=%d body=%q err=%v", status, body, err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestReport(t *testing.T) {
	var buf bytes.Buffer
	failed := report(&buf, []result{
		{name: "Base", ok: true, detail: "12"},
		{name: "Simple", ok: false, detail: "request 2: status 429"},
	})
	if !failed {
		t.Fatalf("expected failure to be reported")
	}
	out := buf.String()
	if !strings.Contains(out, "Base passed") || !strings.Contains(out, "Simple failed") {
		t.Fatalf("unexpected report: %q", out)
	}
}

func TestRunCommand_BaseAgainstServer(t *testing.T) {
	srv := newRateServer(t)
	var out bytes.Buffer

	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"run", "base", "--base-url", srv.URL, "--token", "cli"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "Base passed") {
		t.Fatalf("unexpected output: %q", out.String())
	}
}

func TestNewClient_RegistersTheGatedKey(t *testing.T) {
	srv := newRateServer(t)

	withHeader := newTestRunner(srv.URL, 1)
	_, tracker, err := withHeader.newClient("bucketed", 1, time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = tracker.Close() }()
	if pooled, ok := tracker.Pooled("client-1"); !ok || !pooled {
		t.Fatalf("expected token key registered, got pooled=%v ok=%v", pooled, ok)
	}

	noHeader := newTestRunner(srv.URL, 1)
	noHeader.keyHeader = ""
	client, tracker2, err := noHeader.newClient("bucketed", 1, time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = tracker2.Close() }()

	if _, _, err := noHeader.get(context.Background(), client, "/ratetest"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tracker2.Len() != 1 {
		t.Fatalf("expected requests gated on the registered key only, got %d keys", tracker2.Len())
	}
	host := strings.TrimPrefix(srv.URL, "http://")
	if pooled, ok := tracker2.Pooled(host); !ok || !pooled {
		t.Fatalf("expected host key %q registered, got pooled=%v ok=%v", host, pooled, ok)
	}
}
