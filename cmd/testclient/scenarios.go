package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"rategrate/grate"
	"rategrate/grate/domain"
	"rategrate/internal/config"
)

const (
	initialRetryDelay = 100 * time.Millisecond
	maxRetryDelay     = 2 * time.Second
)

type runner struct {
	baseURL   string
	token     string
	keyHeader string
	slack     time.Duration
	attempts  uint
	requests  int

	stats domain.StatsStore
	log   *slog.Logger
	out   io.Writer
}

type result struct {
	name    string
	ok      bool
	elapsed time.Duration
	detail  string
}

func runnerFromConfig(cfg config.ClientConfig) *runner {
	return &runner{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		token:     cfg.Token,
		keyHeader: cfg.KeyHeader,
		slack:     cfg.Slack,
		attempts:  cfg.RetryAttempts,
		requests:  cfg.Requests,
		log:       slog.New(slog.DiscardHandler),
		out:       io.Discard,
	}
}

// newClient devolve um http.Client cujas requisições passam por um tracker
// com capacity vagas a cada window (+ slack), por token. A chave registrada é
// a mesma que o Transport vai derivar das requisições.
func (r *runner) newClient(name string, capacity int, window time.Duration) (*http.Client, *grate.KeyedQuotaTracker[string], error) {
	opts := []grate.Option{grate.WithName(name), grate.WithLogger(r.log)}
	if r.stats != nil {
		opts = append(opts, grate.WithStats(r.stats))
	}

	keyFn := grate.HeaderKeyFunc(r.keyHeader)
	key, err := r.gateKey(keyFn)
	if err != nil {
		return nil, nil, err
	}

	tracker, err := grate.NewKeyed[string](capacity, window+r.slack, opts...)
	if err != nil {
		return nil, nil, err
	}
	if err := tracker.RegisterToken(key); err != nil {
		_ = tracker.Close()
		return nil, nil, err
	}

	client := &http.Client{
		Transport: &grate.Transport[string]{
			Grate: tracker,
			KeyFn: keyFn,
		},
	}
	return client, tracker, nil
}

// gateKey aplica keyFn a uma requisição montada como get monta as suas: o
// token no header quando há header, senão o host do servidor.
func (r *runner) gateKey(keyFn grate.KeyFunc[string]) (string, error) {
	req, err := http.NewRequest(http.MethodGet, r.baseURL, nil)
	if err != nil {
		return "", fmt.Errorf("base url %q: %w", r.baseURL, err)
	}
	r.setToken(req)
	return keyFn(req), nil
}

func (r *runner) setToken(req *http.Request) {
	if r.keyHeader != "" {
		req.Header.Set(r.keyHeader, r.token)
	}
}

// get faz GET em route e devolve o status e o corpo. Falhas de transporte e 5xx
// são repetidas com backoff; cada tentativa espera uma nova vaga.
func (r *runner) get(ctx context.Context, client *http.Client, route string) (int, string, error) {
	var (
		status int
		body   string
	)
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+route, nil)
			if err != nil {
				return err
			}
			r.setToken(req)

			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			defer func() { _ = resp.Body.Close() }()

			b, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			status, body = resp.StatusCode, strings.TrimSpace(string(b))
			if status >= http.StatusInternalServerError {
				return fmt.Errorf("server error %d", status)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(max(r.attempts, 1)),
		retry.DelayType(retry.BackOffDelay),
		retry.Delay(initialRetryDelay),
		retry.MaxDelay(maxRetryDelay),
		retry.OnRetry(func(n uint, err error) {
			r.log.Warn("request failed, retrying", "route", route, "attempt", n+1, "err", err)
		}),
		retry.LastErrorOnly(true),
	)
	return status, body, err
}

// expectTicks faz n requisições e falha na primeira que não for 200 com um
// inteiro no corpo.
func (r *runner) expectTicks(ctx context.Context, client *http.Client, route string, n int) (string, error) {
	var last string
	for i := 0; i < n; i++ {
		status, body, err := r.get(ctx, client, route)
		if err != nil {
			return last, fmt.Errorf("request %d: %w", i+1, err)
		}
		if status != http.StatusOK {
			return body, fmt.Errorf("request %d: status %d: %s", i+1, status, body)
		}
		if _, err := strconv.ParseInt(body, 10, 64); err != nil {
			return body, fmt.Errorf("request %d: body %q is not a tick", i+1, body)
		}
		last = body
	}
	return last, nil
}

func (r *runner) base(ctx context.Context) result {
	start := time.Now()
	client := &http.Client{Transport: &grate.Transport[string]{}}

	last, err := r.expectTicks(ctx, client, "/ratetest", 2)
	return finish("Base", start, last, err, 0)
}

// simple respeita "uma requisição a cada every" com um tracker de capacidade 1.
func (r *runner) simple(ctx context.Context, every time.Duration) result {
	start := time.Now()
	client, tracker, err := r.newClient("simple", 1, every)
	if err != nil {
		return finish("Simple", start, "", err, 0)
	}
	defer func() { _ = tracker.Close() }()

	route := "/ratetest/simple/" + strconv.FormatInt(every.Milliseconds(), 10)
	last, err := r.expectTicks(ctx, client, route, r.requests)
	return finish("Simple", start, last, err, time.Duration(r.requests-1)*every)
}

// bucketed respeita "size requisições a cada lifetime" com um tracker de
// capacidade size.
func (r *runner) bucketed(ctx context.Context, size int, lifetime time.Duration) result {
	start := time.Now()
	client, tracker, err := r.newClient("bucketed", size, lifetime)
	if err != nil {
		return finish("Bucketed", start, "", err, 0)
	}
	defer func() { _ = tracker.Close() }()

	route := "/ratetest/bucketed/" + strconv.Itoa(size) + "/" + strconv.FormatInt(lifetime.Milliseconds(), 10)
	last, err := r.expectTicks(ctx, client, route, r.requests)

	var minElapsed time.Duration
	if size > 0 {
		minElapsed = time.Duration((r.requests-1)/size) * lifetime
	}
	return finish("Bucketed", start, last, err, minElapsed)
}

func finish(name string, start time.Time, last string, err error, minElapsed time.Duration) result {
	res := result{name: name, elapsed: time.Since(start), detail: last}
	switch {
	case err != nil:
		res.detail = err.Error()
	case res.elapsed < minElapsed:
		res.detail = fmt.Sprintf("finished in %s, expected at least %s", res.elapsed.Round(time.Millisecond), minElapsed)
	default:
		res.ok = true
	}
	return res
}

// report escreve uma linha por cenário e diz se algum falhou.
func report(w io.Writer, results []result) bool {
	failed := false
	for _, res := range results {
		if res.ok {
			fmt.Fprintf(w, "%s passed in %s with response %s\n", res.name, res.elapsed.Round(time.Millisecond), res.detail)
			continue
		}
		failed = true
		fmt.Fprintf(w, "%s failed after %s: %s\n", res.name, res.elapsed.Round(time.Millisecond), res.detail)
	}
	return failed
}
