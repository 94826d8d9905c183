package main

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rategrate/middleware/ratelimit"
)

// maxBucketSize limita os timestamps guardados por cliente na rota bucketed.
const maxBucketSize = 1000

// server responde o tempo em ms desde a subida, com três políticas de limite
// por cliente: nenhuma, intervalo fixo e janela com tamanho.
type server struct {
	start   time.Time
	simple  *ratelimit.Store
	windows *ratelimit.WindowStore
	keyFn   ratelimit.KeyFunc
	log     *slog.Logger

	requests *prometheus.CounterVec
}

func newServer(simple *ratelimit.Store, windows *ratelimit.WindowStore, keyFn ratelimit.KeyFunc, log *slog.Logger, reg prometheus.Registerer) (*server, error) {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ratetest",
		Name:      "requests_total",
		Help:      "Requests served by the rate test routes, by route and result.",
	}, []string{"route", "result"})
	if err := reg.Register(requests); err != nil {
		return nil, err
	}

	return &server{
		start:    time.Now(),
		simple:   simple,
		windows:  windows,
		keyFn:    keyFn,
		log:      log,
		requests: requests,
	}, nil
}

func (s *server) routes(gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ratetest", s.handleUnlimited)
	mux.HandleFunc("GET /ratetest/simple/{ms}", s.handleSimple)
	mux.HandleFunc("GET /ratetest/bucketed/{size}/{lifetime}", s.handleBucketed)
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return mux
}

func (s *server) handleUnlimited(w http.ResponseWriter, r *http.Request) {
	s.requests.WithLabelValues("unlimited", "ok").Inc()
	s.writeTick(w)
}

func (s *server) handleSimple(w http.ResponseWriter, r *http.Request) {
	ms, err := strconv.Atoi(r.PathValue("ms"))
	if err != nil || ms <= 0 {
		http.Error(w, "ms must be a positive integer", http.StatusBadRequest)
		return
	}
	every := time.Duration(ms) * time.Millisecond
	key := s.keyFn(r)

	if !s.simple.Every(key, every).Allow() {
		s.requests.WithLabelValues("simple", "rejected").Inc()
		s.log.Debug("simple rejected", "key", key, "every", every)
		ratelimit.Reject(w, http.StatusTooManyRequests, ratelimit.Decision{RetryAfter: every},
			"You must wait "+strconv.Itoa(ms)+" ms between requests.")
		return
	}

	s.requests.WithLabelValues("simple", "ok").Inc()
	s.writeTick(w)
}

func (s *server) handleBucketed(w http.ResponseWriter, r *http.Request) {
	size, err1 := strconv.Atoi(r.PathValue("size"))
	lifetime, err2 := strconv.Atoi(r.PathValue("lifetime"))
	if err1 != nil || err2 != nil || size <= 0 || lifetime <= 0 {
		http.Error(w, "size and lifetime must be positive integers", http.StatusBadRequest)
		return
	}
	if size > maxBucketSize {
		http.Error(w, "size must be at most "+strconv.Itoa(maxBucketSize), http.StatusBadRequest)
		return
	}
	key := s.keyFn(r)

	dec := s.windows.Decide(key, size, time.Duration(lifetime)*time.Millisecond)
	if !dec.Allowed {
		s.requests.WithLabelValues("bucketed", "rejected").Inc()
		s.log.Debug("bucketed rejected", "key", key, "size", size, "retry_after", dec.RetryAfter)
		ratelimit.Reject(w, http.StatusTooManyRequests, dec,
			"At most "+strconv.Itoa(size)+" requests every "+strconv.Itoa(lifetime)+" ms.")
		return
	}

	s.requests.WithLabelValues("bucketed", "ok").Inc()
	s.writeTick(w)
}

func (s *server) writeTick(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(strconv.FormatInt(time.Since(s.start).Milliseconds(), 10)))
}
