package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// WindowStore limita cada chave a size requisições por janela guardando a
// lista de timestamps aceitos. É a estratégia ingênua de comparação: custo
// O(size) por chave e poda a cada decisão.
type WindowStore struct {
	mu      sync.Mutex
	windows map[string]*windowLog

	cleanupEvery time.Duration
	now          func() time.Time
}

type windowLog struct {
	size     int
	window   time.Duration
	accepted []time.Time
}

type WindowOption func(*WindowStore)

func WithWindowCleanupEvery(d time.Duration) WindowOption {
	return func(s *WindowStore) { s.cleanupEvery = d }
}

func withWindowNow(now func() time.Time) WindowOption {
	return func(s *WindowStore) { s.now = now }
}

func NewWindowStore(opts ...WindowOption) *WindowStore {
	s := &WindowStore{
		windows:      make(map[string]*windowLog),
		cleanupEvery: 2 * time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Decide aceita a requisição se key tem menos de size aceites dentro da janela.
// Quando bloqueia, RetryAfter é o tempo até o aceite mais antigo sair da janela.
func (s *WindowStore) Decide(key string, size int, window time.Duration) Decision {
	if size <= 0 || window <= 0 {
		return Decision{Allowed: false, RetryAfter: window}
	}
	now := s.now()
	id := key + "|" + strconv.Itoa(size) + "|" + strconv.FormatInt(window.Milliseconds(), 10)

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[id]
	if !ok {
		w = &windowLog{size: size, window: window}
		s.windows[id] = w
	}
	w.prune(now)

	if len(w.accepted) >= w.size {
		return Decision{Allowed: false, RetryAfter: w.accepted[0].Add(w.window).Sub(now)}
	}
	w.accepted = append(w.accepted, now)
	return Decision{Allowed: true}
}

func (w *windowLog) prune(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.accepted) && !w.accepted[i].After(cutoff) {
		i++
	}
	w.accepted = w.accepted[i:]
}

// Cleanup remove as chaves sem nenhum aceite dentro da janela.
func (s *WindowStore) Cleanup() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, w := range s.windows {
		w.prune(now)
		if len(w.accepted) == 0 {
			delete(s.windows, k)
		}
	}
}

func (s *WindowStore) StartJanitor(ctx context.Context) {
	startJanitor(ctx, s.cleanupEvery, s.Cleanup)
}

func (s *WindowStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}
