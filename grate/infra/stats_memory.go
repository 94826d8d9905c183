package infra

import (
	"context"
	"errors"
	"sync"
	"time"

	"rategrate/grate/domain"
)

type Counters struct {
	Acquired int64
	Released int64
	Recycled int64
	Canceled int64
	// Waited soma o tempo bloqueado em Wait (acquired + canceled).
	Waited time.Duration
}

func (c *Counters) add(ev domain.StatsEvent) {
	n := int64(ev.Count)
	if n <= 0 {
		n = 1
	}
	switch ev.Kind {
	case domain.EventAcquired:
		c.Acquired += n
	case domain.EventReleased:
		c.Released += n
	case domain.EventRecycled:
		c.Recycled += n
	case domain.EventCanceled:
		c.Canceled += n
	}
	c.Waited += ev.Waited
}

// MemoryStatsStore é uma implementação simples em memória.
// Útil para testes e desenvolvimento.
//
// Não faz expiração; com trackKeys o map cresce com o número de chaves.
type MemoryStatsStore struct {
	mu        sync.Mutex
	total     Counters
	byTracker map[string]Counters

	trackKeys bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byTracker: make(map[string]Counters),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.add(ev)
	if s.trackKeys {
		c := s.byTracker[ev.Tracker]
		c.add(ev)
		s.byTracker[ev.Tracker] = c
	}
	return nil
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStatsStore) ByTracker() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byTracker))
	for k, v := range s.byTracker {
		out[k] = v
	}
	return out
}

// MultiStats repassa cada evento para todos os stores.
type MultiStats []domain.StatsStore

func (m MultiStats) Record(ctx context.Context, ev domain.StatsEvent) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
