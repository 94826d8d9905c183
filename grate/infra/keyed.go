package infra

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"rategrate/grate/domain"
)

// KeyedQuotaTracker mantém um QuotaTracker por chave (usuário, token, conta de
// API), todos com a mesma Config. Os trackers são criados sob demanda no
// primeiro Wait/RegisterToken da chave e vivem até Close.
//
// O map é protegido por um mutex próprio, independente do lock de cada
// tracker; o get-or-create é atômico, então corridas na mesma chave nova
// enxergam um único tracker.
type KeyedQuotaTracker[K comparable] struct {
	cfg   domain.Config
	opts  options
	stats *statsDispatcher

	mu      sync.Mutex
	entries map[K]*keyedEntry
	closed  bool
}

type keyedEntry struct {
	tracker *QuotaTracker
	// pooled é marcado por RegisterToken. Nenhuma outra operação lê o valor.
	pooled bool
}

func NewKeyedQuotaTracker[K comparable](cfg domain.Config, opts ...Option) (*KeyedQuotaTracker[K], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	k := &KeyedQuotaTracker[K]{
		cfg:     cfg,
		opts:    o,
		entries: make(map[K]*keyedEntry),
	}
	// Um único dispatcher para todas as chaves.
	if o.stats != nil {
		k.stats = newStatsDispatcher(o.stats, o.statsBuffer, o.logger)
	}
	return k, nil
}

func (k *KeyedQuotaTracker[K]) Config() domain.Config { return k.cfg }

// getOrCreate precisa ser chamado com k.mu travado.
func (k *KeyedQuotaTracker[K]) getOrCreate(key K) *keyedEntry {
	if ent, ok := k.entries[key]; ok {
		return ent
	}

	o := k.opts
	o.name = fmt.Sprint(key)
	if k.opts.name != "" {
		o.name = k.opts.name + ":" + o.name
	}
	ent := &keyedEntry{tracker: newQuotaTracker(k.cfg, o, k.stats)}
	k.entries[key] = ent
	k.opts.logger.Debug("tracker created", "key", o.name)
	return ent
}

func (k *KeyedQuotaTracker[K]) entry(key K, pooled bool) (*keyedEntry, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return nil, domain.ErrDisposed
	}
	ent := k.getOrCreate(key)
	if pooled {
		ent.pooled = true
	}
	return ent, nil
}

// RegisterToken cria (se preciso) o tracker da chave e marca pooled.
func (k *KeyedQuotaTracker[K]) RegisterToken(key K) error {
	_, err := k.entry(key, true)
	return err
}

// Wait implementa domain.Grate. O lock do map é solto antes de bloquear.
func (k *KeyedQuotaTracker[K]) Wait(ctx context.Context, key K) error {
	ent, err := k.entry(key, false)
	if err != nil {
		return err
	}
	return ent.tracker.Wait(ctx)
}

// Release implementa domain.Grate. Não cria estado: uma chave nunca vista é
// erro de uso (ErrUnknownKey).
func (k *KeyedQuotaTracker[K]) Release(key K) error {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return domain.ErrDisposed
	}
	ent, ok := k.entries[key]
	k.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %v", domain.ErrUnknownKey, key)
	}
	return ent.tracker.Release()
}

// Pooled retorna a marca de RegisterToken e se a chave existe.
func (k *KeyedQuotaTracker[K]) Pooled(key K) (pooled, ok bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	ent, ok := k.entries[key]
	if !ok {
		return false, false
	}
	return ent.pooled, true
}

func (k *KeyedQuotaTracker[K]) Snapshot(key K) (domain.Snapshot, bool) {
	k.mu.Lock()
	ent, ok := k.entries[key]
	k.mu.Unlock()

	if !ok {
		return domain.Snapshot{}, false
	}
	return ent.tracker.Snapshot(), true
}

// StatsDropped conta os eventos de todas as chaves descartados por buffer de
// stats cheio.
func (k *KeyedQuotaTracker[K]) StatsDropped() int64 {
	return k.stats.droppedCount()
}

func (k *KeyedQuotaTracker[K]) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

// Close fecha todos os trackers por chave. Chamadas seguintes são no-op.
func (k *KeyedQuotaTracker[K]) Close() error {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return nil
	}
	k.closed = true
	trackers := make([]*QuotaTracker, 0, len(k.entries))
	for _, ent := range k.entries {
		trackers = append(trackers, ent.tracker)
	}
	k.mu.Unlock()

	var errs []error
	for _, t := range trackers {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if k.stats != nil {
		k.stats.close()
	}
	return errors.Join(errs...)
}
