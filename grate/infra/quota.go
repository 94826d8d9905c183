package infra

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"rategrate/grate/domain"
)

const statsTimeout = 2 * time.Second

// QuotaTracker é um pool de Capacity vagas em que cada vaga liberada só volta
// ao pool depois de Window.
//
// As vagas são fichas em um channel com buffer (como um semáforo): Wait envia
// uma ficha, o reap retira. Como Window é fixa, os deadlines entram em ordem
// e a cabeça da fila é sempre o próximo a vencer; basta um timer armado para
// ela, rearmado pelo próprio reap.
//
// Estados: Idle (timer == nil, fila vazia) e Armed (timer != nil).
type QuotaTracker struct {
	capacity int
	window   time.Duration

	permits chan struct{}
	done    chan struct{}

	mu       sync.Mutex
	pending  []time.Time
	inFlight int
	timer    domain.Timer
	closed   bool

	clock     domain.Clock
	stats     *statsDispatcher
	ownsStats bool
	logger    *slog.Logger
	name      string
}

// NewQuotaTracker valida cfg e cria um tracker Idle com todas as vagas livres.
func NewQuotaTracker(cfg domain.Config, opts ...Option) (*QuotaTracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	var stats *statsDispatcher
	if o.stats != nil {
		stats = newStatsDispatcher(o.stats, o.statsBuffer, o.logger)
	}
	t := newQuotaTracker(cfg, o, stats)
	t.ownsStats = true
	return t, nil
}

func newQuotaTracker(cfg domain.Config, o options, stats *statsDispatcher) *QuotaTracker {
	if o.name == "" {
		o.name = "global"
	}
	return &QuotaTracker{
		capacity: cfg.Capacity,
		window:   cfg.Window,
		permits:  make(chan struct{}, cfg.Capacity),
		done:     make(chan struct{}),
		clock:    o.clock,
		stats:    stats,
		logger:   o.logger.With("tracker", o.name),
		name:     o.name,
	}
}

func (t *QuotaTracker) Capacity() int         { return t.capacity }
func (t *QuotaTracker) Window() time.Duration { return t.window }
func (t *QuotaTracker) Name() string          { return t.name }

// Wait bloqueia até conseguir uma vaga, até o ctx encerrar ou até Close.
//
// Waiters bloqueados são atendidos em ordem de chegada (fila de envio do
// channel). Se o ctx encerra antes da vaga, nenhuma vaga é consumida.
func (t *QuotaTracker) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-t.done:
		return domain.ErrDisposed
	default:
	}

	start := t.clock.Now()
	select {
	case t.permits <- struct{}{}:
	case <-t.done:
		return domain.ErrDisposed
	case <-ctx.Done():
		t.record(domain.StatsEvent{Kind: domain.EventCanceled, Count: 1, Waited: t.clock.Now().Sub(start)})
		return ctx.Err()
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return domain.ErrDisposed
	}
	t.inFlight++
	t.mu.Unlock()

	t.record(domain.StatsEvent{Kind: domain.EventAcquired, Count: 1, Waited: t.clock.Now().Sub(start)})
	return nil
}

// Release coloca a vaga em resfriamento até now+Window e arma o timer se o
// tracker estava Idle. Não bloqueia.
func (t *QuotaTracker) Release() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return domain.ErrDisposed
	}
	if t.inFlight == 0 {
		t.mu.Unlock()
		return domain.ErrNotAcquired
	}
	t.inFlight--
	now := t.clock.Now()
	t.pending = append(t.pending, now.Add(t.window))
	// Com o timer armado a cabeça da fila vence antes deste deadline.
	if t.timer == nil {
		t.timer = t.clock.AfterFunc(t.window, t.reap)
		t.logger.Debug("tracker armed", "next", t.window)
	}
	t.mu.Unlock()

	t.record(domain.StatsEvent{Kind: domain.EventReleased, Count: 1})
	return nil
}

// reap roda no callback do timer. Só existe um timer por tracker e ele só é
// rearmado aqui, depois de decidir o próximo deadline, então reaps não se
// sobrepõem.
func (t *QuotaTracker) reap() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}

	now := t.clock.Now()
	n := 0
	for len(t.pending) > 0 && !t.pending[0].After(now) {
		t.pending = t.pending[1:]
		select {
		case <-t.permits:
		default:
			t.mu.Unlock()
			panic("grate: pending expiration without a held permit")
		}
		n++
	}

	if len(t.pending) > 0 {
		t.timer = t.clock.AfterFunc(t.pending[0].Sub(now), t.reap)
	} else {
		t.timer = nil
		t.pending = nil
	}
	available := cap(t.permits) - len(t.permits)
	pending := len(t.pending)
	t.mu.Unlock()

	if n > 0 {
		t.logger.Debug("permits recycled", "count", n, "available", available, "pending", pending)
		t.record(domain.StatsEvent{Kind: domain.EventRecycled, Count: n})
	}
}

// Close para o timer, descarta as pendências e acorda todos os Wait bloqueados
// com ErrDisposed. Os eventos de stats já enfileirados são gravados antes de
// Close retornar (espera limitada a statsTimeout). Chamadas seguintes são no-op.
func (t *QuotaTracker) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.pending = nil
	t.inFlight = 0
	close(t.done)
	t.mu.Unlock()

	if t.ownsStats && t.stats != nil {
		t.stats.close()
	}
	return nil
}

// StatsDropped conta os eventos descartados por buffer de stats cheio.
func (t *QuotaTracker) StatsDropped() int64 {
	return t.stats.droppedCount()
}

func (t *QuotaTracker) Snapshot() domain.Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := domain.Snapshot{
		Capacity:  t.capacity,
		Available: cap(t.permits) - len(t.permits),
		InFlight:  t.inFlight,
		Pending:   len(t.pending),
		Armed:     t.timer != nil,
	}
	if len(t.pending) > 0 {
		s.NextExpiry = t.pending[0]
	}
	return s
}

// Grate expõe o tracker como domain.Grate de chave única.
func (t *QuotaTracker) Grate() domain.Grate[domain.NoKey] {
	return singleGrate{t: t}
}

type singleGrate struct {
	t *QuotaTracker
}

func (g singleGrate) Wait(ctx context.Context, _ domain.NoKey) error { return g.t.Wait(ctx) }
func (g singleGrate) Release(domain.NoKey) error                     { return g.t.Release() }

// record enfileira o evento para o dispatcher; não bloqueia.
func (t *QuotaTracker) record(ev domain.StatsEvent) {
	if t.stats == nil {
		return
	}
	ev.Tracker = t.name
	if ev.At.IsZero() {
		ev.At = t.clock.Now()
	}
	t.stats.send(ev)
}
