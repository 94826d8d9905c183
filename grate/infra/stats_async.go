package infra

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"rategrate/grate/domain"
)

const defaultStatsBuffer = 1024

// statsDispatcher tira o StatsStore do caminho de Wait/Release: os eventos vão
// para um channel com buffer e uma goroutine os grava, com statsTimeout por
// evento. Com o buffer cheio o evento é descartado e contado.
type statsDispatcher struct {
	store  domain.StatsStore
	logger *slog.Logger

	mu     sync.RWMutex
	events chan domain.StatsEvent
	closed bool
	done   chan struct{}

	dropped atomic.Int64
}

func newStatsDispatcher(store domain.StatsStore, size int, logger *slog.Logger) *statsDispatcher {
	if size <= 0 {
		size = defaultStatsBuffer
	}
	d := &statsDispatcher{
		store:  store,
		logger: logger,
		events: make(chan domain.StatsEvent, size),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

// send nunca bloqueia.
func (d *statsDispatcher) send(ev domain.StatsEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return
	}
	select {
	case d.events <- ev:
	default:
		d.dropped.Add(1)
	}
}

func (d *statsDispatcher) run() {
	defer close(d.done)
	for ev := range d.events {
		ctx, cancel := context.WithTimeout(context.Background(), statsTimeout)
		err := d.store.Record(ctx, ev)
		cancel()
		if err != nil {
			d.logger.Warn("stats record failed", "tracker", ev.Tracker, "kind", ev.Kind, "err", err)
		}
	}
}

// close para de aceitar eventos e espera a fila esvaziar por até statsTimeout.
func (d *statsDispatcher) close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.events)
	d.mu.Unlock()

	t := time.NewTimer(statsTimeout)
	defer t.Stop()
	select {
	case <-d.done:
	case <-t.C:
		d.logger.Warn("stats still draining after close", "queued", len(d.events))
	}
}

func (d *statsDispatcher) droppedCount() int64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
