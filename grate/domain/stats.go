package domain

import (
	"context"
	"time"
)

// EventKind identifica o que aconteceu com uma vaga.
type EventKind string

const (
	EventAcquired EventKind = "acquired"
	EventReleased EventKind = "released"
	EventRecycled EventKind = "recycled"
	EventCanceled EventKind = "canceled"
)

// StatsEvent representa um evento de um tracker.
//
// Observação: cuidado com cardinalidade ao persistir Tracker (em um tracker
// por chave ele é a própria chave).
type StatsEvent struct {
	Tracker string
	Kind    EventKind
	// Count é o número de vagas envolvidas (reap pode reciclar várias de uma vez).
	Count int
	// Waited é quanto tempo o Wait ficou bloqueado (apenas acquired/canceled).
	Waited time.Duration

	At time.Time
}

// StatsStore é a estratégia de persistência para estatísticas dos trackers.
//
// Implementações podem armazenar em Redis, Prometheus, memória, etc.
// O tracker chama Record de uma goroutine própria, nunca de Wait/Release, com
// um ctx com prazo; Record pode bloquear até ctx encerrar. Erros são
// best-effort (não alteram o resultado de Wait/Release).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
