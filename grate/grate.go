package grate

import (
	"context"
	"time"

	"rategrate/grate/application"
	"rategrate/grate/domain"
	"rategrate/grate/infra"
)

type (
	Config                          = domain.Config
	NoKey                           = domain.NoKey
	Option                          = infra.Option
	QuotaTracker                    = infra.QuotaTracker
	KeyedQuotaTracker[K comparable] = infra.KeyedQuotaTracker[K]
)

var (
	WithClock       = infra.WithClock
	WithStats       = infra.WithStats
	WithStatsBuffer = infra.WithStatsBuffer
	WithLogger      = infra.WithLogger
	WithName        = infra.WithName
)

var (
	ErrInvalidConfig = domain.ErrInvalidConfig
	ErrUnknownKey    = domain.ErrUnknownKey
	ErrNotAcquired   = domain.ErrNotAcquired
	ErrDisposed      = domain.ErrDisposed
)

// New cria um pool único de capacity vagas por window.
func New(capacity int, window time.Duration, opts ...Option) (*QuotaTracker, error) {
	return infra.NewQuotaTracker(domain.Config{Capacity: capacity, Window: window}, opts...)
}

// NewKeyed cria um pool por chave, todos com capacity vagas por window.
func NewKeyed[K comparable](capacity int, window time.Duration, opts ...Option) (*KeyedQuotaTracker[K], error) {
	return infra.NewKeyedQuotaTracker[K](domain.Config{Capacity: capacity, Window: window}, opts...)
}

// WaitAndRun é application.WaitAndRun.
func WaitAndRun[K comparable, T any](ctx context.Context, g domain.Grate[K], key K, action func(context.Context) (T, error)) (T, error) {
	return application.WaitAndRun(ctx, g, key, action)
}
