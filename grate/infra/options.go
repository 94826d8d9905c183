package infra

import (
	"log/slog"

	"rategrate/grate/domain"
)

type options struct {
	clock       domain.Clock
	stats       domain.StatsStore
	statsBuffer int
	logger      *slog.Logger
	name        string
}

// Option configura QuotaTracker e KeyedQuotaTracker.
type Option func(*options)

func WithClock(c domain.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithStats registra eventos de cada vaga (best-effort). A gravação roda em
// uma goroutine própria, fora de Wait/Release.
func WithStats(s domain.StatsStore) Option {
	return func(o *options) { o.stats = s }
}

// WithStatsBuffer define quantos eventos esperam gravação antes de começarem a
// ser descartados (padrão 1024).
func WithStatsBuffer(n int) Option {
	return func(o *options) { o.statsBuffer = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithName define o rótulo usado em logs e stats (padrão "global"). No tracker
// por chave ele vira prefixo ("name:key").
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

func buildOptions(opts []Option) options {
	o := options{
		clock:  SystemClock{},
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = SystemClock{}
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	return o
}
