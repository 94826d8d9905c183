package infra

import (
	"context"

	"rategrate/grate/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusStats expõe os eventos dos trackers como métricas Prometheus.
//
// Sem trackKeys o label "tracker" é sempre "all", para não explodir a
// cardinalidade com chaves de usuário.
type PrometheusStats struct {
	events  *prometheus.CounterVec
	waits   *prometheus.HistogramVec
	pending *prometheus.GaugeVec

	trackKeys bool
}

type PrometheusOption func(*prometheusConfig)

type prometheusConfig struct {
	namespace string
	buckets   []float64
	trackKeys bool
}

func WithPrometheusNamespace(ns string) PrometheusOption {
	return func(c *prometheusConfig) { c.namespace = ns }
}

func WithPrometheusBuckets(b []float64) PrometheusOption {
	return func(c *prometheusConfig) { c.buckets = b }
}

func WithPrometheusTrackKeys(track bool) PrometheusOption {
	return func(c *prometheusConfig) { c.trackKeys = track }
}

// NewPrometheusStats registra os coletores em reg (prometheus.DefaultRegisterer
// se nil).
func NewPrometheusStats(reg prometheus.Registerer, opts ...PrometheusOption) (*PrometheusStats, error) {
	cfg := prometheusConfig{
		namespace: "grate",
		// Esperas em Wait vão de imediato até algumas janelas.
		buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	p := &PrometheusStats{
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.namespace,
				Name:      "permit_events_total",
				Help:      "Total number of permit events by kind",
			},
			[]string{"tracker", "kind"},
		),
		waits: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.namespace,
				Name:      "wait_duration_seconds",
				Help:      "Time callers spent blocked in Wait",
				Buckets:   cfg.buckets,
			},
			[]string{"tracker", "result"},
		),
		pending: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.namespace,
				Name:      "permits_cooling",
				Help:      "Released permits still inside their window",
			},
			[]string{"tracker"},
		),
		trackKeys: cfg.trackKeys,
	}

	for _, c := range []prometheus.Collector{p.events, p.waits, p.pending} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *PrometheusStats) label(tracker string) string {
	if !p.trackKeys || tracker == "" {
		return "all"
	}
	return tracker
}

func (p *PrometheusStats) Record(_ context.Context, ev domain.StatsEvent) error {
	n := float64(ev.Count)
	if n <= 0 {
		n = 1
	}
	tracker := p.label(ev.Tracker)

	p.events.WithLabelValues(tracker, string(ev.Kind)).Add(n)

	switch ev.Kind {
	case domain.EventAcquired, domain.EventCanceled:
		p.waits.WithLabelValues(tracker, string(ev.Kind)).Observe(ev.Waited.Seconds())
	case domain.EventReleased:
		p.pending.WithLabelValues(tracker).Add(n)
	case domain.EventRecycled:
		p.pending.WithLabelValues(tracker).Sub(n)
	}
	return nil
}
