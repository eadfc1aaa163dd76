package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all application metrics
type Metrics struct {
	// Outbox metrics
	OutboxEnqueued   *prometheus.CounterVec
	OutboxDepth      prometheus.Gauge
	FlushOutcomes    *prometheus.CounterVec
	FlushPassSkipped *prometheus.CounterVec
	DeliveryDuration *prometheus.HistogramVec
	DeadLettersTotal prometheus.Counter
	Quarantined      prometheus.Counter

	// Connectivity metrics
	EffectiveOnline prometheus.Gauge
	ProbeFailures   prometheus.Counter

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics against the given registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := prometheus.WrapRegistererWith(nil, reg)

	m := &Metrics{
		OutboxEnqueued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outbox_enqueued_total",
				Help:      "Total number of mutations enqueued by type",
			},
			[]string{"type"},
		),
		OutboxDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "outbox_depth",
				Help:      "Pending and retry-pending items in the outbox",
			},
		),
		FlushOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "flush_outcomes_total",
				Help:      "Delivery attempt outcomes by kind",
			},
			[]string{"outcome"},
		),
		FlushPassSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "flush_pass_skipped_total",
				Help:      "Flush passes skipped by reason (lease_held, already_running)",
			},
			[]string{"reason"},
		),
		DeliveryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "delivery_duration_seconds",
				Help:      "Delivery attempt duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"type"},
		),
		DeadLettersTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dead_letters_total",
				Help:      "Mutations moved to the dead-letter listing",
			},
		),
		Quarantined: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "quarantined_entries_total",
				Help:      "Corrupt store entries quarantined during scans",
			},
		),
		EffectiveOnline: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "effective_online",
				Help:      "Debounced, verified connectivity (1=online)",
			},
		),
		ProbeFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "probe_failures_total",
				Help:      "Failed connectivity verification probes",
			},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}

	factory.MustRegister(
		m.OutboxEnqueued,
		m.OutboxDepth,
		m.FlushOutcomes,
		m.FlushPassSkipped,
		m.DeliveryDuration,
		m.DeadLettersTotal,
		m.Quarantined,
		m.EffectiveOnline,
		m.ProbeFailures,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)

	return m
}
