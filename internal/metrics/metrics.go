package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the tracker's Prometheus instruments.
type Metrics struct {
	PostbackAttempts   *prometheus.CounterVec
	PostbackDuration   *prometheus.HistogramVec
	ConversionsTotal   *prometheus.CounterVec
	GeoLookups         *prometheus.CounterVec
	AnalyticsFailures  *prometheus.CounterVec
	RetentionPurged    *prometheus.CounterVec
	RedeliveryEnqueued prometheus.Counter
}

// New registers every instrument with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		PostbackAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "postback_attempts_total",
				Help: "Outbound postback attempts by classified status",
			},
			[]string{"status"},
		),
		PostbackDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "postback_duration_seconds",
				Help:    "Wall-clock latency of outbound postbacks",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
			},
			[]string{"method"},
		),
		ConversionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conversions_recorded_total",
				Help: "Conversion submissions by outcome",
			},
			[]string{"outcome"},
		),
		GeoLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "geo_lookups_total",
				Help: "IP geolocation lookups by source",
			},
			[]string{"source"}, // cache, api, fallback
		),
		AnalyticsFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytics_query_failures_total",
				Help: "Analytics widgets that degraded to an empty result",
			},
			[]string{"widget"},
		),
		RetentionPurged: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "retention_purged_rows_total",
				Help: "Rows removed by the retention job",
			},
			[]string{"table"},
		),
		RedeliveryEnqueued: factory.NewCounter(prometheus.CounterOpts{
			Name: "postback_redelivery_enqueued_total",
			Help: "Postback redelivery tasks handed to the queue",
		}),
	}
}

// NewNoop returns instruments bound to a private registry, for tests and tools.
func NewNoop() *Metrics {
	return New(prometheus.NewRegistry())
}
