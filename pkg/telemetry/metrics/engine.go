package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/ascent/pkg/config"
)

// EngineMetrics tracks resolution and transition activity.
//
// Metrics:
//   - ascent_resolutions_total: CheckAndUpgrade calls by outcome
//   - ascent_resolution_duration_seconds: CheckAndUpgrade latency by outcome
//   - ascent_rule_evaluation_failures_total: runtime expression failures by rule kind
//   - ascent_transitions_total: committed tier changes by rule and trigger kind
//   - ascent_transition_errors_total: failed commits by error kind
//   - ascent_expression_cache_entries: parsed expressions held in memory
type EngineMetrics struct {
	resolutionsTotal   *prometheus.CounterVec
	resolutionDuration *prometheus.HistogramVec
	evaluationFailures *prometheus.CounterVec
	transitionsTotal   *prometheus.CounterVec
	transitionErrors   *prometheus.CounterVec

	mu        sync.Mutex
	cacheSize prometheus.Collector
}

// NewEngineMetrics creates and registers engine metrics.
func NewEngineMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *EngineMetrics {
	em := &EngineMetrics{
		resolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "resolutions_total",
				Help:      "Total number of upgrade resolutions by outcome",
			},
			[]string{"outcome"},
		),

		resolutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "resolution_duration_seconds",
				Help:      "Duration of upgrade resolution including the commit",
				Buckets:   cfg.ResolutionDurationBuckets,
			},
			[]string{"outcome"},
		),

		evaluationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "rule_evaluation_failures_total",
				Help:      "Total number of rule expressions that failed at evaluation time",
			},
			[]string{"rule_kind"},
		),

		transitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "transitions_total",
				Help:      "Total number of committed tier transitions",
			},
			[]string{"rule_kind", "trigger_kind"},
		),

		transitionErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "transition_errors_total",
				Help:      "Total number of tier transitions that could not be committed",
			},
			[]string{"kind"},
		),
	}

	registry.MustRegister(
		em.resolutionsTotal,
		em.resolutionDuration,
		em.evaluationFailures,
		em.transitionsTotal,
		em.transitionErrors,
	)

	return em
}

func (em *EngineMetrics) watchCache(cfg *config.MetricsConfig, registry *prometheus.Registry, size func() int) {
	gauge := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "expression_cache_entries",
			Help:      "Number of parsed rule expressions held in memory",
		},
		func() float64 { return float64(size()) },
	)

	em.mu.Lock()
	defer em.mu.Unlock()
	if em.cacheSize != nil {
		registry.Unregister(em.cacheSize)
	}
	registry.MustRegister(gauge)
	em.cacheSize = gauge
}
