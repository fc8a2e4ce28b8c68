package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/ascent/pkg/config"
)

// TriggerMetrics tracks check messages.
//
// Metrics:
//   - ascent_trigger_messages_total: handled messages by outcome
//   - ascent_trigger_published_total: published messages by source and status
type TriggerMetrics struct {
	messagesTotal  *prometheus.CounterVec
	publishedTotal *prometheus.CounterVec
}

// NewTriggerMetrics creates and registers trigger metrics.
func NewTriggerMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *TriggerMetrics {
	tm := &TriggerMetrics{
		messagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "trigger_messages_total",
				Help:      "Total number of check messages handled by outcome",
			},
			[]string{"outcome"},
		),
		publishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "trigger_published_total",
				Help:      "Total number of check messages published",
			},
			[]string{"source", "status"},
		),
	}
	registry.MustRegister(tm.messagesTotal, tm.publishedTotal)
	return tm
}

// SweepMetrics tracks batch sweeps.
//
// Metrics:
//   - ascent_sweep_runs_total: sweeps by result (completed, debounced)
//   - ascent_sweep_dispatched_total: distributors dispatched by status
//   - ascent_sweep_duration_seconds: sweep duration
//   - ascent_sweep_last_success_timestamp_seconds: end time of the last sweep
type SweepMetrics struct {
	runsTotal       *prometheus.CounterVec
	dispatchedTotal *prometheus.CounterVec
	duration        prometheus.Histogram
	lastSuccess     prometheus.Gauge
}

// NewSweepMetrics creates and registers sweep metrics.
func NewSweepMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *SweepMetrics {
	sm := &SweepMetrics{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "sweep_runs_total",
				Help:      "Total number of batch sweeps by result",
			},
			[]string{"result"},
		),
		dispatchedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "sweep_dispatched_total",
				Help:      "Total number of distributors dispatched by sweeps",
			},
			[]string{"status"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "sweep_duration_seconds",
				Help:      "Duration of batch sweeps",
				Buckets:   cfg.SweepDurationBuckets,
			},
		),
		lastSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "sweep_last_success_timestamp_seconds",
				Help:      "Unix time the last sweep completed",
			},
		),
	}
	registry.MustRegister(sm.runsTotal, sm.dispatchedTotal, sm.duration, sm.lastSuccess)
	return sm
}

// RulesMetrics tracks rules file reloads.
//
// Metrics:
//   - ascent_rules_reloads_total: reload attempts by status
//   - ascent_rules_last_reload_timestamp_seconds: time of the last good reload
type RulesMetrics struct {
	reloadsTotal *prometheus.CounterVec
	lastReload   prometheus.Gauge
}

// NewRulesMetrics creates and registers rules metrics.
func NewRulesMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *RulesMetrics {
	rm := &RulesMetrics{
		reloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "rules_reloads_total",
				Help:      "Total number of rules file reloads by status",
			},
			[]string{"status"},
		),
		lastReload: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "rules_last_reload_timestamp_seconds",
				Help:      "Unix time the rules file was last applied",
			},
		),
	}
	registry.MustRegister(rm.reloadsTotal, rm.lastReload)
	return rm
}
