package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/ascent/pkg/config"
)

// Collector owns every engine metric and implements the recorder interfaces
// of the upgrade, trigger, sweep and rules packages.
//
// All methods are no-ops when metrics are disabled in the configuration.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	engine  *EngineMetrics
	trigger *TriggerMetrics
	sweep   *SweepMetrics
	rules   *RulesMetrics
}

// NewCollector creates a collector and registers its metrics on registry.
// A nil registry creates a private one.
//
// Example:
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if len(cfg.ResolutionDurationBuckets) == 0 {
		cfg.ResolutionDurationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}
	}
	if len(cfg.SweepDurationBuckets) == 0 {
		cfg.SweepDurationBuckets = []float64{1, 5, 15, 60, 300, 900, 3600}
	}

	return &Collector{
		config:   cfg,
		registry: registry,
		engine:   NewEngineMetrics(cfg, registry),
		trigger:  NewTriggerMetrics(cfg, registry),
		sweep:    NewSweepMetrics(cfg, registry),
		rules:    NewRulesMetrics(cfg, registry),
	}
}

// Registry returns the registry the collector writes to.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordResolution records one CheckAndUpgrade call by outcome.
func (c *Collector) RecordResolution(outcome string, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.engine.resolutionsTotal.WithLabelValues(outcome).Inc()
	c.engine.resolutionDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordEvaluationFailure records a rule whose expression failed at runtime.
func (c *Collector) RecordEvaluationFailure(ruleKind string) {
	if !c.config.Enabled {
		return
	}
	c.engine.evaluationFailures.WithLabelValues(ruleKind).Inc()
}

// RecordTransition records a committed tier change.
func (c *Collector) RecordTransition(ruleKind, triggerKind string) {
	if !c.config.Enabled {
		return
	}
	c.engine.transitionsTotal.WithLabelValues(ruleKind, triggerKind).Inc()
}

// RecordTransitionError records a failed commit by error kind.
func (c *Collector) RecordTransitionError(kind string) {
	if !c.config.Enabled {
		return
	}
	c.engine.transitionErrors.WithLabelValues(kind).Inc()
}

// WatchExpressionCache exports size as the expression cache gauge.
// Calling it again replaces the previous gauge.
func (c *Collector) WatchExpressionCache(size func() int) {
	c.engine.watchCache(c.config, c.registry, size)
}

// RecordMessage records a handled check message by outcome.
func (c *Collector) RecordMessage(outcome string) {
	if !c.config.Enabled {
		return
	}
	c.trigger.messagesTotal.WithLabelValues(outcome).Inc()
}

// RecordPublish records a check message sent to the queue.
func (c *Collector) RecordPublish(source string, err error) {
	if !c.config.Enabled {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.trigger.publishedTotal.WithLabelValues(source, status).Inc()
}

// RecordSweep records a finished batch sweep.
func (c *Collector) RecordSweep(dispatched, failed int, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.sweep.runsTotal.WithLabelValues("completed").Inc()
	c.sweep.dispatchedTotal.WithLabelValues("ok").Add(float64(dispatched))
	c.sweep.dispatchedTotal.WithLabelValues("error").Add(float64(failed))
	c.sweep.duration.Observe(duration.Seconds())
	c.sweep.lastSuccess.SetToCurrentTime()
}

// RecordSweepSkipped records a sweep rejected by the debounce window.
func (c *Collector) RecordSweepSkipped() {
	if !c.config.Enabled {
		return
	}
	c.sweep.runsTotal.WithLabelValues("debounced").Inc()
}

// RecordRulesReload records an attempt to apply the rules file.
func (c *Collector) RecordRulesReload(err error) {
	if !c.config.Enabled {
		return
	}
	if err != nil {
		c.rules.reloadsTotal.WithLabelValues("error").Inc()
		return
	}
	c.rules.reloadsTotal.WithLabelValues("ok").Inc()
	c.rules.lastReload.SetToCurrentTime()
}
