package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"mercator-hq/ascent/pkg/config"
)

func testConfig() *config.MetricsConfig {
	return &config.MetricsConfig{
		Enabled:                   true,
		Namespace:                 "test",
		ResolutionDurationBuckets: []float64{0.01, 0.1, 1},
		SweepDurationBuckets:      []float64{1, 10, 100},
	}
}

func TestNewCollector_Defaults(t *testing.T) {
	cfg := &config.MetricsConfig{Enabled: true}
	c := NewCollector(cfg, nil)

	if c.Registry() == nil {
		t.Fatal("expected a private registry")
	}
	if cfg.Namespace != "ascent" {
		t.Errorf("expected namespace ascent, got %q", cfg.Namespace)
	}
	if len(cfg.ResolutionDurationBuckets) == 0 || len(cfg.SweepDurationBuckets) == 0 {
		t.Error("expected default buckets")
	}
}

func TestCollector_Engine(t *testing.T) {
	c := NewCollector(testConfig(), prometheus.NewRegistry())

	c.RecordResolution("upgraded", 3*time.Millisecond)
	c.RecordResolution("upgraded", 5*time.Millisecond)
	c.RecordResolution("no_match", time.Millisecond)
	c.RecordEvaluationFailure("direct")
	c.RecordTransition("regular", "auto")
	c.RecordTransitionError("concurrency_conflict")

	tests := []struct {
		name      string
		collector prometheus.Collector
		want      float64
	}{
		{"upgraded", c.engine.resolutionsTotal.WithLabelValues("upgraded"), 2},
		{"no match", c.engine.resolutionsTotal.WithLabelValues("no_match"), 1},
		{"evaluation failure", c.engine.evaluationFailures.WithLabelValues("direct"), 1},
		{"transition", c.engine.transitionsTotal.WithLabelValues("regular", "auto"), 1},
		{"transition error", c.engine.transitionErrors.WithLabelValues("concurrency_conflict"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testutil.ToFloat64(tt.collector); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}

	if n := testutil.CollectAndCount(c.engine.resolutionDuration); n != 2 {
		t.Errorf("expected 2 duration series, got %d", n)
	}
}

func TestCollector_TriggerAndSweep(t *testing.T) {
	c := NewCollector(testConfig(), prometheus.NewRegistry())

	c.RecordMessage("upgraded")
	c.RecordMessage("not_found")
	c.RecordPublish("sweep", nil)
	c.RecordPublish("sweep", errors.New("broker down"))
	c.RecordSweep(10, 2, 3*time.Second)
	c.RecordSweepSkipped()

	if got := testutil.ToFloat64(c.trigger.messagesTotal.WithLabelValues("not_found")); got != 1 {
		t.Errorf("expected 1 not_found message, got %v", got)
	}
	if got := testutil.ToFloat64(c.trigger.publishedTotal.WithLabelValues("sweep", "error")); got != 1 {
		t.Errorf("expected 1 failed publish, got %v", got)
	}
	if got := testutil.ToFloat64(c.sweep.dispatchedTotal.WithLabelValues("ok")); got != 10 {
		t.Errorf("expected 10 dispatched, got %v", got)
	}
	if got := testutil.ToFloat64(c.sweep.dispatchedTotal.WithLabelValues("error")); got != 2 {
		t.Errorf("expected 2 failed, got %v", got)
	}
	if got := testutil.ToFloat64(c.sweep.runsTotal.WithLabelValues("debounced")); got != 1 {
		t.Errorf("expected 1 debounced run, got %v", got)
	}
	if got := testutil.ToFloat64(c.sweep.lastSuccess); got == 0 {
		t.Error("expected last success timestamp to be set")
	}
}

func TestCollector_RulesReload(t *testing.T) {
	c := NewCollector(testConfig(), prometheus.NewRegistry())

	c.RecordRulesReload(nil)
	c.RecordRulesReload(errors.New("bad yaml"))

	if got := testutil.ToFloat64(c.rules.reloadsTotal.WithLabelValues("ok")); got != 1 {
		t.Errorf("expected 1 ok reload, got %v", got)
	}
	if got := testutil.ToFloat64(c.rules.reloadsTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("expected 1 failed reload, got %v", got)
	}
}

func TestCollector_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	c := NewCollector(cfg, prometheus.NewRegistry())

	c.RecordResolution("upgraded", time.Millisecond)
	c.RecordTransition("regular", "auto")
	c.RecordMessage("upgraded")
	c.RecordSweep(1, 0, time.Second)

	if n := testutil.CollectAndCount(c.engine.resolutionsTotal); n != 0 {
		t.Errorf("expected no series when disabled, got %d", n)
	}
	if n := testutil.CollectAndCount(c.trigger.messagesTotal); n != 0 {
		t.Errorf("expected no series when disabled, got %d", n)
	}
}

func TestCollector_WatchExpressionCache(t *testing.T) {
	registry := prometheus.NewRegistry()
	c := NewCollector(testConfig(), registry)

	c.WatchExpressionCache(func() int { return 3 })
	c.WatchExpressionCache(func() int { return 7 })

	expected := `
# HELP test_expression_cache_entries Number of parsed rule expressions held in memory
# TYPE test_expression_cache_entries gauge
test_expression_cache_entries 7
`
	if err := testutil.GatherAndCompare(registry, strings.NewReader(expected), "test_expression_cache_entries"); err != nil {
		t.Error(err)
	}
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector(testConfig(), prometheus.NewRegistry())
	c.RecordTransition("direct", "manual")

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	want := `test_transitions_total{rule_kind="direct",trigger_kind="manual"} 1`
	if !strings.Contains(string(body), want) {
		t.Errorf("expected %q in scrape output:\n%s", want, body)
	}
}
