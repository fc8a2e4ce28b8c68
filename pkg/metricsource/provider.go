// Package metricsource builds the metric snapshot a resolution evaluates
// rule conditions against.
package metricsource

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"mercator-hq/ascent/pkg/expr"
	"mercator-hq/ascent/pkg/tier"
)

// Source returns raw metric aggregates for a distributor. Missing names
// are allowed; Provider fills them with zero.
type Source interface {
	GetMetrics(ctx context.Context, distributorID int64) (map[string]float64, error)
}

// Provider implements tier.MetricsProvider over a Source.
type Provider struct {
	source Source
	now    func() time.Time
	logger *slog.Logger
}

// Option customizes a Provider.
type Option func(*Provider)

// WithClock overrides the time stamped on snapshots.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// WithLogger sets the provider logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) { p.logger = logger }
}

// NewProvider creates a Provider reading from source.
func NewProvider(source Source, opts ...Option) *Provider {
	p := &Provider{
		source: source,
		now:    func() time.Time { return time.Now().UTC() },
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "metricsource")
	return p
}

// BuildSnapshot reads the distributor's aggregates fresh on every call and
// returns a snapshot holding exactly the whitelisted variables.
func (p *Provider) BuildSnapshot(ctx context.Context, distributorID int64) (tier.Snapshot, error) {
	raw, err := p.source.GetMetrics(ctx, distributorID)
	if err != nil {
		return tier.Snapshot{}, fmt.Errorf("read metrics for distributor %d: %w", distributorID, err)
	}

	values := make(map[string]float64, len(expr.Variables))
	for _, name := range expr.Variables {
		v := raw[name]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return tier.Snapshot{}, fmt.Errorf("metric %s for distributor %d is not finite", name, distributorID)
		}
		values[name] = v
	}
	if extra := len(raw) - countKnown(raw); extra > 0 {
		p.logger.DebugContext(ctx, "ignoring non-whitelisted metrics",
			"distributor_id", distributorID,
			"count", extra,
		)
	}
	return tier.NewSnapshot(values, p.now()), nil
}

func countKnown(raw map[string]float64) int {
	n := 0
	for _, name := range expr.Variables {
		if _, ok := raw[name]; ok {
			n++
		}
	}
	return n
}

// Static is a Source backed by a fixed map, used by dry runs and tests.
type Static map[int64]map[string]float64

// GetMetrics implements Source.
func (s Static) GetMetrics(_ context.Context, distributorID int64) (map[string]float64, error) {
	return s[distributorID], nil
}
