package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"mercator-hq/ascent/pkg/tier"
)

// ErrDuplicateEnabledRule is returned when saving an enabled rule would
// break the one-enabled-rule-per-tier invariant.
var ErrDuplicateEnabledRule = errors.New("an enabled rule already exists for this tier")

// DefaultHistoryLimit caps HistoryByDistributor when no limit is given.
const DefaultHistoryLimit = 20

// Store is the full persistence surface used by the engine and the CLI.
type Store interface {
	tier.RuleStore
	tier.DistributorStore
	tier.TransitionStore
	tier.HistoryStore

	SaveTier(ctx context.Context, t tier.Tier) error
	GetTier(ctx context.Context, id int64) (*tier.Tier, error)
	ListTiers(ctx context.Context) ([]tier.Tier, error)

	// SaveRegularRule inserts (ID zero) or updates a rule and returns its ID.
	SaveRegularRule(ctx context.Context, r tier.RegularRule) (int64, error)
	SaveDirectRule(ctx context.Context, r tier.DirectRule) (int64, error)
	ListRegularRules(ctx context.Context) ([]tier.RegularRule, error)
	ListDirectRules(ctx context.Context) ([]tier.DirectRule, error)

	// CreateDistributor registers a distributor at tierID with version 1.
	CreateDistributor(ctx context.Context, id, tierID int64) error

	// PutMetrics replaces the metric aggregates of a distributor.
	PutMetrics(ctx context.Context, distributorID int64, values map[string]float64) error
	GetMetrics(ctx context.Context, distributorID int64) (map[string]float64, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Backend  string // "memory", "sqlite" or "postgres"
	SQLite   *SQLiteConfig
	Postgres *PostgresConfig

	// Validator checks expressions of enabled rules on save.
	Validator tier.ExpressionValidator
}

// Open creates the configured backend.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "memory":
		return NewMemory(cfg.Validator), nil
	case "sqlite":
		return NewSQLite(ctx, cfg.SQLite, cfg.Validator)
	case "postgres":
		return NewPostgres(ctx, cfg.Postgres, cfg.Validator)
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}

// tierLookup resolves tier references of a rule being saved.
type tierLookup func(ctx context.Context, id int64) (*tier.Tier, error)

// prepareRegular fills in tier details and applies authoring checks.
func prepareRegular(ctx context.Context, get tierLookup, v tier.ExpressionValidator, existing []tier.RegularRule, r tier.RegularRule) (tier.RegularRule, error) {
	src, err := get(ctx, r.SourceTier.ID)
	if err != nil {
		return r, fmt.Errorf("source tier: %w", err)
	}
	dst, err := get(ctx, r.TargetTier.ID)
	if err != nil {
		return r, fmt.Errorf("target tier: %w", err)
	}
	r.SourceTier, r.TargetTier = *src, *dst

	if err := r.Validate(v); err != nil {
		return r, err
	}
	if r.Enabled {
		for _, other := range existing {
			if other.ID != r.ID && other.Enabled && other.SourceTier.ID == r.SourceTier.ID {
				return r, fmt.Errorf("regular rule for source tier %d: %w (rule %d)", r.SourceTier.ID, ErrDuplicateEnabledRule, other.ID)
			}
		}
	}
	return r, nil
}

func prepareDirect(ctx context.Context, get tierLookup, v tier.ExpressionValidator, existing []tier.DirectRule, r tier.DirectRule) (tier.DirectRule, error) {
	dst, err := get(ctx, r.TargetTier.ID)
	if err != nil {
		return r, fmt.Errorf("target tier: %w", err)
	}
	r.TargetTier = *dst

	if err := r.Validate(v); err != nil {
		return r, err
	}
	if r.Enabled {
		for _, other := range existing {
			if other.ID != r.ID && other.Enabled && other.TargetTier.ID == r.TargetTier.ID {
				return r, fmt.Errorf("direct rule for target tier %d: %w (rule %d)", r.TargetTier.ID, ErrDuplicateEnabledRule, other.ID)
			}
		}
	}
	return r, nil
}

// eligibleDirect filters and orders direct rules for current.
func eligibleDirect(rules []tier.DirectRule, current tier.Tier) []tier.DirectRule {
	out := make([]tier.DirectRule, 0, len(rules))
	for _, r := range rules {
		if r.Enabled && r.EligibleFor(current) {
			out = append(out, r)
		}
	}
	tier.SortDirectRules(out)
	return out
}

func normalizeLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return limit
}

func inRange(t time.Time, start, end *time.Time) bool {
	if start != nil && t.Before(*start) {
		return false
	}
	if end != nil && t.After(*end) {
		return false
	}
	return true
}
