package tier

import (
	"context"
	"time"
)

// RuleStore reads upgrade rules.
type RuleStore interface {
	// RegularRuleFor returns the enabled regular rule for the source tier,
	// or nil if there is none.
	RegularRuleFor(ctx context.Context, sourceTierID int64) (*RegularRule, error)

	// EligibleDirectRulesFor returns enabled direct rules a distributor at
	// current may use, ordered by priority desc, target rank desc, ID asc.
	EligibleDirectRulesFor(ctx context.Context, current Tier) ([]DirectRule, error)
}

// MetricsProvider builds the metric snapshot for one resolution.
// It must populate every whitelisted variable and have no side effects.
type MetricsProvider interface {
	BuildSnapshot(ctx context.Context, distributorID int64) (Snapshot, error)
}

// DistributorStore reads distributors.
type DistributorStore interface {
	// GetDistributor returns a *NotFoundError when the ID is unknown.
	GetDistributor(ctx context.Context, id int64) (*Distributor, error)
	ListDistributorIDs(ctx context.Context, query DistributorQuery) ([]int64, error)
}

// TransitionStore commits a tier change together with its history record.
type TransitionStore interface {
	// ApplyTransition sets the distributor tier to t.NewTier and inserts
	// record in one atomic unit, guarded by t.ExpectedVersion. It returns
	// an error wrapping ErrVersionConflict when the guard fails. On any
	// error nothing is written.
	ApplyTransition(ctx context.Context, t Transition, record *HistoryRecord) error
}

// HistoryStore reads and annotates history records.
type HistoryStore interface {
	GetHistory(ctx context.Context, id string) (*HistoryRecord, error)

	// HistoryByDistributor returns the most recent records first.
	HistoryByDistributor(ctx context.Context, distributorID int64, limit int) ([]*HistoryRecord, error)

	// QueryHistory returns records within the inclusive time range, oldest first.
	QueryHistory(ctx context.Context, query HistoryQuery) ([]*HistoryRecord, error)

	// CountHistory counts records within the inclusive time range.
	CountHistory(ctx context.Context, start, end time.Time) (int64, error)

	// MarkManual sets TriggerKind to manual and records operator.
	MarkManual(ctx context.Context, id string, operator string) error
}
