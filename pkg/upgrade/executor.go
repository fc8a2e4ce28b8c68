package upgrade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"mercator-hq/ascent/pkg/tier"
)

// Executor commits tier transitions and annotates their history.
type Executor struct {
	transitions tier.TransitionStore
	history     tier.HistoryStore
	recorder    Recorder
	logger      *slog.Logger

	now   func() time.Time
	newID func() string
}

// ExecutorOption customizes an Executor.
type ExecutorOption func(*Executor)

// WithClock overrides the time source used for OccurredAt.
func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) { e.now = now }
}

// WithIDGenerator overrides history record ID generation.
func WithIDGenerator(newID func() string) ExecutorOption {
	return func(e *Executor) { e.newID = newID }
}

// NewExecutor creates an executor. A nil logger uses slog.Default().
func NewExecutor(transitions tier.TransitionStore, history tier.HistoryStore, recorder Recorder, logger *slog.Logger, opts ...ExecutorOption) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{
		transitions: transitions,
		history:     history,
		recorder:    recorderOrNop(recorder),
		logger:      logger.With("component", "upgrade.executor"),
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute applies t atomically and returns the new history record, which
// always has TriggerKind auto. Any failure is a *tier.TransitionError and
// leaves the store unchanged.
func (e *Executor) Execute(ctx context.Context, t tier.Transition) (*tier.HistoryRecord, error) {
	if t.NewTier.ID == t.PreviousTier.ID {
		return nil, tier.NewTransitionError(t.DistributorID, fmt.Errorf("distributor already at tier %d", t.NewTier.ID))
	}

	record := &tier.HistoryRecord{
		ID:                  e.newID(),
		DistributorID:       t.DistributorID,
		PreviousTier:        t.PreviousTier,
		NewTier:             t.NewTier,
		RuleKind:            t.RuleKind,
		RuleID:              t.RuleID,
		SatisfiedExpression: t.Expression,
		Snapshot:            t.Snapshot.Clone(),
		OccurredAt:          e.now(),
		TriggerKind:         tier.TriggerAuto,
		TriggeringReference: t.TriggeringReference,
	}

	if err := e.transitions.ApplyTransition(ctx, t, record); err != nil {
		terr := tier.NewTransitionError(t.DistributorID, err)
		e.recorder.RecordTransitionError(string(terr.Kind))
		if terr.Kind == tier.TransitionConflict {
			e.logger.InfoContext(ctx, "transition lost a concurrent update",
				"distributor_id", t.DistributorID,
				"expected_version", t.ExpectedVersion,
			)
		} else {
			e.logger.ErrorContext(ctx, "transition failed and was rolled back",
				"distributor_id", t.DistributorID,
				"new_tier", t.NewTier.ID,
				"error", err,
			)
		}
		return nil, terr
	}

	e.recorder.RecordTransition(string(t.RuleKind), string(tier.TriggerAuto))
	e.logger.InfoContext(ctx, "distributor upgraded",
		"distributor_id", t.DistributorID,
		"previous_tier", t.PreviousTier.Name,
		"new_tier", t.NewTier.Name,
		"rule_kind", t.RuleKind,
		"rule_id", t.RuleID,
		"history_id", record.ID,
	)
	return record, nil
}

// Reclassify marks an existing history record as a manual upgrade by
// operator. It does not touch the distributor.
func (e *Executor) Reclassify(ctx context.Context, historyID, operator string) (*tier.HistoryRecord, error) {
	operator = strings.TrimSpace(operator)
	if operator == "" {
		return nil, errors.New("operator is required")
	}
	if err := e.history.MarkManual(ctx, historyID, operator); err != nil {
		return nil, fmt.Errorf("reclassify history %s: %w", historyID, err)
	}
	record, err := e.history.GetHistory(ctx, historyID)
	if err != nil {
		return nil, fmt.Errorf("reload history %s: %w", historyID, err)
	}
	e.logger.InfoContext(ctx, "history reclassified as manual",
		"history_id", historyID,
		"operator", operator,
	)
	return record, nil
}
