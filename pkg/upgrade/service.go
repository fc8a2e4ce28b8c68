package upgrade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"mercator-hq/ascent/pkg/tier"
)

var tracer = otel.Tracer("mercator-hq/ascent/pkg/upgrade")

// Outcome summarizes what CheckAndUpgrade did.
type Outcome string

const (
	OutcomeNoMatch  Outcome = "no_match"
	OutcomeUpgraded Outcome = "upgraded"
	OutcomeConflict Outcome = "conflict"
	OutcomeFailed   Outcome = "failed"
)

// Result is returned by CheckAndUpgrade.
type Result struct {
	Outcome    Outcome             `json:"outcome"`
	Resolution *Resolution         `json:"resolution,omitempty"`
	Record     *tier.HistoryRecord `json:"record,omitempty"`
}

// Service loads distributors, resolves them and executes matches.
type Service struct {
	distributors tier.DistributorStore
	resolver     *Resolver
	executor     *Executor
	recorder     Recorder
	logger       *slog.Logger
}

// NewService wires a service. A nil logger uses slog.Default().
func NewService(distributors tier.DistributorStore, resolver *Resolver, executor *Executor, recorder Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		distributors: distributors,
		resolver:     resolver,
		executor:     executor,
		recorder:     recorderOrNop(recorder),
		logger:       logger.With("component", "upgrade.service"),
	}
}

// UpgradeOption customizes a single CheckAndUpgrade call.
type UpgradeOption func(*upgradeOptions)

type upgradeOptions struct {
	ref *string
}

// WithTriggeringReference records the external event that caused the check,
// such as a withdrawal ledger ID.
func WithTriggeringReference(ref string) UpgradeOption {
	return func(o *upgradeOptions) {
		if ref != "" {
			o.ref = &ref
		}
	}
}

// CheckEligibility resolves a distributor against fresh data without
// executing anything.
func (s *Service) CheckEligibility(ctx context.Context, distributorID int64) (*Resolution, error) {
	d, err := s.distributors.GetDistributor(ctx, distributorID)
	if err != nil {
		return nil, err
	}
	return s.resolver.Resolve(ctx, *d)
}

// CheckAndUpgrade resolves a distributor and executes the match, if any.
//
// On a concurrency conflict the result has OutcomeConflict and the error is
// a *tier.TransitionError; the caller should call CheckAndUpgrade again.
func (s *Service) CheckAndUpgrade(ctx context.Context, distributorID int64, opts ...UpgradeOption) (*Result, error) {
	var o upgradeOptions
	for _, opt := range opts {
		opt(&o)
	}

	ctx, span := tracer.Start(ctx, "upgrade.CheckAndUpgrade")
	defer span.End()
	span.SetAttributes(attribute.Int64("distributor.id", distributorID))

	start := time.Now()
	result, err := s.checkAndUpgrade(ctx, distributorID, o)
	s.recorder.RecordResolution(string(result.Outcome), time.Since(start))

	span.SetAttributes(attribute.String("upgrade.outcome", string(result.Outcome)))
	if result.Record != nil {
		span.SetAttributes(
			attribute.String("upgrade.rule_kind", string(result.Record.RuleKind)),
			attribute.Int64("upgrade.rule_id", result.Record.RuleID),
		)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

func (s *Service) checkAndUpgrade(ctx context.Context, distributorID int64, o upgradeOptions) (*Result, error) {
	res, err := s.CheckEligibility(ctx, distributorID)
	if err != nil {
		return &Result{Outcome: OutcomeFailed}, err
	}
	if !res.Matched() {
		s.logger.DebugContext(ctx, "no upgrade rule matched",
			"distributor_id", distributorID,
			"tier", res.Distributor.Tier.Name,
			"reason", res.Reason,
		)
		return &Result{Outcome: OutcomeNoMatch, Resolution: res}, nil
	}

	record, err := s.executor.Execute(ctx, res.Transition(o.ref))
	if err != nil {
		outcome := OutcomeFailed
		if tier.IsConflict(err) {
			outcome = OutcomeConflict
		}
		return &Result{Outcome: outcome, Resolution: res}, err
	}
	return &Result{Outcome: OutcomeUpgraded, Resolution: res, Record: record}, nil
}

// UpgradeUntilStable repeatedly upgrades a distributor until no rule
// matches or maxSteps transitions have been made. Conflicts are retried by
// re-resolving. It is used to place existing distributors on their correct
// tier after rules change.
func (s *Service) UpgradeUntilStable(ctx context.Context, distributorID int64, maxSteps int) ([]*tier.HistoryRecord, error) {
	var records []*tier.HistoryRecord
	conflicts := 0
	for len(records) < maxSteps {
		if err := ctx.Err(); err != nil {
			return records, err
		}
		result, err := s.CheckAndUpgrade(ctx, distributorID)
		switch {
		case err != nil && result.Outcome == OutcomeConflict && conflicts < maxSteps:
			conflicts++
			continue
		case err != nil:
			return records, err
		case result.Outcome == OutcomeNoMatch:
			return records, nil
		}
		records = append(records, result.Record)
	}
	return records, nil
}

// Reclassify marks a history record as a manual upgrade by operator.
func (s *Service) Reclassify(ctx context.Context, historyID, operator string) (*tier.HistoryRecord, error) {
	return s.executor.Reclassify(ctx, historyID, operator)
}

// IsNotFound reports whether err means the distributor does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, tier.ErrNotFound)
}

// Preview describes what Resolve would do, for dry runs.
func Preview(res *Resolution) string {
	if !res.Matched() {
		return fmt.Sprintf("distributor %d stays at %s", res.Distributor.ID, res.Distributor.Tier.Name)
	}
	return fmt.Sprintf("distributor %d: %s -> %s (%s rule %d)",
		res.Distributor.ID, res.Distributor.Tier.Name, res.Candidate.TargetTier.Name, res.Candidate.RuleKind, res.Candidate.RuleID)
}
