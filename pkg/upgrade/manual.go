package upgrade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"mercator-hq/ascent/pkg/tier"
)

// DefaultTicketTTL is how long a manual check stays confirmable.
const DefaultTicketTTL = 30 * time.Minute

var (
	// ErrNoLongerEligible is returned by Confirm when fresh data no longer
	// supports the upgrade shown at check time.
	ErrNoLongerEligible = errors.New("distributor no longer meets the upgrade conditions; run the check again")

	// ErrTicketNotFound is returned when a check ticket is unknown, expired,
	// or belongs to another operator.
	ErrTicketNotFound = errors.New("upgrade check not found or expired")

	// ErrForbidden is returned when the operator may not perform manual upgrades.
	ErrForbidden = errors.New("operator is not allowed to perform manual upgrades")

	// ErrNothingToConfirm is returned when a check found no candidate.
	ErrNothingToConfirm = errors.New("check found no upgrade to confirm")
)

// Operator is the identity performing a manual action.
type Operator struct {
	ID    string
	Roles []string
}

// Authorizer decides whether an operator may run manual upgrades.
type Authorizer interface {
	CanManualUpgrade(op Operator) (bool, error)
}

// CheckResult is what an operator sees after the check step.
type CheckResult struct {
	TicketID      string        `json:"ticket_id,omitempty"`
	DistributorID int64         `json:"distributor_id"`
	CurrentTier   tier.Tier     `json:"current_tier"`
	Candidate     *Candidate    `json:"candidate,omitempty"`
	Snapshot      tier.Snapshot `json:"snapshot"`
	Reason        string        `json:"reason,omitempty"`
	Summary       string        `json:"summary"`
	CheckedAt     time.Time     `json:"checked_at"`
	ExpiresAt     time.Time     `json:"expires_at,omitempty"`

	operator string
}

// CanUpgrade reports whether the check found a candidate.
func (c *CheckResult) CanUpgrade() bool {
	return c.Candidate != nil
}

// ManualFlow implements the operator check-then-confirm upgrade path.
type ManualFlow struct {
	service *Service
	authz   Authorizer
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger

	mu      sync.Mutex
	tickets map[string]*CheckResult
}

// ManualOption customizes a ManualFlow.
type ManualOption func(*ManualFlow)

// WithTicketTTL sets how long a check can be confirmed.
func WithTicketTTL(ttl time.Duration) ManualOption {
	return func(m *ManualFlow) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithManualClock overrides the time source.
func WithManualClock(now func() time.Time) ManualOption {
	return func(m *ManualFlow) { m.now = now }
}

// NewManualFlow creates a manual flow. A nil authz allows every operator.
func NewManualFlow(service *Service, authz Authorizer, logger *slog.Logger, opts ...ManualOption) *ManualFlow {
	if logger == nil {
		logger = slog.Default()
	}
	m := &ManualFlow{
		service: service,
		authz:   authz,
		ttl:     DefaultTicketTTL,
		now:     time.Now,
		logger:  logger.With("component", "upgrade.manual"),
		tickets: make(map[string]*CheckResult),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Check resolves the distributor and, if a rule matches, issues a ticket
// that Confirm accepts until it expires.
func (m *ManualFlow) Check(ctx context.Context, op Operator, distributorID int64) (*CheckResult, error) {
	if err := m.authorize(op); err != nil {
		return nil, err
	}

	res, err := m.service.CheckEligibility(ctx, distributorID)
	if err != nil {
		return nil, err
	}

	now := m.now()
	result := &CheckResult{
		DistributorID: distributorID,
		CurrentTier:   res.Distributor.Tier,
		Candidate:     res.Candidate,
		Snapshot:      res.Snapshot,
		Reason:        res.Reason,
		Summary:       FormatSummary(res),
		CheckedAt:     now,
		operator:      op.ID,
	}

	if result.CanUpgrade() {
		result.TicketID = uuid.NewString()
		result.ExpiresAt = now.Add(m.ttl)

		m.mu.Lock()
		m.pruneLocked(now)
		m.tickets[result.TicketID] = result
		m.mu.Unlock()
	}

	m.logger.InfoContext(ctx, "manual upgrade check",
		"operator", op.ID,
		"distributor_id", distributorID,
		"can_upgrade", result.CanUpgrade(),
	)
	return result, nil
}

// Confirm executes a previously checked upgrade. Eligibility is resolved
// again from fresh data; if the distributor no longer qualifies for the
// same target tier, ErrNoLongerEligible is returned and nothing changes.
// On success the history record is marked manual with the operator.
func (m *ManualFlow) Confirm(ctx context.Context, op Operator, ticketID string) (*tier.HistoryRecord, error) {
	if err := m.authorize(op); err != nil {
		return nil, err
	}

	checked, err := m.take(ticketID, op.ID)
	if err != nil {
		return nil, err
	}

	res, err := m.service.CheckEligibility(ctx, checked.DistributorID)
	if err != nil {
		return nil, err
	}
	if !res.Matched() || res.Candidate.TargetTier.ID != checked.Candidate.TargetTier.ID {
		m.logger.InfoContext(ctx, "manual upgrade no longer eligible",
			"operator", op.ID,
			"distributor_id", checked.DistributorID,
			"checked_target", checked.Candidate.TargetTier.Name,
		)
		return nil, ErrNoLongerEligible
	}

	record, err := m.service.executor.Execute(ctx, res.Transition(nil))
	if err != nil {
		return nil, err
	}

	annotated, err := m.service.Reclassify(ctx, record.ID, op.ID)
	if err != nil {
		// The upgrade itself is committed; report it with the annotation missing.
		m.logger.ErrorContext(ctx, "manual upgrade committed but not reclassified",
			"history_id", record.ID,
			"error", err,
		)
		return record, fmt.Errorf("upgrade committed as %s: %w", record.ID, err)
	}
	return annotated, nil
}

// Pending returns the number of unexpired tickets.
func (m *ManualFlow) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked(m.now())
	return len(m.tickets)
}

func (m *ManualFlow) authorize(op Operator) error {
	if op.ID == "" {
		return ErrForbidden
	}
	if m.authz == nil {
		return nil
	}
	ok, err := m.authz.CanManualUpgrade(op)
	if err != nil {
		return fmt.Errorf("authorize operator %s: %w", op.ID, err)
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

// take removes and returns a live ticket owned by operator.
func (m *ManualFlow) take(ticketID, operator string) (*CheckResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.pruneLocked(now)
	checked, ok := m.tickets[ticketID]
	if !ok || checked.operator != operator {
		return nil, ErrTicketNotFound
	}
	delete(m.tickets, ticketID)
	if checked.Candidate == nil {
		return nil, ErrNothingToConfirm
	}
	return checked, nil
}

func (m *ManualFlow) pruneLocked(now time.Time) {
	for id, t := range m.tickets {
		if !now.Before(t.ExpiresAt) {
			delete(m.tickets, id)
		}
	}
}
