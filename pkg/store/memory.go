package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"mercator-hq/ascent/pkg/tier"
)

const backendMemory = "memory"

// Memory is an in-process Store. It is safe for concurrent use; every
// method runs under one lock, which makes transitions trivially atomic.
type Memory struct {
	mu        sync.RWMutex
	validator tier.ExpressionValidator
	now       func() time.Time

	tiers        map[int64]tier.Tier
	regular      map[int64]tier.RegularRule
	direct       map[int64]tier.DirectRule
	distributors map[int64]tier.Distributor
	metrics      map[int64]map[string]float64
	history      []*tier.HistoryRecord
	historyByID  map[string]*tier.HistoryRecord
	nextRuleID   int64
}

// NewMemory creates an empty in-memory store.
func NewMemory(v tier.ExpressionValidator) *Memory {
	return &Memory{
		validator:    v,
		now:          func() time.Time { return time.Now().UTC() },
		tiers:        make(map[int64]tier.Tier),
		regular:      make(map[int64]tier.RegularRule),
		direct:       make(map[int64]tier.DirectRule),
		distributors: make(map[int64]tier.Distributor),
		metrics:      make(map[int64]map[string]float64),
		historyByID:  make(map[string]*tier.HistoryRecord),
	}
}

// SaveTier inserts or replaces a tier.
func (m *Memory) SaveTier(ctx context.Context, t tier.Tier) error {
	if t.ID <= 0 {
		return fmt.Errorf("tier id must be positive, got %d", t.ID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, other := range m.tiers {
		if id != t.ID && other.Rank == t.Rank {
			return fmt.Errorf("tier rank %d already used by tier %d", t.Rank, id)
		}
	}
	m.tiers[t.ID] = t
	return nil
}

// GetTier returns a tier by ID.
func (m *Memory) GetTier(ctx context.Context, id int64) (*tier.Tier, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getTierLocked(ctx, id)
}

func (m *Memory) getTierLocked(_ context.Context, id int64) (*tier.Tier, error) {
	t, ok := m.tiers[id]
	if !ok {
		return nil, tier.NewNotFoundError("tier", id)
	}
	return &t, nil
}

// ListTiers returns all tiers by ascending rank.
func (m *Memory) ListTiers(ctx context.Context) ([]tier.Tier, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]tier.Tier, 0, len(m.tiers))
	for _, t := range m.tiers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out, nil
}

// SaveRegularRule validates and stores a regular rule.
func (m *Memory) SaveRegularRule(ctx context.Context, r tier.RegularRule) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := make([]tier.RegularRule, 0, len(m.regular))
	for _, other := range m.regular {
		existing = append(existing, other)
	}
	r, err := prepareRegular(ctx, m.getTierLocked, m.validator, existing, r)
	if err != nil {
		return 0, err
	}
	if r.ID == 0 {
		m.nextRuleID++
		r.ID = m.nextRuleID
	} else if r.ID > m.nextRuleID {
		m.nextRuleID = r.ID
	}
	m.regular[r.ID] = r
	return r.ID, nil
}

// SaveDirectRule validates and stores a direct rule.
func (m *Memory) SaveDirectRule(ctx context.Context, r tier.DirectRule) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := make([]tier.DirectRule, 0, len(m.direct))
	for _, other := range m.direct {
		existing = append(existing, other)
	}
	r, err := prepareDirect(ctx, m.getTierLocked, m.validator, existing, r)
	if err != nil {
		return 0, err
	}
	if r.ID == 0 {
		m.nextRuleID++
		r.ID = m.nextRuleID
	} else if r.ID > m.nextRuleID {
		m.nextRuleID = r.ID
	}
	if r.MinTierRequirement != nil {
		v := *r.MinTierRequirement
		r.MinTierRequirement = &v
	}
	m.direct[r.ID] = r
	return r.ID, nil
}

// ListRegularRules returns all regular rules by ID.
func (m *Memory) ListRegularRules(ctx context.Context) ([]tier.RegularRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]tier.RegularRule, 0, len(m.regular))
	for _, r := range m.regular {
		out = append(out, m.refreshRegular(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListDirectRules returns all direct rules by ID.
func (m *Memory) ListDirectRules(ctx context.Context) ([]tier.DirectRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]tier.DirectRule, 0, len(m.direct))
	for _, r := range m.direct {
		out = append(out, m.refreshDirect(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// RegularRuleFor implements tier.RuleStore.
func (m *Memory) RegularRuleFor(ctx context.Context, sourceTierID int64) (*tier.RegularRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.regular {
		if r.Enabled && r.SourceTier.ID == sourceTierID {
			r = m.refreshRegular(r)
			return &r, nil
		}
	}
	return nil, nil
}

// EligibleDirectRulesFor implements tier.RuleStore.
func (m *Memory) EligibleDirectRulesFor(ctx context.Context, current tier.Tier) ([]tier.DirectRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := make([]tier.DirectRule, 0, len(m.direct))
	for _, r := range m.direct {
		all = append(all, m.refreshDirect(r))
	}
	return eligibleDirect(all, current), nil
}

// refreshRegular picks up the current rank and name of referenced tiers,
// mirroring the join the SQL backends perform.
func (m *Memory) refreshRegular(r tier.RegularRule) tier.RegularRule {
	if t, ok := m.tiers[r.SourceTier.ID]; ok {
		r.SourceTier = t
	}
	if t, ok := m.tiers[r.TargetTier.ID]; ok {
		r.TargetTier = t
	}
	return r
}

func (m *Memory) refreshDirect(r tier.DirectRule) tier.DirectRule {
	if t, ok := m.tiers[r.TargetTier.ID]; ok {
		r.TargetTier = t
	}
	return r
}

// CreateDistributor implements Store.
func (m *Memory) CreateDistributor(ctx context.Context, id, tierID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.distributors[id]; ok {
		return fmt.Errorf("distributor %d already exists", id)
	}
	t, err := m.getTierLocked(ctx, tierID)
	if err != nil {
		return err
	}
	m.distributors[id] = tier.Distributor{ID: id, Tier: *t, Version: 1, UpdatedAt: m.now()}
	return nil
}

// GetDistributor implements tier.DistributorStore.
func (m *Memory) GetDistributor(ctx context.Context, id int64) (*tier.Distributor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.distributors[id]
	if !ok {
		return nil, tier.NewNotFoundError("distributor", id)
	}
	if t, ok := m.tiers[d.Tier.ID]; ok {
		d.Tier = t
	}
	return &d, nil
}

// ListDistributorIDs implements tier.DistributorStore.
func (m *Memory) ListDistributorIDs(ctx context.Context, q tier.DistributorQuery) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]int64, 0)
	for id, d := range m.distributors {
		if id <= q.AfterID {
			continue
		}
		if q.TierID != 0 && d.Tier.ID != q.TierID {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if q.Limit > 0 && len(ids) > q.Limit {
		ids = ids[:q.Limit]
	}
	return ids, nil
}

// PutMetrics implements Store.
func (m *Memory) PutMetrics(ctx context.Context, distributorID int64, values map[string]float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make(map[string]float64, len(values))
	for k, v := range values {
		cp[k] = v
	}
	m.metrics[distributorID] = cp
	return nil
}

// GetMetrics implements Store. Unknown distributors have no metrics.
func (m *Memory) GetMetrics(ctx context.Context, distributorID int64) (map[string]float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := make(map[string]float64, len(m.metrics[distributorID]))
	for k, v := range m.metrics[distributorID] {
		cp[k] = v
	}
	return cp, nil
}

// ApplyTransition implements tier.TransitionStore. All checks run before
// any mutation, so a failure leaves the store untouched.
func (m *Memory) ApplyTransition(ctx context.Context, t tier.Transition, record *tier.HistoryRecord) error {
	if err := ctx.Err(); err != nil {
		return tier.NewStorageError(backendMemory, "apply_transition", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.distributors[t.DistributorID]
	if !ok {
		return tier.NewStorageError(backendMemory, "apply_transition", tier.NewNotFoundError("distributor", t.DistributorID))
	}
	if d.Version != t.ExpectedVersion || d.Tier.ID != t.PreviousTier.ID {
		return fmt.Errorf("distributor %d at version %d, expected %d: %w", d.ID, d.Version, t.ExpectedVersion, tier.ErrVersionConflict)
	}
	if _, dup := m.historyByID[record.ID]; dup {
		return tier.NewStorageError(backendMemory, "insert_history", fmt.Errorf("history id %s already exists", record.ID))
	}
	newTier, ok := m.tiers[t.NewTier.ID]
	if !ok {
		return tier.NewStorageError(backendMemory, "apply_transition", tier.NewNotFoundError("tier", t.NewTier.ID))
	}

	d.Tier = newTier
	d.Version++
	d.UpdatedAt = m.now()
	m.distributors[d.ID] = d

	stored := record.Clone()
	m.history = append(m.history, stored)
	m.historyByID[stored.ID] = stored
	return nil
}

// GetHistory implements tier.HistoryStore.
func (m *Memory) GetHistory(ctx context.Context, id string) (*tier.HistoryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.historyByID[id]
	if !ok {
		return nil, tier.NewNotFoundError("history", id)
	}
	return h.Clone(), nil
}

// HistoryByDistributor implements tier.HistoryStore.
func (m *Memory) HistoryByDistributor(ctx context.Context, distributorID int64, limit int) ([]*tier.HistoryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	// Newest insertion first, so equal timestamps keep that order.
	var out []*tier.HistoryRecord
	for i := len(m.history) - 1; i >= 0; i-- {
		if h := m.history[i]; h.DistributorID == distributorID {
			out = append(out, h.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
	limit = normalizeLimit(limit, DefaultHistoryLimit)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// QueryHistory implements tier.HistoryStore.
func (m *Memory) QueryHistory(ctx context.Context, q tier.HistoryQuery) ([]*tier.HistoryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*tier.HistoryRecord
	for _, h := range m.history {
		if !matchesHistory(h, q) {
			continue
		}
		out = append(out, h.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	if q.Offset > 0 {
		if q.Offset >= len(out) {
			return nil, nil
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// CountHistory implements tier.HistoryStore.
func (m *Memory) CountHistory(ctx context.Context, start, end time.Time) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, h := range m.history {
		if inRange(h.OccurredAt, &start, &end) {
			n++
		}
	}
	return n, nil
}

// MarkManual implements tier.HistoryStore.
func (m *Memory) MarkManual(ctx context.Context, id string, operator string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.historyByID[id]
	if !ok {
		return tier.NewNotFoundError("history", id)
	}
	h.TriggerKind = tier.TriggerManual
	op := operator
	h.Operator = &op
	return nil
}

// Ping implements Store.
func (m *Memory) Ping(context.Context) error { return nil }

// Close implements Store.
func (m *Memory) Close() error { return nil }

func matchesHistory(h *tier.HistoryRecord, q tier.HistoryQuery) bool {
	if !inRange(h.OccurredAt, q.StartTime, q.EndTime) {
		return false
	}
	if q.DistributorID != 0 && h.DistributorID != q.DistributorID {
		return false
	}
	if q.TriggerKind != "" && h.TriggerKind != q.TriggerKind {
		return false
	}
	return true
}
