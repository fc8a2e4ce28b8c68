package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"mercator-hq/ascent/pkg/tier"
)

const backendPostgres = "postgres"

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// PostgresConfig contains configuration for the Postgres backend.
type PostgresConfig struct {
	// DSN is a libpq-style connection string or URL.
	DSN string

	// MaxConns caps the pool size. Zero keeps the pgxpool default.
	MaxConns int32
}

// pgDB is satisfied by *pgxpool.Pool and pgx.Tx.
type pgDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres implements Store on a pgx connection pool.
type Postgres struct {
	pool      *pgxpool.Pool
	validator tier.ExpressionValidator
	logger    *slog.Logger
	now       func() time.Time
}

// NewPostgres connects and creates the schema if needed.
func NewPostgres(ctx context.Context, config *PostgresConfig, v tier.ExpressionValidator) (*Postgres, error) {
	if config == nil || strings.TrimSpace(config.DSN) == "" {
		return nil, tier.NewStorageError(backendPostgres, "open", errors.New("dsn cannot be empty"))
	}

	poolCfg, err := pgxpool.ParseConfig(config.DSN)
	if err != nil {
		return nil, tier.NewStorageError(backendPostgres, "parse_dsn", err)
	}
	if config.MaxConns > 0 {
		poolCfg.MaxConns = config.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, tier.NewStorageError(backendPostgres, "open", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, tier.NewStorageError(backendPostgres, "ping", err)
	}

	p := &Postgres{
		pool:      pool,
		validator: v,
		logger:    slog.Default().With("component", "store.postgres"),
		now:       func() time.Time { return time.Now().UTC() },
	}
	if err := p.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	p.logger.Info("Postgres store initialized", "max_conns", poolCfg.MaxConns)
	return p, nil
}

func (p *Postgres) initialize(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, postgresSchema); err != nil {
		return tier.NewStorageError(backendPostgres, "create_schema", err)
	}
	if _, err := p.pool.Exec(ctx, postgresInsertSchemaVersion, SchemaVersion, p.now()); err != nil {
		return tier.NewStorageError(backendPostgres, "insert_schema_version", err)
	}
	var version int
	if err := p.pool.QueryRow(ctx, postgresGetSchemaVersion).Scan(&version); err != nil {
		return tier.NewStorageError(backendPostgres, "get_schema_version", err)
	}
	if version != SchemaVersion {
		return tier.NewStorageError(backendPostgres, "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}
	return nil
}

func (p *Postgres) inTx(ctx context.Context, op string, fn func(tx pgx.Tx) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return tier.NewStorageError(backendPostgres, op, err)
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return tier.NewStorageError(backendPostgres, op, err)
	}
	return nil
}

// pgRuleError maps a unique violation on the enabled-rule indexes.
func pgRuleError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%s: %w", pgErr.ConstraintName, ErrDuplicateEnabledRule)
	}
	return tier.NewStorageError(backendPostgres, op, err)
}

// SaveTier inserts or replaces a tier.
func (p *Postgres) SaveTier(ctx context.Context, t tier.Tier) error {
	if t.ID <= 0 {
		return fmt.Errorf("tier id must be positive, got %d", t.ID)
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO tiers (id, rank, name) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET rank = EXCLUDED.rank, name = EXCLUDED.name`,
		t.ID, t.Rank, t.Name)
	if err != nil {
		return tier.NewStorageError(backendPostgres, "save_tier", err)
	}
	return nil
}

// GetTier returns a tier by ID.
func (p *Postgres) GetTier(ctx context.Context, id int64) (*tier.Tier, error) {
	return pgGetTier(ctx, p.pool, id)
}

func pgGetTier(ctx context.Context, q pgDB, id int64) (*tier.Tier, error) {
	var t tier.Tier
	err := q.QueryRow(ctx, `SELECT id, rank, name FROM tiers WHERE id = $1`, id).Scan(&t.ID, &t.Rank, &t.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, tier.NewNotFoundError("tier", id)
	}
	if err != nil {
		return nil, tier.NewStorageError(backendPostgres, "get_tier", err)
	}
	return &t, nil
}

// ListTiers returns all tiers by ascending rank.
func (p *Postgres) ListTiers(ctx context.Context) ([]tier.Tier, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, rank, name FROM tiers ORDER BY rank ASC`)
	if err != nil {
		return nil, tier.NewStorageError(backendPostgres, "list_tiers", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (tier.Tier, error) {
		var t tier.Tier
		err := row.Scan(&t.ID, &t.Rank, &t.Name)
		return t, err
	})
	if err != nil {
		return nil, tier.NewStorageError(backendPostgres, "list_tiers", err)
	}
	return out, nil
}

func pgQueryRegular(ctx context.Context, q pgDB, where string, args ...any) ([]tier.RegularRule, error) {
	rows, err := q.Query(ctx, regularRuleSelect+" "+where, args...)
	if err != nil {
		return nil, tier.NewStorageError(backendPostgres, "query_regular_rules", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (tier.RegularRule, error) {
		var r tier.RegularRule
		err := row.Scan(&r.ID, &r.Expression, &r.Enabled, &r.Description,
			&r.SourceTier.ID, &r.SourceTier.Rank, &r.SourceTier.Name,
			&r.TargetTier.ID, &r.TargetTier.Rank, &r.TargetTier.Name)
		return r, err
	})
	if err != nil {
		return nil, tier.NewStorageError(backendPostgres, "query_regular_rules", err)
	}
	return out, nil
}

func pgQueryDirect(ctx context.Context, q pgDB, where string, args ...any) ([]tier.DirectRule, error) {
	rows, err := q.Query(ctx, directRuleSelect+" "+where, args...)
	if err != nil {
		return nil, tier.NewStorageError(backendPostgres, "query_direct_rules", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (tier.DirectRule, error) {
		var r tier.DirectRule
		err := row.Scan(&r.ID, &r.Expression, &r.Priority, &r.Enabled, &r.MinTierRequirement, &r.Description,
			&r.TargetTier.ID, &r.TargetTier.Rank, &r.TargetTier.Name)
		return r, err
	})
	if err != nil {
		return nil, tier.NewStorageError(backendPostgres, "query_direct_rules", err)
	}
	return out, nil
}

// SaveRegularRule validates and stores a regular rule.
func (p *Postgres) SaveRegularRule(ctx context.Context, r tier.RegularRule) (int64, error) {
	var id int64
	err := p.inTx(ctx, "save_regular_rule", func(tx pgx.Tx) error {
		existing, err := pgQueryRegular(ctx, tx, "")
		if err != nil {
			return err
		}
		get := func(ctx context.Context, id int64) (*tier.Tier, error) { return pgGetTier(ctx, tx, id) }
		r, err = prepareRegular(ctx, get, p.validator, existing, r)
		if err != nil {
			return err
		}

		if r.ID == 0 {
			err = tx.QueryRow(ctx, `
				INSERT INTO regular_rules (source_tier_id, target_tier_id, expression, enabled, description)
				VALUES ($1, $2, $3, $4, $5) RETURNING id`,
				r.SourceTier.ID, r.TargetTier.ID, r.Expression, r.Enabled, r.Description).Scan(&id)
		} else {
			id = r.ID
			_, err = tx.Exec(ctx, `
				INSERT INTO regular_rules (id, source_tier_id, target_tier_id, expression, enabled, description)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (id) DO UPDATE SET
					source_tier_id = EXCLUDED.source_tier_id,
					target_tier_id = EXCLUDED.target_tier_id,
					expression = EXCLUDED.expression,
					enabled = EXCLUDED.enabled,
					description = EXCLUDED.description`,
				r.ID, r.SourceTier.ID, r.TargetTier.ID, r.Expression, r.Enabled, r.Description)
		}
		if err != nil {
			return pgRuleError("save_regular_rule", err)
		}
		return nil
	})
	return id, err
}

// SaveDirectRule validates and stores a direct rule.
func (p *Postgres) SaveDirectRule(ctx context.Context, r tier.DirectRule) (int64, error) {
	var id int64
	err := p.inTx(ctx, "save_direct_rule", func(tx pgx.Tx) error {
		existing, err := pgQueryDirect(ctx, tx, "")
		if err != nil {
			return err
		}
		get := func(ctx context.Context, id int64) (*tier.Tier, error) { return pgGetTier(ctx, tx, id) }
		r, err = prepareDirect(ctx, get, p.validator, existing, r)
		if err != nil {
			return err
		}

		if r.ID == 0 {
			err = tx.QueryRow(ctx, `
				INSERT INTO direct_rules (target_tier_id, expression, priority, enabled, min_tier_requirement, description)
				VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
				r.TargetTier.ID, r.Expression, r.Priority, r.Enabled, r.MinTierRequirement, r.Description).Scan(&id)
		} else {
			id = r.ID
			_, err = tx.Exec(ctx, `
				INSERT INTO direct_rules (id, target_tier_id, expression, priority, enabled, min_tier_requirement, description)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (id) DO UPDATE SET
					target_tier_id = EXCLUDED.target_tier_id,
					expression = EXCLUDED.expression,
					priority = EXCLUDED.priority,
					enabled = EXCLUDED.enabled,
					min_tier_requirement = EXCLUDED.min_tier_requirement,
					description = EXCLUDED.description`,
				r.ID, r.TargetTier.ID, r.Expression, r.Priority, r.Enabled, r.MinTierRequirement, r.Description)
		}
		if err != nil {
			return pgRuleError("save_direct_rule", err)
		}
		return nil
	})
	return id, err
}

// ListRegularRules returns all regular rules by ID.
func (p *Postgres) ListRegularRules(ctx context.Context) ([]tier.RegularRule, error) {
	return pgQueryRegular(ctx, p.pool, "ORDER BY r.id")
}

// ListDirectRules returns all direct rules by ID.
func (p *Postgres) ListDirectRules(ctx context.Context) ([]tier.DirectRule, error) {
	return pgQueryDirect(ctx, p.pool, "ORDER BY r.id")
}

// RegularRuleFor implements tier.RuleStore.
func (p *Postgres) RegularRuleFor(ctx context.Context, sourceTierID int64) (*tier.RegularRule, error) {
	rules, err := pgQueryRegular(ctx, p.pool, "WHERE r.source_tier_id = $1 AND r.enabled LIMIT 1", sourceTierID)
	if err != nil || len(rules) == 0 {
		return nil, err
	}
	return &rules[0], nil
}

// EligibleDirectRulesFor implements tier.RuleStore.
func (p *Postgres) EligibleDirectRulesFor(ctx context.Context, current tier.Tier) ([]tier.DirectRule, error) {
	return pgQueryDirect(ctx, p.pool, `
		WHERE r.enabled
		  AND t.rank > $1
		  AND (r.min_tier_requirement IS NULL OR r.min_tier_requirement <= $1)
		ORDER BY r.priority DESC, t.rank DESC, r.id ASC`,
		current.Rank)
}

// CreateDistributor implements Store.
func (p *Postgres) CreateDistributor(ctx context.Context, id, tierID int64) error {
	return p.inTx(ctx, "create_distributor", func(tx pgx.Tx) error {
		if _, err := pgGetTier(ctx, tx, tierID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `INSERT INTO distributors (id, tier_id, version, updated_at) VALUES ($1, $2, 1, $3)`,
			id, tierID, p.now()); err != nil {
			return tier.NewStorageError(backendPostgres, "create_distributor", err)
		}
		return nil
	})
}

// GetDistributor implements tier.DistributorStore.
func (p *Postgres) GetDistributor(ctx context.Context, id int64) (*tier.Distributor, error) {
	var d tier.Distributor
	err := p.pool.QueryRow(ctx, `
		SELECT d.id, d.version, d.updated_at, t.id, t.rank, t.name
		FROM distributors d JOIN tiers t ON t.id = d.tier_id
		WHERE d.id = $1`, id).Scan(&d.ID, &d.Version, &d.UpdatedAt, &d.Tier.ID, &d.Tier.Rank, &d.Tier.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, tier.NewNotFoundError("distributor", id)
	}
	if err != nil {
		return nil, tier.NewStorageError(backendPostgres, "get_distributor", err)
	}
	d.UpdatedAt = d.UpdatedAt.UTC()
	return &d, nil
}

// ListDistributorIDs implements tier.DistributorStore.
func (p *Postgres) ListDistributorIDs(ctx context.Context, q tier.DistributorQuery) ([]int64, error) {
	query := `SELECT id FROM distributors WHERE id > $1`
	args := []any{q.AfterID}
	if q.TierID != 0 {
		args = append(args, q.TierID)
		query += fmt.Sprintf(` AND tier_id = $%d`, len(args))
	}
	query += ` ORDER BY id`
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, tier.NewStorageError(backendPostgres, "list_distributors", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, tier.NewStorageError(backendPostgres, "list_distributors", err)
	}
	if ids == nil {
		ids = []int64{}
	}
	return ids, nil
}

// PutMetrics implements Store.
func (p *Postgres) PutMetrics(ctx context.Context, distributorID int64, values map[string]float64) error {
	return p.inTx(ctx, "put_metrics", func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM distributor_metrics WHERE distributor_id = $1`, distributorID); err != nil {
			return tier.NewStorageError(backendPostgres, "put_metrics", err)
		}
		batch := &pgx.Batch{}
		for name, value := range values {
			batch.Queue(`INSERT INTO distributor_metrics (distributor_id, name, value) VALUES ($1, $2, $3)`,
				distributorID, name, value)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return tier.NewStorageError(backendPostgres, "put_metrics", err)
		}
		return nil
	})
}

// GetMetrics implements Store.
func (p *Postgres) GetMetrics(ctx context.Context, distributorID int64) (map[string]float64, error) {
	rows, err := p.pool.Query(ctx, `SELECT name, value FROM distributor_metrics WHERE distributor_id = $1`, distributorID)
	if err != nil {
		return nil, tier.NewStorageError(backendPostgres, "get_metrics", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var name string
		var value float64
		if err := rows.Scan(&name, &value); err != nil {
			return nil, tier.NewStorageError(backendPostgres, "get_metrics", err)
		}
		out[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, tier.NewStorageError(backendPostgres, "get_metrics", err)
	}
	return out, nil
}

// ApplyTransition implements tier.TransitionStore.
func (p *Postgres) ApplyTransition(ctx context.Context, t tier.Transition, record *tier.HistoryRecord) error {
	snapshot, err := json.Marshal(record.Snapshot)
	if err != nil {
		return tier.NewStorageError(backendPostgres, "encode_snapshot", err)
	}

	return p.inTx(ctx, "apply_transition", func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE distributors
			SET tier_id = $1, version = version + 1, updated_at = $2
			WHERE id = $3 AND version = $4 AND tier_id = $5`,
			t.NewTier.ID, p.now(), t.DistributorID, t.ExpectedVersion, t.PreviousTier.ID)
		if err != nil {
			return tier.NewStorageError(backendPostgres, "update_distributor", err)
		}
		if tag.RowsAffected() == 0 {
			var version int64
			err := tx.QueryRow(ctx, `SELECT version FROM distributors WHERE id = $1`, t.DistributorID).Scan(&version)
			if errors.Is(err, pgx.ErrNoRows) {
				return tier.NewStorageError(backendPostgres, "update_distributor", tier.NewNotFoundError("distributor", t.DistributorID))
			}
			if err != nil {
				return tier.NewStorageError(backendPostgres, "update_distributor", err)
			}
			return fmt.Errorf("distributor %d at version %d, expected %d: %w", t.DistributorID, version, t.ExpectedVersion, tier.ErrVersionConflict)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO upgrade_history (
				id, distributor_id,
				previous_tier_id, previous_tier_rank, previous_tier_name,
				new_tier_id, new_tier_rank, new_tier_name,
				rule_kind, rule_id, satisfied_expression, context_snapshot,
				occurred_at, trigger_kind, triggering_reference, operator
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
			record.ID, record.DistributorID,
			record.PreviousTier.ID, record.PreviousTier.Rank, record.PreviousTier.Name,
			record.NewTier.ID, record.NewTier.Rank, record.NewTier.Name,
			string(record.RuleKind), record.RuleID, record.SatisfiedExpression, string(snapshot),
			record.OccurredAt, string(record.TriggerKind), record.TriggeringReference, record.Operator)
		if err != nil {
			return tier.NewStorageError(backendPostgres, "insert_history", err)
		}
		return nil
	})
}

func pgScanHistory(row pgx.Row) (*tier.HistoryRecord, error) {
	var h tier.HistoryRecord
	var ruleKind, triggerKind string
	var snapshot []byte
	if err := row.Scan(&h.ID, &h.DistributorID,
		&h.PreviousTier.ID, &h.PreviousTier.Rank, &h.PreviousTier.Name,
		&h.NewTier.ID, &h.NewTier.Rank, &h.NewTier.Name,
		&ruleKind, &h.RuleID, &h.SatisfiedExpression, &snapshot,
		&h.OccurredAt, &triggerKind, &h.TriggeringReference, &h.Operator); err != nil {
		return nil, err
	}
	h.RuleKind = tier.RuleKind(ruleKind)
	h.TriggerKind = tier.TriggerKind(triggerKind)
	h.OccurredAt = h.OccurredAt.UTC()
	if err := json.Unmarshal(snapshot, &h.Snapshot); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &h, nil
}

func (p *Postgres) queryHistory(ctx context.Context, op, where string, args ...any) ([]*tier.HistoryRecord, error) {
	rows, err := p.pool.Query(ctx, "SELECT "+historyColumns+" FROM upgrade_history h "+where, args...)
	if err != nil {
		return nil, tier.NewStorageError(backendPostgres, op, err)
	}
	defer rows.Close()

	var out []*tier.HistoryRecord
	for rows.Next() {
		h, err := pgScanHistory(rows)
		if err != nil {
			return nil, tier.NewStorageError(backendPostgres, op, err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, tier.NewStorageError(backendPostgres, op, err)
	}
	return out, nil
}

// GetHistory implements tier.HistoryStore.
func (p *Postgres) GetHistory(ctx context.Context, id string) (*tier.HistoryRecord, error) {
	h, err := pgScanHistory(p.pool.QueryRow(ctx, "SELECT "+historyColumns+" FROM upgrade_history h WHERE h.id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, tier.NewNotFoundError("history", id)
	}
	if err != nil {
		return nil, tier.NewStorageError(backendPostgres, "get_history", err)
	}
	return h, nil
}

// HistoryByDistributor implements tier.HistoryStore.
func (p *Postgres) HistoryByDistributor(ctx context.Context, distributorID int64, limit int) ([]*tier.HistoryRecord, error) {
	return p.queryHistory(ctx, "history_by_distributor",
		"WHERE h.distributor_id = $1 ORDER BY h.occurred_at DESC, h.seq DESC LIMIT $2",
		distributorID, normalizeLimit(limit, DefaultHistoryLimit))
}

// QueryHistory implements tier.HistoryStore.
func (p *Postgres) QueryHistory(ctx context.Context, q tier.HistoryQuery) ([]*tier.HistoryRecord, error) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if q.StartTime != nil {
		add("h.occurred_at >= $%d", *q.StartTime)
	}
	if q.EndTime != nil {
		add("h.occurred_at <= $%d", *q.EndTime)
	}
	if q.DistributorID != 0 {
		add("h.distributor_id = $%d", q.DistributorID)
	}
	if q.TriggerKind != "" {
		add("h.trigger_kind = $%d", string(q.TriggerKind))
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}
	where += " ORDER BY h.occurred_at ASC, h.seq ASC"
	if q.Limit > 0 {
		args = append(args, q.Limit)
		where += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		where += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return p.queryHistory(ctx, "query_history", where, args...)
}

// CountHistory implements tier.HistoryStore.
func (p *Postgres) CountHistory(ctx context.Context, start, end time.Time) (int64, error) {
	var n int64
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM upgrade_history WHERE occurred_at BETWEEN $1 AND $2`, start, end).Scan(&n)
	if err != nil {
		return 0, tier.NewStorageError(backendPostgres, "count_history", err)
	}
	return n, nil
}

// MarkManual implements tier.HistoryStore.
func (p *Postgres) MarkManual(ctx context.Context, id string, operator string) error {
	tag, err := p.pool.Exec(ctx, `UPDATE upgrade_history SET trigger_kind = $1, operator = $2 WHERE id = $3`,
		string(tier.TriggerManual), operator, id)
	if err != nil {
		return tier.NewStorageError(backendPostgres, "mark_manual", err)
	}
	if tag.RowsAffected() == 0 {
		return tier.NewNotFoundError("history", id)
	}
	return nil
}

// Ping checks the pool can reach the server.
func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return tier.NewStorageError(backendPostgres, "ping", err)
	}
	return nil
}

// Close closes the pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
