package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"mercator-hq/ascent/pkg/tier"
)

const backendSQLite = "sqlite"

// SQLite driver names.
const (
	DriverModernc = "sqlite"  // modernc.org/sqlite, pure Go
	DriverMattn   = "sqlite3" // github.com/mattn/go-sqlite3, cgo
)

// SQLiteConfig contains configuration for the SQLite backend.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// Driver is DriverModernc (default) or DriverMattn.
	Driver string

	// MaxOpenConns is the maximum number of open connections.
	// Default: 1, which serializes writers inside the process.
	MaxOpenConns int

	// WALMode enables write-ahead logging.
	// Default: true
	WALMode bool

	// BusyTimeout is how long to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/ascent.db",
		Driver:       DriverModernc,
		MaxOpenConns: 1,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// dsn builds a driver-specific DSN so pragmas apply to every pooled
// connection, not just the first.
func (c *SQLiteConfig) dsn() string {
	ms := c.BusyTimeout.Milliseconds()
	if c.Driver == DriverMattn {
		dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on", c.Path, ms)
		if c.WALMode {
			dsn += "&_journal_mode=WAL"
		}
		return dsn
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)", c.Path, ms)
	if c.WALMode {
		dsn += "&_pragma=journal_mode(WAL)"
	}
	return dsn
}

// SQLite implements Store on a SQLite database.
type SQLite struct {
	db        *sql.DB
	config    *SQLiteConfig
	validator tier.ExpressionValidator
	logger    *slog.Logger
	now       func() time.Time
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NewSQLite opens (creating if needed) a SQLite store.
func NewSQLite(ctx context.Context, config *SQLiteConfig, v tier.ExpressionValidator) (*SQLite, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if config.Path == "" {
		return nil, tier.NewStorageError(backendSQLite, "open", errors.New("path cannot be empty"))
	}
	if config.Driver == "" {
		config.Driver = DriverModernc
	}
	if config.Driver != DriverModernc && config.Driver != DriverMattn {
		return nil, tier.NewStorageError(backendSQLite, "open", fmt.Errorf("unknown driver %q", config.Driver))
	}
	if config.MaxOpenConns <= 0 {
		config.MaxOpenConns = 1
	}
	if config.BusyTimeout <= 0 {
		config.BusyTimeout = 5 * time.Second
	}

	logger := slog.Default().With("component", "store.sqlite")

	db, err := sql.Open(config.Driver, config.dsn())
	if err != nil {
		return nil, tier.NewStorageError(backendSQLite, "open", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxOpenConns)

	s := &SQLite{
		db:        db,
		config:    config,
		validator: v,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	if err := s.initialize(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite store initialized",
		"path", config.Path,
		"driver", config.Driver,
		"wal_mode", config.WALMode,
	)
	return s, nil
}

func (s *SQLite) initialize(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return tier.NewStorageError(backendSQLite, "create_schema", err)
	}
	if _, err := s.db.ExecContext(ctx, sqliteInsertSchemaVersion, SchemaVersion, s.now().UnixNano()); err != nil {
		return tier.NewStorageError(backendSQLite, "insert_schema_version", err)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, sqliteGetSchemaVersion).Scan(&version); err != nil {
		return tier.NewStorageError(backendSQLite, "get_schema_version", err)
	}
	if version != SchemaVersion {
		return tier.NewStorageError(backendSQLite, "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}
	s.logger.Debug("schema version verified", "version", version)
	return nil
}

// inTx runs fn in a transaction, rolling back on error.
func (s *SQLite) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return tier.NewStorageError(backendSQLite, op, err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return tier.NewStorageError(backendSQLite, op, err)
	}
	return nil
}

// SaveTier inserts or replaces a tier.
func (s *SQLite) SaveTier(ctx context.Context, t tier.Tier) error {
	if t.ID <= 0 {
		return fmt.Errorf("tier id must be positive, got %d", t.ID)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tiers (id, rank, name) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET rank = excluded.rank, name = excluded.name`,
		t.ID, t.Rank, t.Name)
	if err != nil {
		return tier.NewStorageError(backendSQLite, "save_tier", err)
	}
	return nil
}

// GetTier returns a tier by ID.
func (s *SQLite) GetTier(ctx context.Context, id int64) (*tier.Tier, error) {
	return sqliteGetTier(ctx, s.db, id)
}

func sqliteGetTier(ctx context.Context, q querier, id int64) (*tier.Tier, error) {
	var t tier.Tier
	err := q.QueryRowContext(ctx, `SELECT id, rank, name FROM tiers WHERE id = ?`, id).Scan(&t.ID, &t.Rank, &t.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tier.NewNotFoundError("tier", id)
	}
	if err != nil {
		return nil, tier.NewStorageError(backendSQLite, "get_tier", err)
	}
	return &t, nil
}

// ListTiers returns all tiers by ascending rank.
func (s *SQLite) ListTiers(ctx context.Context) ([]tier.Tier, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, rank, name FROM tiers ORDER BY rank ASC`)
	if err != nil {
		return nil, tier.NewStorageError(backendSQLite, "list_tiers", err)
	}
	defer rows.Close()

	var out []tier.Tier
	for rows.Next() {
		var t tier.Tier
		if err := rows.Scan(&t.ID, &t.Rank, &t.Name); err != nil {
			return nil, tier.NewStorageError(backendSQLite, "list_tiers", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, tier.NewStorageError(backendSQLite, "list_tiers", err)
	}
	return out, nil
}

// Rule selects shared by the SQL backends.
const regularRuleSelect = `
	SELECT r.id, r.expression, r.enabled, r.description,
	       s.id, s.rank, s.name, t.id, t.rank, t.name
	FROM regular_rules r
	JOIN tiers s ON s.id = r.source_tier_id
	JOIN tiers t ON t.id = r.target_tier_id`

const directRuleSelect = `
	SELECT r.id, r.expression, r.priority, r.enabled, r.min_tier_requirement, r.description,
	       t.id, t.rank, t.name
	FROM direct_rules r
	JOIN tiers t ON t.id = r.target_tier_id`

func sqliteQueryRegular(ctx context.Context, q querier, where string, args ...any) ([]tier.RegularRule, error) {
	rows, err := q.QueryContext(ctx, regularRuleSelect+" "+where, args...)
	if err != nil {
		return nil, tier.NewStorageError(backendSQLite, "query_regular_rules", err)
	}
	defer rows.Close()

	var out []tier.RegularRule
	for rows.Next() {
		var r tier.RegularRule
		if err := rows.Scan(&r.ID, &r.Expression, &r.Enabled, &r.Description,
			&r.SourceTier.ID, &r.SourceTier.Rank, &r.SourceTier.Name,
			&r.TargetTier.ID, &r.TargetTier.Rank, &r.TargetTier.Name); err != nil {
			return nil, tier.NewStorageError(backendSQLite, "query_regular_rules", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, tier.NewStorageError(backendSQLite, "query_regular_rules", err)
	}
	return out, nil
}

func sqliteQueryDirect(ctx context.Context, q querier, where string, args ...any) ([]tier.DirectRule, error) {
	rows, err := q.QueryContext(ctx, directRuleSelect+" "+where, args...)
	if err != nil {
		return nil, tier.NewStorageError(backendSQLite, "query_direct_rules", err)
	}
	defer rows.Close()

	var out []tier.DirectRule
	for rows.Next() {
		var r tier.DirectRule
		var minTier sql.NullInt64
		if err := rows.Scan(&r.ID, &r.Expression, &r.Priority, &r.Enabled, &minTier, &r.Description,
			&r.TargetTier.ID, &r.TargetTier.Rank, &r.TargetTier.Name); err != nil {
			return nil, tier.NewStorageError(backendSQLite, "query_direct_rules", err)
		}
		if minTier.Valid {
			v := int(minTier.Int64)
			r.MinTierRequirement = &v
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, tier.NewStorageError(backendSQLite, "query_direct_rules", err)
	}
	return out, nil
}

// SaveRegularRule validates and stores a regular rule.
func (s *SQLite) SaveRegularRule(ctx context.Context, r tier.RegularRule) (int64, error) {
	var id int64
	err := s.inTx(ctx, "save_regular_rule", func(tx *sql.Tx) error {
		existing, err := sqliteQueryRegular(ctx, tx, "")
		if err != nil {
			return err
		}
		get := func(ctx context.Context, id int64) (*tier.Tier, error) { return sqliteGetTier(ctx, tx, id) }
		r, err = prepareRegular(ctx, get, s.validator, existing, r)
		if err != nil {
			return err
		}

		if r.ID == 0 {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO regular_rules (source_tier_id, target_tier_id, expression, enabled, description)
				VALUES (?, ?, ?, ?, ?)`,
				r.SourceTier.ID, r.TargetTier.ID, r.Expression, r.Enabled, r.Description)
			if err != nil {
				return tier.NewStorageError(backendSQLite, "save_regular_rule", err)
			}
			id, err = res.LastInsertId()
			if err != nil {
				return tier.NewStorageError(backendSQLite, "save_regular_rule", err)
			}
			return nil
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO regular_rules (id, source_tier_id, target_tier_id, expression, enabled, description)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				source_tier_id = excluded.source_tier_id,
				target_tier_id = excluded.target_tier_id,
				expression = excluded.expression,
				enabled = excluded.enabled,
				description = excluded.description`,
			r.ID, r.SourceTier.ID, r.TargetTier.ID, r.Expression, r.Enabled, r.Description)
		if err != nil {
			return tier.NewStorageError(backendSQLite, "save_regular_rule", err)
		}
		id = r.ID
		return nil
	})
	return id, err
}

// SaveDirectRule validates and stores a direct rule.
func (s *SQLite) SaveDirectRule(ctx context.Context, r tier.DirectRule) (int64, error) {
	var id int64
	err := s.inTx(ctx, "save_direct_rule", func(tx *sql.Tx) error {
		existing, err := sqliteQueryDirect(ctx, tx, "")
		if err != nil {
			return err
		}
		get := func(ctx context.Context, id int64) (*tier.Tier, error) { return sqliteGetTier(ctx, tx, id) }
		r, err = prepareDirect(ctx, get, s.validator, existing, r)
		if err != nil {
			return err
		}

		var minTier any
		if r.MinTierRequirement != nil {
			minTier = *r.MinTierRequirement
		}

		if r.ID == 0 {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO direct_rules (target_tier_id, expression, priority, enabled, min_tier_requirement, description)
				VALUES (?, ?, ?, ?, ?, ?)`,
				r.TargetTier.ID, r.Expression, r.Priority, r.Enabled, minTier, r.Description)
			if err != nil {
				return tier.NewStorageError(backendSQLite, "save_direct_rule", err)
			}
			id, err = res.LastInsertId()
			if err != nil {
				return tier.NewStorageError(backendSQLite, "save_direct_rule", err)
			}
			return nil
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO direct_rules (id, target_tier_id, expression, priority, enabled, min_tier_requirement, description)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				target_tier_id = excluded.target_tier_id,
				expression = excluded.expression,
				priority = excluded.priority,
				enabled = excluded.enabled,
				min_tier_requirement = excluded.min_tier_requirement,
				description = excluded.description`,
			r.ID, r.TargetTier.ID, r.Expression, r.Priority, r.Enabled, minTier, r.Description)
		if err != nil {
			return tier.NewStorageError(backendSQLite, "save_direct_rule", err)
		}
		id = r.ID
		return nil
	})
	return id, err
}

// ListRegularRules returns all regular rules by ID.
func (s *SQLite) ListRegularRules(ctx context.Context) ([]tier.RegularRule, error) {
	return sqliteQueryRegular(ctx, s.db, "ORDER BY r.id")
}

// ListDirectRules returns all direct rules by ID.
func (s *SQLite) ListDirectRules(ctx context.Context) ([]tier.DirectRule, error) {
	return sqliteQueryDirect(ctx, s.db, "ORDER BY r.id")
}

// RegularRuleFor implements tier.RuleStore.
func (s *SQLite) RegularRuleFor(ctx context.Context, sourceTierID int64) (*tier.RegularRule, error) {
	rules, err := sqliteQueryRegular(ctx, s.db, "WHERE r.source_tier_id = ? AND r.enabled = 1 LIMIT 1", sourceTierID)
	if err != nil || len(rules) == 0 {
		return nil, err
	}
	return &rules[0], nil
}

// EligibleDirectRulesFor implements tier.RuleStore.
func (s *SQLite) EligibleDirectRulesFor(ctx context.Context, current tier.Tier) ([]tier.DirectRule, error) {
	return sqliteQueryDirect(ctx, s.db, `
		WHERE r.enabled = 1
		  AND t.rank > ?
		  AND (r.min_tier_requirement IS NULL OR r.min_tier_requirement <= ?)
		ORDER BY r.priority DESC, t.rank DESC, r.id ASC`,
		current.Rank, current.Rank)
}

// CreateDistributor implements Store.
func (s *SQLite) CreateDistributor(ctx context.Context, id, tierID int64) error {
	return s.inTx(ctx, "create_distributor", func(tx *sql.Tx) error {
		if _, err := sqliteGetTier(ctx, tx, tierID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO distributors (id, tier_id, version, updated_at) VALUES (?, ?, 1, ?)`,
			id, tierID, s.now().UnixNano()); err != nil {
			return tier.NewStorageError(backendSQLite, "create_distributor", err)
		}
		return nil
	})
}

// GetDistributor implements tier.DistributorStore.
func (s *SQLite) GetDistributor(ctx context.Context, id int64) (*tier.Distributor, error) {
	var d tier.Distributor
	var updated int64
	err := s.db.QueryRowContext(ctx, `
		SELECT d.id, d.version, d.updated_at, t.id, t.rank, t.name
		FROM distributors d JOIN tiers t ON t.id = d.tier_id
		WHERE d.id = ?`, id).Scan(&d.ID, &d.Version, &updated, &d.Tier.ID, &d.Tier.Rank, &d.Tier.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tier.NewNotFoundError("distributor", id)
	}
	if err != nil {
		return nil, tier.NewStorageError(backendSQLite, "get_distributor", err)
	}
	d.UpdatedAt = time.Unix(0, updated).UTC()
	return &d, nil
}

// ListDistributorIDs implements tier.DistributorStore.
func (s *SQLite) ListDistributorIDs(ctx context.Context, q tier.DistributorQuery) ([]int64, error) {
	query := `SELECT id FROM distributors WHERE id > ?`
	args := []any{q.AfterID}
	if q.TierID != 0 {
		query += ` AND tier_id = ?`
		args = append(args, q.TierID)
	}
	query += ` ORDER BY id`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, tier.NewStorageError(backendSQLite, "list_distributors", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, tier.NewStorageError(backendSQLite, "list_distributors", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, tier.NewStorageError(backendSQLite, "list_distributors", err)
	}
	return ids, nil
}

// PutMetrics implements Store.
func (s *SQLite) PutMetrics(ctx context.Context, distributorID int64, values map[string]float64) error {
	return s.inTx(ctx, "put_metrics", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM distributor_metrics WHERE distributor_id = ?`, distributorID); err != nil {
			return tier.NewStorageError(backendSQLite, "put_metrics", err)
		}
		for name, value := range values {
			if _, err := tx.ExecContext(ctx, `INSERT INTO distributor_metrics (distributor_id, name, value) VALUES (?, ?, ?)`,
				distributorID, name, value); err != nil {
				return tier.NewStorageError(backendSQLite, "put_metrics", err)
			}
		}
		return nil
	})
}

// GetMetrics implements Store.
func (s *SQLite) GetMetrics(ctx context.Context, distributorID int64) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, value FROM distributor_metrics WHERE distributor_id = ?`, distributorID)
	if err != nil {
		return nil, tier.NewStorageError(backendSQLite, "get_metrics", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var name string
		var value float64
		if err := rows.Scan(&name, &value); err != nil {
			return nil, tier.NewStorageError(backendSQLite, "get_metrics", err)
		}
		out[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, tier.NewStorageError(backendSQLite, "get_metrics", err)
	}
	return out, nil
}

// ApplyTransition implements tier.TransitionStore.
func (s *SQLite) ApplyTransition(ctx context.Context, t tier.Transition, record *tier.HistoryRecord) error {
	snapshot, err := json.Marshal(record.Snapshot)
	if err != nil {
		return tier.NewStorageError(backendSQLite, "encode_snapshot", err)
	}

	return s.inTx(ctx, "apply_transition", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE distributors
			SET tier_id = ?, version = version + 1, updated_at = ?
			WHERE id = ? AND version = ? AND tier_id = ?`,
			t.NewTier.ID, s.now().UnixNano(), t.DistributorID, t.ExpectedVersion, t.PreviousTier.ID)
		if err != nil {
			return tier.NewStorageError(backendSQLite, "update_distributor", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return tier.NewStorageError(backendSQLite, "update_distributor", err)
		}
		if n == 0 {
			return sqliteGuardFailure(ctx, tx, t)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO upgrade_history (
				id, distributor_id,
				previous_tier_id, previous_tier_rank, previous_tier_name,
				new_tier_id, new_tier_rank, new_tier_name,
				rule_kind, rule_id, satisfied_expression, context_snapshot,
				occurred_at, trigger_kind, triggering_reference, operator
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			record.ID, record.DistributorID,
			record.PreviousTier.ID, record.PreviousTier.Rank, record.PreviousTier.Name,
			record.NewTier.ID, record.NewTier.Rank, record.NewTier.Name,
			string(record.RuleKind), record.RuleID, record.SatisfiedExpression, string(snapshot),
			record.OccurredAt.UnixNano(), string(record.TriggerKind), record.TriggeringReference, record.Operator)
		if err != nil {
			return tier.NewStorageError(backendSQLite, "insert_history", err)
		}
		return nil
	})
}

// sqliteGuardFailure tells a missing distributor apart from a lost race.
func sqliteGuardFailure(ctx context.Context, tx *sql.Tx, t tier.Transition) error {
	var version int64
	err := tx.QueryRowContext(ctx, `SELECT version FROM distributors WHERE id = ?`, t.DistributorID).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return tier.NewStorageError(backendSQLite, "update_distributor", tier.NewNotFoundError("distributor", t.DistributorID))
	}
	if err != nil {
		return tier.NewStorageError(backendSQLite, "update_distributor", err)
	}
	return fmt.Errorf("distributor %d at version %d, expected %d: %w", t.DistributorID, version, t.ExpectedVersion, tier.ErrVersionConflict)
}

func sqliteScanHistory(row interface{ Scan(dest ...any) error }) (*tier.HistoryRecord, error) {
	var h tier.HistoryRecord
	var ruleKind, triggerKind string
	var snapshot []byte
	var occurred int64
	if err := row.Scan(&h.ID, &h.DistributorID,
		&h.PreviousTier.ID, &h.PreviousTier.Rank, &h.PreviousTier.Name,
		&h.NewTier.ID, &h.NewTier.Rank, &h.NewTier.Name,
		&ruleKind, &h.RuleID, &h.SatisfiedExpression, &snapshot,
		&occurred, &triggerKind, &h.TriggeringReference, &h.Operator); err != nil {
		return nil, err
	}
	h.RuleKind = tier.RuleKind(ruleKind)
	h.TriggerKind = tier.TriggerKind(triggerKind)
	h.OccurredAt = time.Unix(0, occurred).UTC()
	if err := json.Unmarshal(snapshot, &h.Snapshot); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &h, nil
}

func (s *SQLite) queryHistory(ctx context.Context, op, where string, args ...any) ([]*tier.HistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+historyColumns+" FROM upgrade_history h "+where, args...)
	if err != nil {
		return nil, tier.NewStorageError(backendSQLite, op, err)
	}
	defer rows.Close()

	var out []*tier.HistoryRecord
	for rows.Next() {
		h, err := sqliteScanHistory(rows)
		if err != nil {
			return nil, tier.NewStorageError(backendSQLite, op, err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, tier.NewStorageError(backendSQLite, op, err)
	}
	return out, nil
}

// GetHistory implements tier.HistoryStore.
func (s *SQLite) GetHistory(ctx context.Context, id string) (*tier.HistoryRecord, error) {
	h, err := sqliteScanHistory(s.db.QueryRowContext(ctx, "SELECT "+historyColumns+" FROM upgrade_history h WHERE h.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tier.NewNotFoundError("history", id)
	}
	if err != nil {
		return nil, tier.NewStorageError(backendSQLite, "get_history", err)
	}
	return h, nil
}

// HistoryByDistributor implements tier.HistoryStore.
func (s *SQLite) HistoryByDistributor(ctx context.Context, distributorID int64, limit int) ([]*tier.HistoryRecord, error) {
	return s.queryHistory(ctx, "history_by_distributor",
		"WHERE h.distributor_id = ? ORDER BY h.occurred_at DESC, h.rowid DESC LIMIT ?",
		distributorID, normalizeLimit(limit, DefaultHistoryLimit))
}

// QueryHistory implements tier.HistoryStore.
func (s *SQLite) QueryHistory(ctx context.Context, q tier.HistoryQuery) ([]*tier.HistoryRecord, error) {
	var conds []string
	var args []any
	if q.StartTime != nil {
		conds = append(conds, "h.occurred_at >= ?")
		args = append(args, q.StartTime.UnixNano())
	}
	if q.EndTime != nil {
		conds = append(conds, "h.occurred_at <= ?")
		args = append(args, q.EndTime.UnixNano())
	}
	if q.DistributorID != 0 {
		conds = append(conds, "h.distributor_id = ?")
		args = append(args, q.DistributorID)
	}
	if q.TriggerKind != "" {
		conds = append(conds, "h.trigger_kind = ?")
		args = append(args, string(q.TriggerKind))
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}
	where += " ORDER BY h.occurred_at ASC, h.rowid ASC"
	if q.Limit > 0 || q.Offset > 0 {
		limit := q.Limit
		if limit <= 0 {
			limit = -1
		}
		where += " LIMIT ? OFFSET ?"
		args = append(args, limit, q.Offset)
	}
	return s.queryHistory(ctx, "query_history", where, args...)
}

// CountHistory implements tier.HistoryStore.
func (s *SQLite) CountHistory(ctx context.Context, start, end time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM upgrade_history WHERE occurred_at BETWEEN ? AND ?`,
		start.UnixNano(), end.UnixNano()).Scan(&n)
	if err != nil {
		return 0, tier.NewStorageError(backendSQLite, "count_history", err)
	}
	return n, nil
}

// MarkManual implements tier.HistoryStore.
func (s *SQLite) MarkManual(ctx context.Context, id string, operator string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE upgrade_history SET trigger_kind = ?, operator = ? WHERE id = ?`,
		string(tier.TriggerManual), operator, id)
	if err != nil {
		return tier.NewStorageError(backendSQLite, "mark_manual", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return tier.NewStorageError(backendSQLite, "mark_manual", err)
	}
	if n == 0 {
		return tier.NewNotFoundError("history", id)
	}
	return nil
}

// Ping checks the database connection.
func (s *SQLite) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return tier.NewStorageError(backendSQLite, "ping", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
