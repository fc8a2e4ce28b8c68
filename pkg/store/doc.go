// Package store persists tiers, rules, distributors, metric aggregates and
// upgrade history.
//
// Three backends implement Store:
//
//   - Memory: in-process maps, used by tests and the inline CLI mode
//   - SQLite: database/sql with either the pure-Go modernc.org/sqlite driver
//     ("sqlite", the default) or the cgo github.com/mattn/go-sqlite3 driver
//     ("sqlite3")
//   - Postgres: github.com/jackc/pgx/v5 connection pool
//
// All backends apply a transition atomically: the guarded tier update and
// the history insert commit together or not at all. Rule writes are checked
// before they are stored: an enabled rule must carry a valid expression,
// and at most one enabled regular rule per source tier and one enabled
// direct rule per target tier may exist.
package store
