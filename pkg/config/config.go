package config

import "time"

// Config is the root configuration structure for the upgrade engine.
// It contains all configuration sections required to run the service.
type Config struct {
	// Server contains configuration for the HTTP admin API.
	Server ServerConfig `yaml:"server"`

	// Storage selects and configures the persistence backend.
	Storage StorageConfig `yaml:"storage"`

	// Rules configures the rules file used to seed tiers and rules.
	Rules RulesConfig `yaml:"rules"`

	// Engine contains expression evaluator settings.
	Engine EngineConfig `yaml:"engine"`

	// Trigger configures how check messages are delivered.
	Trigger TriggerConfig `yaml:"trigger"`

	// Sweep configures the periodic batch check.
	Sweep SweepConfig `yaml:"sweep"`

	// Manual configures the operator check-then-confirm flow.
	Manual ManualConfig `yaml:"manual"`

	// Authz configures which operators may run manual upgrades.
	Authz AuthzConfig `yaml:"authz"`

	// Telemetry contains logging and metrics configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP admin API.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 15s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response.
	// Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum time to wait for the next request when
	// keep-alives are enabled.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StorageConfig selects the storage backend.
type StorageConfig struct {
	// Backend is "sqlite", "postgres" or "memory".
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig contains configuration for the SQLite backend.
type SQLiteConfig struct {
	// Path is the database file path.
	// Default: "data/ascent.db"
	Path string `yaml:"path"`

	// Driver is "sqlite" (modernc.org/sqlite) or "sqlite3" (mattn/go-sqlite3).
	// Default: "sqlite"
	Driver string `yaml:"driver"`

	// MaxOpenConns is the maximum number of open connections.
	// Default: 1
	MaxOpenConns int `yaml:"max_open_conns"`

	// JournalMode is "wal" or "delete".
	// Default: "wal"
	JournalMode string `yaml:"journal_mode"`

	// BusyTimeout is how long to wait when the database is locked.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// PostgresConfig contains configuration for the PostgreSQL backend.
type PostgresConfig struct {
	// DSN is a connection string or URL. Required when backend is postgres.
	DSN string `yaml:"dsn"`

	// MaxConns caps the connection pool. Zero keeps the driver default.
	MaxConns int32 `yaml:"max_conns"`
}

// RulesConfig configures the rules file.
type RulesConfig struct {
	// File is the YAML rules file applied at startup. Empty disables it.
	File string `yaml:"file"`

	// Watch reapplies the file when it changes.
	// Default: false
	Watch bool `yaml:"watch"`

	// Debounce groups bursts of file events into one reload.
	// Default: 100ms
	Debounce time.Duration `yaml:"debounce"`
}

// EngineConfig contains expression evaluator settings.
type EngineConfig struct {
	// CacheSize is the number of parsed expressions kept in memory.
	// Default: 256
	CacheSize int `yaml:"cache_size"`
}

// TriggerConfig configures check message delivery.
type TriggerConfig struct {
	// Backend is "inline" (handled in process) or "kafka".
	// Default: "inline"
	Backend string `yaml:"backend"`

	// MaxAttempts bounds re-resolution after concurrency conflicts.
	// Default: 3
	MaxAttempts int `yaml:"max_attempts"`

	Kafka KafkaConfig `yaml:"kafka"`
}

// KafkaConfig contains Kafka connection settings.
type KafkaConfig struct {
	// Brokers is the list of bootstrap brokers.
	Brokers []string `yaml:"brokers"`

	// Topic carries distributor check messages.
	// Default: "distributor-upgrade-check"
	Topic string `yaml:"topic"`

	// GroupID is the consumer group.
	// Default: "ascent"
	GroupID string `yaml:"group_id"`

	// WriteTimeout bounds a single publish.
	// Default: 10s
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// SweepConfig configures the periodic batch check.
type SweepConfig struct {
	// Enabled turns on the scheduled sweep.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Schedule is a cron expression.
	// Default: "0 2 * * *"
	Schedule string `yaml:"schedule"`

	// BatchSize is the page size used when listing distributors.
	// Default: 1000
	BatchSize int `yaml:"batch_size"`

	// Concurrency bounds parallel dispatches.
	// Default: 8
	Concurrency int `yaml:"concurrency"`

	// Debounce is the minimum interval between two sweeps.
	// Default: 5s
	Debounce time.Duration `yaml:"debounce"`

	// TierID limits the sweep to one tier. Zero sweeps every tier.
	TierID int64 `yaml:"tier_id"`
}

// ManualConfig configures the manual upgrade flow.
type ManualConfig struct {
	// TicketTTL is how long a check result stays confirmable.
	// Default: 30m
	TicketTTL time.Duration `yaml:"ticket_ttl"`
}

// AuthzConfig configures manual upgrade authorization.
type AuthzConfig struct {
	// Enabled turns on role checks. When false every operator is allowed.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Bindings grant roles to operators.
	Bindings []RoleBinding `yaml:"bindings"`
}

// RoleBinding assigns a role to an operator.
type RoleBinding struct {
	Operator string `yaml:"operator"`
	Role     string `yaml:"role"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether the metrics endpoint is served.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "ascent"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem name. Empty by default.
	Subsystem string `yaml:"subsystem"`

	// ResolutionDurationBuckets defines histogram buckets for resolution
	// duration (seconds).
	// Default: [0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5]
	ResolutionDurationBuckets []float64 `yaml:"resolution_duration_buckets"`

	// SweepDurationBuckets defines histogram buckets for sweep duration
	// (seconds).
	// Default: [1, 5, 15, 60, 300, 900, 3600]
	SweepDurationBuckets []float64 `yaml:"sweep_duration_buckets"`
}

// TracingConfig contains OpenTelemetry tracing configuration.
type TracingConfig struct {
	// Enabled turns on span export.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector address (host:port).
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS to the collector.
	Insecure bool `yaml:"insecure"`

	// ServiceName is reported as the service.name resource attribute.
	// Default: "ascent"
	ServiceName string `yaml:"service_name"`

	// Sampler is "always", "never" or "ratio".
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of root spans sampled by the ratio sampler.
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`
}
