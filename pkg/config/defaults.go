package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	// Storage defaults
	DefaultStorageBackend     = "sqlite"
	DefaultSQLitePath         = "data/ascent.db"
	DefaultSQLiteDriver       = "sqlite"
	DefaultSQLiteMaxOpenConns = 1
	DefaultSQLiteJournalMode  = "wal"
	DefaultSQLiteBusyTimeout  = 5 * time.Second

	// Rules defaults
	DefaultRulesDebounce = 100 * time.Millisecond

	// Engine defaults
	DefaultEngineCacheSize = 256

	// Trigger defaults
	DefaultTriggerBackend     = "inline"
	DefaultTriggerMaxAttempts = 3
	DefaultKafkaTopic         = "distributor-upgrade-check"
	DefaultKafkaGroupID       = "ascent"
	DefaultKafkaWriteTimeout  = 10 * time.Second

	// Sweep defaults
	DefaultSweepSchedule    = "0 2 * * *"
	DefaultSweepBatchSize   = 1000
	DefaultSweepConcurrency = 8
	DefaultSweepDebounce    = 5 * time.Second

	// Manual defaults
	DefaultManualTicketTTL = 30 * time.Minute

	// Telemetry defaults
	DefaultLoggingLevel     = "info"
	DefaultLoggingFormat    = "json"
	DefaultMetricsPath      = "/metrics"
	DefaultMetricsNamespace = "ascent"
	DefaultTracingEndpoint  = "localhost:4317"
	DefaultTracingService   = "ascent"
	DefaultTracingSampler   = "ratio"
	DefaultTracingRatio     = 1.0
)

var (
	defaultResolutionBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}
	defaultSweepBuckets      = []float64{1, 5, 15, 60, 300, 900, 3600}
)

// Default returns a configuration with every field set to its default.
// Boolean switches that default to true are set here, so a YAML file that
// sets them to false keeps them false.
func Default() *Config {
	cfg := &Config{}
	cfg.Authz.Enabled = true
	cfg.Telemetry.Metrics.Enabled = true
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills in zero-valued fields with their defaults.
func ApplyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)
	applyStorageDefaults(&cfg.Storage)

	if cfg.Rules.Debounce == 0 {
		cfg.Rules.Debounce = DefaultRulesDebounce
	}
	if cfg.Engine.CacheSize == 0 {
		cfg.Engine.CacheSize = DefaultEngineCacheSize
	}

	applyTriggerDefaults(&cfg.Trigger)
	applySweepDefaults(&cfg.Sweep)

	if cfg.Manual.TicketTTL == 0 {
		cfg.Manual.TicketTTL = DefaultManualTicketTTL
	}

	applyTelemetryDefaults(&cfg.Telemetry)
}

func applyServerDefaults(s *ServerConfig) {
	if s.ListenAddress == "" {
		s.ListenAddress = DefaultListenAddress
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = DefaultReadTimeout
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.IdleTimeout == 0 {
		s.IdleTimeout = DefaultIdleTimeout
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = DefaultShutdownTimeout
	}
}

func applyStorageDefaults(s *StorageConfig) {
	if s.Backend == "" {
		s.Backend = DefaultStorageBackend
	}
	if s.SQLite.Path == "" {
		s.SQLite.Path = DefaultSQLitePath
	}
	if s.SQLite.Driver == "" {
		s.SQLite.Driver = DefaultSQLiteDriver
	}
	if s.SQLite.MaxOpenConns == 0 {
		s.SQLite.MaxOpenConns = DefaultSQLiteMaxOpenConns
	}
	if s.SQLite.JournalMode == "" {
		s.SQLite.JournalMode = DefaultSQLiteJournalMode
	}
	if s.SQLite.BusyTimeout == 0 {
		s.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}
}

func applyTriggerDefaults(t *TriggerConfig) {
	if t.Backend == "" {
		t.Backend = DefaultTriggerBackend
	}
	if t.MaxAttempts == 0 {
		t.MaxAttempts = DefaultTriggerMaxAttempts
	}
	if t.Kafka.Topic == "" {
		t.Kafka.Topic = DefaultKafkaTopic
	}
	if t.Kafka.GroupID == "" {
		t.Kafka.GroupID = DefaultKafkaGroupID
	}
	if t.Kafka.WriteTimeout == 0 {
		t.Kafka.WriteTimeout = DefaultKafkaWriteTimeout
	}
}

func applySweepDefaults(s *SweepConfig) {
	if s.Schedule == "" {
		s.Schedule = DefaultSweepSchedule
	}
	if s.BatchSize == 0 {
		s.BatchSize = DefaultSweepBatchSize
	}
	if s.Concurrency == 0 {
		s.Concurrency = DefaultSweepConcurrency
	}
	if s.Debounce == 0 {
		s.Debounce = DefaultSweepDebounce
	}
}

func applyTelemetryDefaults(t *TelemetryConfig) {
	if t.Logging.Level == "" {
		t.Logging.Level = DefaultLoggingLevel
	}
	if t.Logging.Format == "" {
		t.Logging.Format = DefaultLoggingFormat
	}
	if t.Metrics.Path == "" {
		t.Metrics.Path = DefaultMetricsPath
	}
	if t.Metrics.Namespace == "" {
		t.Metrics.Namespace = DefaultMetricsNamespace
	}
	if len(t.Metrics.ResolutionDurationBuckets) == 0 {
		t.Metrics.ResolutionDurationBuckets = append([]float64(nil), defaultResolutionBuckets...)
	}
	if len(t.Metrics.SweepDurationBuckets) == 0 {
		t.Metrics.SweepDurationBuckets = append([]float64(nil), defaultSweepBuckets...)
	}
	if t.Tracing.Endpoint == "" {
		t.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if t.Tracing.ServiceName == "" {
		t.Tracing.ServiceName = DefaultTracingService
	}
	if t.Tracing.Sampler == "" {
		t.Tracing.Sampler = DefaultTracingSampler
	}
	if t.Tracing.SampleRatio == 0 {
		t.Tracing.SampleRatio = DefaultTracingRatio
	}
}
