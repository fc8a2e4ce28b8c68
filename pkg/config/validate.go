package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "storage.backend").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d errors:\n", len(e.Errors))
	for _, err := range e.Errors {
		fmt.Fprintf(&sb, "  - %s\n", err.Error())
	}
	return sb.String()
}

// Validate checks the whole configuration and returns a ValidationError
// listing every problem found, or nil.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateTrigger(&cfg.Trigger)...)
	errs = append(errs, validateSweep(&cfg.Sweep)...)
	errs = append(errs, validateAuthz(&cfg.Authz)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if cfg.Engine.CacheSize < 0 {
		errs = append(errs, FieldError{Field: "engine.cache_size", Message: "cache size must be non-negative"})
	}
	if cfg.Manual.TicketTTL < 0 {
		errs = append(errs, FieldError{Field: "manual.ticket_ttl", Message: "ticket TTL must be positive"})
	}
	if cfg.Rules.Watch && cfg.Rules.File == "" {
		errs = append(errs, FieldError{Field: "rules.watch", Message: "watching requires rules.file"})
	}

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{Field: "server.listen_address", Message: "listen address is required"})
	} else if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: fmt.Sprintf("invalid listen address %q: %v", cfg.ListenAddress, err),
		})
	}

	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.read_timeout", Message: "read timeout must be positive"})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.write_timeout", Message: "write timeout must be positive"})
	}
	if cfg.IdleTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.idle_timeout", Message: "idle timeout must be positive"})
	}
	if cfg.ShutdownTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.shutdown_timeout", Message: "shutdown timeout must be positive"})
	}
	return errs
}

func validateStorage(cfg *StorageConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory":
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{Field: "storage.sqlite.path", Message: "path is required for the sqlite backend"})
		}
		if cfg.SQLite.Driver != "sqlite" && cfg.SQLite.Driver != "sqlite3" {
			errs = append(errs, FieldError{
				Field:   "storage.sqlite.driver",
				Message: fmt.Sprintf("invalid driver %q (must be sqlite or sqlite3)", cfg.SQLite.Driver),
			})
		}
		if cfg.SQLite.MaxOpenConns < 0 {
			errs = append(errs, FieldError{Field: "storage.sqlite.max_open_conns", Message: "max open connections must be non-negative"})
		}
		if mode := strings.ToLower(cfg.SQLite.JournalMode); mode != "wal" && mode != "delete" {
			errs = append(errs, FieldError{
				Field:   "storage.sqlite.journal_mode",
				Message: fmt.Sprintf("invalid journal mode %q (must be wal or delete)", cfg.SQLite.JournalMode),
			})
		}
		if cfg.SQLite.BusyTimeout < 0 {
			errs = append(errs, FieldError{Field: "storage.sqlite.busy_timeout", Message: "busy timeout must be positive"})
		}
	case "postgres":
		if cfg.Postgres.DSN == "" {
			errs = append(errs, FieldError{Field: "storage.postgres.dsn", Message: "dsn is required for the postgres backend"})
		}
		if cfg.Postgres.MaxConns < 0 {
			errs = append(errs, FieldError{Field: "storage.postgres.max_conns", Message: "max connections must be non-negative"})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("invalid backend %q (must be sqlite, postgres or memory)", cfg.Backend),
		})
	}
	return errs
}

func validateTrigger(cfg *TriggerConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "inline":
	case "kafka":
		if len(cfg.Kafka.Brokers) == 0 {
			errs = append(errs, FieldError{Field: "trigger.kafka.brokers", Message: "at least one broker is required for the kafka backend"})
		}
		if cfg.Kafka.Topic == "" {
			errs = append(errs, FieldError{Field: "trigger.kafka.topic", Message: "topic is required"})
		}
		if cfg.Kafka.GroupID == "" {
			errs = append(errs, FieldError{Field: "trigger.kafka.group_id", Message: "group id is required"})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "trigger.backend",
			Message: fmt.Sprintf("invalid backend %q (must be inline or kafka)", cfg.Backend),
		})
	}

	if cfg.MaxAttempts < 1 {
		errs = append(errs, FieldError{Field: "trigger.max_attempts", Message: "max attempts must be at least 1"})
	}
	return errs
}

func validateSweep(cfg *SweepConfig) []FieldError {
	var errs []FieldError

	if cfg.Enabled {
		if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "sweep.schedule",
				Message: fmt.Sprintf("invalid cron expression %q: %v", cfg.Schedule, err),
			})
		}
	}
	if cfg.BatchSize < 1 {
		errs = append(errs, FieldError{Field: "sweep.batch_size", Message: "batch size must be at least 1"})
	}
	if cfg.Concurrency < 1 {
		errs = append(errs, FieldError{Field: "sweep.concurrency", Message: "concurrency must be at least 1"})
	}
	if cfg.Debounce < 0 {
		errs = append(errs, FieldError{Field: "sweep.debounce", Message: "debounce must be positive"})
	}
	if cfg.TierID < 0 {
		errs = append(errs, FieldError{Field: "sweep.tier_id", Message: "tier id must be non-negative"})
	}
	return errs
}

func validateAuthz(cfg *AuthzConfig) []FieldError {
	var errs []FieldError
	for i, b := range cfg.Bindings {
		if b.Operator == "" {
			errs = append(errs, FieldError{Field: fmt.Sprintf("authz.bindings[%d].operator", i), Message: "operator is required"})
		}
		if b.Role == "" {
			errs = append(errs, FieldError{Field: fmt.Sprintf("authz.bindings[%d].role", i), Message: "role is required"})
		}
	}
	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid log level %q (must be debug, info, warn or error)", cfg.Logging.Level),
		})
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid log format %q (must be json or text)", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{Field: "telemetry.metrics.path", Message: "path must start with /"})
	}
	errs = append(errs, validateBuckets("telemetry.metrics.resolution_duration_buckets", cfg.Metrics.ResolutionDurationBuckets)...)
	errs = append(errs, validateBuckets("telemetry.metrics.sweep_duration_buckets", cfg.Metrics.SweepDurationBuckets)...)

	switch cfg.Tracing.Sampler {
	case "always", "never", "ratio":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sampler",
			Message: fmt.Sprintf("invalid sampler %q (must be always, never or ratio)", cfg.Tracing.Sampler),
		})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errs = append(errs, FieldError{Field: "telemetry.tracing.sample_ratio", Message: "sample ratio must be between 0 and 1"})
	}
	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{Field: "telemetry.tracing.endpoint", Message: "endpoint is required when tracing is enabled"})
	}
	return errs
}

func validateBuckets(field string, buckets []float64) []FieldError {
	for i := 1; i < len(buckets); i++ {
		if buckets[i] <= buckets[i-1] {
			return []FieldError{{Field: field, Message: "buckets must be strictly increasing"}}
		}
	}
	return nil
}
