package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "ASCENT_"

// LoadConfig loads configuration from a YAML file at the specified path.
// Fields absent from the file keep their defaults. The result is validated.
// Environment variables are not consulted; use LoadConfigWithEnvOverrides.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}
	return Parse(data, path)
}

// Parse decodes YAML configuration. name is used in error messages.
func Parse(data []byte, name string) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", name, err)
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides named ASCENT_SECTION_FIELD, for example
// ASCENT_STORAGE_BACKEND. Environment variables take precedence over the
// file. An empty path loads defaults only.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	var (
		cfg *Config
		err error
	)
	if path == "" {
		cfg = Default()
	} else if cfg, err = LoadConfig(path); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg, os.LookupEnv)
	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}
	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

// envReader applies typed overrides. Malformed values are ignored and the
// existing value is kept.
type envReader struct {
	lookup lookupFunc
}

func (e envReader) get(key string) (string, bool) {
	val, ok := e.lookup(EnvPrefix + key)
	if !ok || val == "" {
		return "", false
	}
	return val, true
}

func (e envReader) str(key string, dst *string) {
	if val, ok := e.get(key); ok {
		*dst = val
	}
}

func (e envReader) strs(key string, dst *[]string) {
	val, ok := e.get(key)
	if !ok {
		return
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

func (e envReader) integer(key string, dst *int) {
	if val, ok := e.get(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func (e envReader) integer64(key string, dst *int64) {
	if val, ok := e.get(key); ok {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			*dst = i
		}
	}
}

func (e envReader) integer32(key string, dst *int32) {
	if val, ok := e.get(key); ok {
		if i, err := strconv.ParseInt(val, 10, 32); err == nil {
			*dst = int32(i)
		}
	}
}

func (e envReader) boolean(key string, dst *bool) {
	if val, ok := e.get(key); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func (e envReader) duration(key string, dst *time.Duration) {
	if val, ok := e.get(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}

func applyEnvOverrides(cfg *Config, lookup lookupFunc) {
	env := envReader{lookup: lookup}

	env.str("SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	env.duration("SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	env.duration("SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	env.duration("SERVER_IDLE_TIMEOUT", &cfg.Server.IdleTimeout)
	env.duration("SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	env.str("STORAGE_BACKEND", &cfg.Storage.Backend)
	env.str("STORAGE_SQLITE_PATH", &cfg.Storage.SQLite.Path)
	env.str("STORAGE_SQLITE_DRIVER", &cfg.Storage.SQLite.Driver)
	env.integer("STORAGE_SQLITE_MAX_OPEN_CONNS", &cfg.Storage.SQLite.MaxOpenConns)
	env.str("STORAGE_SQLITE_JOURNAL_MODE", &cfg.Storage.SQLite.JournalMode)
	env.duration("STORAGE_SQLITE_BUSY_TIMEOUT", &cfg.Storage.SQLite.BusyTimeout)
	env.str("STORAGE_POSTGRES_DSN", &cfg.Storage.Postgres.DSN)
	env.integer32("STORAGE_POSTGRES_MAX_CONNS", &cfg.Storage.Postgres.MaxConns)

	env.str("RULES_FILE", &cfg.Rules.File)
	env.boolean("RULES_WATCH", &cfg.Rules.Watch)
	env.duration("RULES_DEBOUNCE", &cfg.Rules.Debounce)

	env.integer("ENGINE_CACHE_SIZE", &cfg.Engine.CacheSize)

	env.str("TRIGGER_BACKEND", &cfg.Trigger.Backend)
	env.integer("TRIGGER_MAX_ATTEMPTS", &cfg.Trigger.MaxAttempts)
	env.strs("TRIGGER_KAFKA_BROKERS", &cfg.Trigger.Kafka.Brokers)
	env.str("TRIGGER_KAFKA_TOPIC", &cfg.Trigger.Kafka.Topic)
	env.str("TRIGGER_KAFKA_GROUP_ID", &cfg.Trigger.Kafka.GroupID)
	env.duration("TRIGGER_KAFKA_WRITE_TIMEOUT", &cfg.Trigger.Kafka.WriteTimeout)

	env.boolean("SWEEP_ENABLED", &cfg.Sweep.Enabled)
	env.str("SWEEP_SCHEDULE", &cfg.Sweep.Schedule)
	env.integer("SWEEP_BATCH_SIZE", &cfg.Sweep.BatchSize)
	env.integer("SWEEP_CONCURRENCY", &cfg.Sweep.Concurrency)
	env.duration("SWEEP_DEBOUNCE", &cfg.Sweep.Debounce)
	env.integer64("SWEEP_TIER_ID", &cfg.Sweep.TierID)

	env.duration("MANUAL_TICKET_TTL", &cfg.Manual.TicketTTL)

	env.boolean("AUTHZ_ENABLED", &cfg.Authz.Enabled)

	env.str("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	env.str("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	env.boolean("TELEMETRY_LOGGING_ADD_SOURCE", &cfg.Telemetry.Logging.AddSource)
	env.boolean("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	env.str("TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)
	env.str("TELEMETRY_METRICS_NAMESPACE", &cfg.Telemetry.Metrics.Namespace)
	env.boolean("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	env.str("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
}
