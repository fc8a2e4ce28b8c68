// Package config loads and validates the upgrade engine configuration.
//
// Configuration is read from YAML, then environment variables named
// ASCENT_SECTION_FIELD override individual fields:
//
//   - ASCENT_STORAGE_BACKEND overrides storage.backend
//   - ASCENT_STORAGE_POSTGRES_DSN overrides storage.postgres.dsn
//   - ASCENT_TRIGGER_KAFKA_BROKERS overrides trigger.kafka.brokers (comma separated)
//   - ASCENT_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// Precedence, lowest first:
//
//  1. Defaults (defaults.go)
//  2. The YAML file
//  3. Environment overrides
//
// Validation runs last and reports every invalid field at once as a
// ValidationError.
//
// A minimal file:
//
//	storage:
//	  backend: sqlite
//	  sqlite:
//	    path: data/ascent.db
//	rules:
//	  file: rules.yaml
//	  watch: true
//	sweep:
//	  enabled: true
//	  schedule: "0 2 * * *"
//	authz:
//	  bindings:
//	    - operator: alice
//	      role: upgrade_operator
//
// Long-running commands call Initialize once and read the result with
// GetConfig. Library code takes a *Config or one of its sections.
package config
