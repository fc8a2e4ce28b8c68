// Package telemetry groups the observability packages of the upgrade engine.
//
//   - logging: slog construction, context fields and secret redaction
//   - metrics: Prometheus collector for resolutions, triggers and sweeps
//   - tracing: OpenTelemetry spans exported over OTLP/gRPC
//   - health: liveness and readiness probes
package telemetry
