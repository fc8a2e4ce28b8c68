// Package tracing configures OpenTelemetry span export.
//
// New installs the tracer provider and the W3C propagators globally, so
// engine packages obtain tracers with otel.Tracer and need no reference to
// this package. When tracing is disabled the global provider stays a no-op.
//
//	tracer, err := tracing.New(ctx, &cfg.Telemetry.Tracing)
//	if err != nil {
//		return err
//	}
//	defer tracer.Shutdown(context.Background())
package tracing
