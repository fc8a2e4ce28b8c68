package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"mercator-hq/ascent/pkg/config"
)

func TestNew_Disabled(t *testing.T) {
	tr, err := New(context.Background(), &config.TracingConfig{Enabled: false})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if tr.Enabled() {
		t.Error("expected disabled tracer")
	}

	ctx, span := tr.Start(context.Background(), "noop")
	End(span, nil)
	if TraceID(ctx) != "" {
		t.Error("noop span should carry no trace ID")
	}
	if err := tr.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestNew_NilConfig(t *testing.T) {
	if _, err := New(context.Background(), nil); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestCreateSampler(t *testing.T) {
	tests := []struct {
		name     string
		strategy string
		ratio    float64
		wantErr  bool
	}{
		{"always", SamplerAlways, 0, false},
		{"never", SamplerNever, 0, false},
		{"ratio", SamplerRatio, 0.25, false},
		{"ratio out of range", SamplerRatio, 2, true},
		{"unknown", "sometimes", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := createSampler(tt.strategy, tt.ratio)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && s == nil {
				t.Error("expected sampler")
			}
		})
	}
}

func TestEnd_RecordsStatus(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tr := NewWithProvider(provider)
	t.Cleanup(func() { _ = tr.Shutdown(context.Background()) })

	ctx, ok := tr.Start(context.Background(), "ok")
	if TraceID(ctx) == "" {
		t.Error("expected a trace ID")
	}
	End(ok, nil)
	_, failed := tr.Start(context.Background(), "failed")
	End(failed, errors.New("boom"))

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Status().Code != codes.Ok {
		t.Errorf("expected ok status, got %v", spans[0].Status())
	}
	if spans[1].Status().Code != codes.Error || len(spans[1].Events()) == 0 {
		t.Errorf("expected error status with event, got %v", spans[1].Status())
	}
}
