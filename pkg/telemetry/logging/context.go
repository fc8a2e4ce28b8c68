package logging

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	distributorIDKey contextKey = "distributor_id"
	triggerIDKey     contextKey = "trigger_id"
	operatorKey      contextKey = "operator"
	requestIDKey     contextKey = "request_id"
)

// WithDistributorID adds the distributor being resolved to the context.
func WithDistributorID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, distributorIDKey, id)
}

// GetDistributorID retrieves the distributor ID from the context.
func GetDistributorID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(distributorIDKey).(int64)
	return id, ok
}

// WithTriggerID adds the ID of the trigger message being handled.
func WithTriggerID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, triggerIDKey, id)
}

// GetTriggerID retrieves the trigger ID from the context.
func GetTriggerID(ctx context.Context) string {
	id, _ := ctx.Value(triggerIDKey).(string)
	return id
}

// WithOperator adds the acting operator to the context.
func WithOperator(ctx context.Context, operator string) context.Context {
	return context.WithValue(ctx, operatorKey, operator)
}

// GetOperator retrieves the operator from the context.
func GetOperator(ctx context.Context) string {
	op, _ := ctx.Value(operatorKey).(string)
	return op
}

// WithRequestID adds an HTTP request ID to the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// contextAttrs extracts the identifiers stored in ctx.
func contextAttrs(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var attrs []slog.Attr
	if id, ok := GetDistributorID(ctx); ok {
		attrs = append(attrs, slog.Int64(string(distributorIDKey), id))
	}
	if id := GetTriggerID(ctx); id != "" {
		attrs = append(attrs, slog.String(string(triggerIDKey), id))
	}
	if op := GetOperator(ctx); op != "" {
		attrs = append(attrs, slog.String(string(operatorKey), op))
	}
	if id := GetRequestID(ctx); id != "" {
		attrs = append(attrs, slog.String(string(requestIDKey), id))
	}
	return attrs
}

// contextHandler adds context identifiers to every record.
type contextHandler struct {
	inner slog.Handler
}

func (h *contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if attrs := contextAttrs(ctx); len(attrs) > 0 {
		r = r.Clone()
		r.AddAttrs(attrs...)
	}
	return h.inner.Handle(ctx, r)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{inner: h.inner.WithGroup(name)}
}
