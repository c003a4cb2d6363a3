// Package requestctx carries per-request state between middleware, handlers and clients.
package requestctx

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type scopeKey struct{}

var noopLogger = zap.NewNop()

// Scope is the state attached once per request by the access log middleware.
type Scope struct {
	Logger    *zap.Logger
	RequestID string
	Started   time.Time
}

// With stores scope on ctx.
func With(ctx context.Context, scope Scope) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if scope.Logger == nil {
		scope.Logger = noopLogger
	}
	return context.WithValue(ctx, scopeKey{}, scope)
}

// From returns the scope on ctx.
func From(ctx context.Context) (Scope, bool) {
	if ctx == nil {
		return Scope{}, false
	}
	scope, ok := ctx.Value(scopeKey{}).(Scope)
	return scope, ok
}

// WithLogger replaces the scope logger, keeping the other fields.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	scope, _ := From(ctx)
	scope.Logger = logger
	return With(ctx, scope)
}

// Logger returns the scope logger, or a no-op logger outside a request.
func Logger(ctx context.Context) *zap.Logger {
	if scope, ok := From(ctx); ok && scope.Logger != nil {
		return scope.Logger
	}
	return noopLogger
}

// NoopLogger is the logger returned when ctx carries none.
func NoopLogger() *zap.Logger { return noopLogger }

// RequestID returns the scope request id.
func RequestID(ctx context.Context) string {
	scope, _ := From(ctx)
	return scope.RequestID
}

// TraceID returns the active span's trace id, or "".
func TraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.HasTraceID() {
		return ""
	}
	return spanCtx.TraceID().String()
}
