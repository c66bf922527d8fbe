package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Context key types
type cycleCtxKey struct{}
type projectCtxKey struct{}
type requestCtxKey struct{}
type loggerCtxKey struct{}

// Cycle identifies one update-check cycle.
type Cycle struct {
	ID      string
	Trigger string
}

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}

	if c, ok := ctx.Value(cycleCtxKey{}).(Cycle); ok {
		fields = append(fields,
			zap.String("cycle.id", c.ID),
			zap.String("cycle.trigger", c.Trigger),
		)
	}

	if name := ProjectFromContext(ctx); name != "" {
		fields = append(fields, zap.String("project.name", name))
	}

	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request.id", requestID))
	}

	return fields
}

// WithCycle tags ctx with the running check cycle.
func WithCycle(ctx context.Context, id, trigger string) context.Context {
	return context.WithValue(ctx, cycleCtxKey{}, Cycle{ID: id, Trigger: trigger})
}

// CycleFromContext returns the cycle ctx was tagged with, if any.
func CycleFromContext(ctx context.Context) (Cycle, bool) {
	c, ok := ctx.Value(cycleCtxKey{}).(Cycle)
	return c, ok
}

// WithProject tags ctx with a project name.
func WithProject(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, projectCtxKey{}, name)
}

// ProjectFromContext returns the project name ctx was tagged with.
func ProjectFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(projectCtxKey{}).(string); ok {
		return s
	}
	return ""
}

// WithRequestID tags ctx with an API request ID.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// RequestIDFromContext extracts request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(requestCtxKey{}).(string); ok {
		return r
	}
	return ""
}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context.
// Returns a nop logger if not found.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return NewNop()
}
