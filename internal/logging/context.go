package logging

import "context"

// Context keys for logging values. Using private types avoids key collisions
// with other packages' context values.
type contextKey int

const (
	sessionIDKey contextKey = iota
	componentKey
)

// WithSession adds the source session identifier (the CSV file path a
// worker is currently processing) to the context.
func WithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// WithComponent adds a component name to the context, identifying the
// subsystem generating logs (e.g. "ingest", "pipeline", "redact").
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// SessionIDFromContext extracts the session identifier from the context.
func SessionIDFromContext(ctx context.Context) string {
	if v := ctx.Value(sessionIDKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// ComponentFromContext extracts the component name from the context.
func ComponentFromContext(ctx context.Context) string {
	if v := ctx.Value(componentKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
