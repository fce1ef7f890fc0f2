// Package ctxkeys defines the typed context keys shared across the
// transport, dispatcher, and write-pipeline layers so request-scoped
// values are set and read through one vocabulary instead of ad hoc
// string keys.
package ctxkeys

import "context"

// contextKey is the private type used for every key this package
// defines, so values set here never collide with keys set by other
// packages or by net/http's own context usage.
type contextKey string

const (
	requestIDKey          contextKey = "request_id"
	projectSlugKey         contextKey = "project_slug"
	agentIDKey            contextKey = "agent_id"
	bearerAuthenticatedKey contextKey = "bearer_authenticated"
)

// WithRequestID attaches the per-request trace identifier.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID returns the per-request trace identifier, if set.
func RequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(requestIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithProjectSlug attaches the project slug resolved from the
// request's path or tool-call arguments.
func WithProjectSlug(ctx context.Context, slug string) context.Context {
	return context.WithValue(ctx, projectSlugKey, slug)
}

// ProjectSlug returns the resolved project slug, if set.
func ProjectSlug(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(projectSlugKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithAgentID attaches the calling agent's identifier once the
// dispatcher has resolved which agent issued the tool call.
func WithAgentID(ctx context.Context, agentID string) context.Context {
	return context.WithValue(ctx, agentIDKey, agentID)
}

// AgentID returns the calling agent's identifier, if set.
func AgentID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(agentIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithBearerAuthenticated records whether the request's bearer token
// passed the external auth collaborator's check (spec.md §1 — auth is
// an external concern, but the dispatcher still needs to know the
// outcome).
func WithBearerAuthenticated(ctx context.Context, authenticated bool) context.Context {
	return context.WithValue(ctx, bearerAuthenticatedKey, authenticated)
}

// BearerAuthenticated reports whether the request's bearer token was
// authenticated. Absent means no auth decision was ever recorded.
func BearerAuthenticated(ctx context.Context) (authenticated bool, ok bool) {
	v, ok := ctx.Value(bearerAuthenticatedKey).(bool)
	return v, ok
}
