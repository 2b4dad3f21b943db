// Package runctx carries run metadata (run ID, role, action) through
// context.Context so the persona layer can attach it to typed errors without
// importing the workflow package.
package runctx

import "context"

type contextKey string

const (
	keyRunID  contextKey = "run_id"
	keyRole   contextKey = "role"
	keyAction contextKey = "action"
)

// WithRunID returns a context carrying the workflow run ID.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, keyRunID, runID)
}

// WithRole returns a context carrying the invoking role.
func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, keyRole, role)
}

// WithAction returns a context carrying the current action (e.g. a workflow state name).
func WithAction(ctx context.Context, action string) context.Context {
	return context.WithValue(ctx, keyAction, action)
}

// RunID extracts the run ID, or "" when none is set.
func RunID(ctx context.Context) string {
	return stringValue(ctx, keyRunID)
}

// Role extracts the role, or "".
func Role(ctx context.Context) string {
	return stringValue(ctx, keyRole)
}

// Action extracts the action, or "".
func Action(ctx context.Context) string {
	return stringValue(ctx, keyAction)
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
