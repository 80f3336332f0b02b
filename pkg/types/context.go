package types

import "context"

type contextKey string

// Context keys carried through scoring calls for logging and telemetry.
const (
	ContextKeyTaskID    contextKey = "task_id"
	ContextKeyRequestID contextKey = "request_id"
	ContextKeySource    contextKey = "request_source"
)

// WithRequest attaches the request id, task id and source of a scoring call
// to ctx. Empty values are not stored.
func WithRequest(ctx context.Context, requestID, taskID, source string) context.Context {
	if requestID != "" {
		ctx = context.WithValue(ctx, ContextKeyRequestID, requestID)
	}
	if taskID != "" {
		ctx = context.WithValue(ctx, ContextKeyTaskID, taskID)
	}
	if source != "" {
		ctx = context.WithValue(ctx, ContextKeySource, source)
	}
	return ctx
}

// ContextString returns the string stored under key, or "".
func ContextString(ctx context.Context, key contextKey) string {
	v, _ := ctx.Value(key).(string)
	return v
}
