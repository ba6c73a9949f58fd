package context

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// ToolNameKey is the context key for the MCP tool being served
	ToolNameKey contextKey = "tool_name"
)

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// WithToolName records the tool name on the context
func WithToolName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, ToolNameKey, name)
}

// GetToolName retrieves the tool name from context
func GetToolName(ctx context.Context) string {
	if name, ok := ctx.Value(ToolNameKey).(string); ok {
		return name
	}
	return ""
}

// GenerateRequestID generates a unique request ID
func GenerateRequestID() string {
	return uuid.NewString()
}
