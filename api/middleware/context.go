package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/stocklinehq/stockline-backend/internal/actor"
)

type contextKey string

const (
	ctxUserID        contextKey = "user_id"
	ctxUsername      contextKey = "username"
	ctxPermissions   contextKey = "permissions"
	ctxTraceID       contextKey = "trace_id"
	ctxRequestSource contextKey = "request_source"
)

func UserIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxUserID)
}

func UsernameFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxUsername)
}

func TraceIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxTraceID)
}

func RequestSourceFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxRequestSource)
}

func PermissionsFromContext(ctx context.Context) []string {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(ctxPermissions).([]string); ok {
		return v
	}
	return nil
}

// ActorFromContext assembles the request actor for service calls.
func ActorFromContext(ctx context.Context) actor.Actor {
	act := actor.Actor{
		Username:      UsernameFromContext(ctx),
		TraceID:       TraceIDFromContext(ctx),
		RequestSource: RequestSourceFromContext(ctx),
	}
	if raw := UserIDFromContext(ctx); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			act.UserID = id
		}
	}
	return act
}

// WithUserID injects the user identifier into the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxUserID, userID)
}

// WithUsername injects the username into the context.
func WithUsername(ctx context.Context, username string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxUsername, username)
}

// WithPermissions injects the resolved permission codes.
func WithPermissions(ctx context.Context, permissions []string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxPermissions, permissions)
}

func stringFromContext(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
