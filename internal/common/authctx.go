package common

import "context"

type ctxKey string

const (
	moduleRoleKey ctxKey = "auth/module-role"
	userIDKey     ctxKey = "auth/user-id"
)

// WithModuleRole stores the authenticated module role on the provided context.
func WithModuleRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, moduleRoleKey, role)
}

// ModuleRole extracts the authenticated module role from the context if present.
func ModuleRole(ctx context.Context) (string, bool) {
	v := ctx.Value(moduleRoleKey)
	if v == nil {
		return "", false
	}
	role, ok := v.(string)
	return role, ok
}

// WithUserID stores the authenticated user identifier on the provided context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserID extracts the authenticated user identifier from the context if present.
func UserID(ctx context.Context) (string, bool) {
	v := ctx.Value(userIDKey)
	if v == nil {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}
