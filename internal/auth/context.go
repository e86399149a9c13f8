package auth

import (
	"context"
	"time"
)

type contextKey string

const authContextKey contextKey = "ids_auth"

// AuthInfo holds the identity carried by a verified access token.
type AuthInfo struct {
	User      string
	ExpiresAt time.Time
}

func ContextWithAuth(ctx context.Context, info *AuthInfo) context.Context {
	return context.WithValue(ctx, authContextKey, info)
}

func AuthFromContext(ctx context.Context) (*AuthInfo, bool) {
	info, ok := ctx.Value(authContextKey).(*AuthInfo)
	return info, ok
}
