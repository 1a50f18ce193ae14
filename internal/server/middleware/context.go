package middleware

import (
	"context"

	"identity-sync/internal/security"
)

type contextKey struct{ name string }

var (
	claimsKey      = contextKey{"claims"}
	accessTokenKey = contextKey{"access_token"}
)

// WithIdentity returns a context carrying the verified claims and the bearer token they came from.
// Handlers read them via GetClaims and GetAccessToken.
func WithIdentity(ctx context.Context, claims *security.VerifiedClaims, accessToken string) context.Context {
	ctx = context.WithValue(ctx, claimsKey, claims)
	ctx = context.WithValue(ctx, accessTokenKey, accessToken)
	return ctx
}

// GetClaims returns the verified claims from context and true if set; otherwise nil, false.
func GetClaims(ctx context.Context) (*security.VerifiedClaims, bool) {
	v, ok := ctx.Value(claimsKey).(*security.VerifiedClaims)
	return v, ok && v != nil
}

// GetAccessToken returns the raw bearer token from context and true if set; otherwise "", false.
func GetAccessToken(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(accessTokenKey).(string)
	return v, ok
}

// GetSubject returns the verified sub claim, or "" when the request is unauthenticated.
func GetSubject(ctx context.Context) string {
	if c, ok := GetClaims(ctx); ok {
		return c.Subject
	}
	return ""
}
