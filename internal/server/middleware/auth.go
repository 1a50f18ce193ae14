package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"identity-sync/internal/security"
	telemetryotel "identity-sync/internal/telemetry/otel"
)

const bearerPrefix = "bearer "

// TokenVerifier validates a bearer token. Implemented by *security.Verifier.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*security.VerifiedClaims, error)
}

// BearerAuth returns middleware that verifies the Authorization bearer token and stores the claims and
// token in the request context. Any failure aborts with 401 and no downstream handler runs.
// metrics may be nil.
func BearerAuth(verifier TokenVerifier, metrics *telemetryotel.Instruments, logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		token := extractBearer(c.GetHeader("Authorization"))
		if token == "" {
			metrics.VerificationFailed(ctx, string(security.KindMalformed))
			abortUnauthorized(c, "No authorization token was found")
			return
		}

		claims, err := verifier.Verify(ctx, token)
		if err != nil {
			kind := security.KindMalformed
			var ve *security.VerificationError
			if errors.As(err, &ve) {
				kind = ve.Kind
			}
			metrics.VerificationFailed(ctx, string(kind))
			logger.InfoContext(ctx, "bearer token rejected", "kind", kind, "path", c.Request.URL.Path, "error", err)
			abortUnauthorized(c, "Invalid token: "+string(kind))
			return
		}

		c.Request = c.Request.WithContext(WithIdentity(ctx, claims, token))
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	c.Header("WWW-Authenticate", `Bearer error="invalid_token"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": message})
}

// extractBearer returns the token from an Authorization header value, or "" if missing or malformed.
func extractBearer(header string) string {
	v := strings.TrimSpace(header)
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
