package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"identity-sync/internal/telemetry"
)

// Telemetry returns middleware that emits an http_request event after each request.
// Best-effort: emit failures are logged and never affect the response. If emitter is nil, it no-ops.
// skipPaths is the set of paths to not emit (e.g. /healthz); static assets are always skipped.
func Telemetry(emitter telemetry.EventEmitter, skipPaths map[string]bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		p := c.Request.URL.Path
		if emitter == nil || skipPaths[p] || IsStaticAsset(p) {
			return
		}
		event := telemetry.NewEvent(telemetry.EventHTTPRequest, "http_middleware").
			With("method", c.Request.Method).
			With("route", c.FullPath()).
			With("path", p).
			With("status_code", strconv.Itoa(c.Writer.Status())).
			With("duration_ms", strconv.FormatInt(time.Since(start).Milliseconds(), 10)).
			With("client_ip", c.ClientIP())
		event.Subject = GetSubject(c.Request.Context())
		telemetry.EmitAsync(emitter, c.Request.Context(), event)
	}
}
