package middleware

import (
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// staticExtensions are file types served from the static directory; requests for them are not logged.
var staticExtensions = map[string]bool{
	".js": true, ".css": true, ".map": true, ".ico": true, ".png": true, ".jpg": true,
	".jpeg": true, ".gif": true, ".svg": true, ".webp": true, ".woff": true, ".woff2": true,
	".ttf": true, ".txt": true,
}

// IsStaticAsset reports whether p looks like a static file request (has a known asset extension).
func IsStaticAsset(p string) bool {
	return staticExtensions[strings.ToLower(path.Ext(p))]
}

// RequestLogger logs one line per request with method, path, status and latency. Static assets are skipped.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		p := c.Request.URL.Path
		if IsStaticAsset(p) {
			return
		}
		status := c.Writer.Status()
		level := slog.LevelInfo
		if status >= 500 {
			level = slog.LevelError
		}
		logger.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", p,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
	}
}
