// Package server assembles the gin engine: middleware, API routes, probes and the single-page app fallback.
package server

import (
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	healthhandler "identity-sync/internal/health/handler"
	"identity-sync/internal/server/middleware"
	"identity-sync/internal/telemetry"
	telemetryotel "identity-sync/internal/telemetry/otel"
	userhandler "identity-sync/internal/user/handler"
)

const apiPrefix = "/api"

// probePaths are not emitted as http_request events.
var probePaths = map[string]bool{"/healthz": true, "/readyz": true}

// Deps holds the router's collaborators.
type Deps struct {
	// Verifier validates bearer tokens for /api/user. Required.
	Verifier middleware.TokenVerifier
	// Sync handles POST /api/user/sync. Required.
	Sync userhandler.Syncer
	// Users handles the administrative CRUD routes. Required.
	Users userhandler.Users
	// HealthPinger is used by /readyz (e.g. *sql.DB). If nil, readiness skips the DB ping.
	HealthPinger healthhandler.Pinger
	// Events receives http_request events. If nil, none are emitted.
	Events telemetry.EventEmitter
	// Instruments counts verification failures. May be nil.
	Instruments *telemetryotel.Instruments
	// Logger is used for request logs and handler errors. Defaults to slog.Default().
	Logger *slog.Logger
	// FrontendURL is the only origin allowed by CORS. Empty disables CORS headers.
	FrontendURL string
	// StaticDir holds the built single-page app. Empty disables static serving.
	StaticDir string
}

// NewRouter returns the gin engine serving the API, probes and static app.
//
// Route → handler mapping:
//   - /healthz, /readyz → internal/health/handler
//   - /api/user/*        → internal/user/handler (behind middleware.BearerAuth)
//   - anything else      → static file, 404 for missing assets, or index.html
func NewRouter(deps Deps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.CORS(deps.FrontendURL))
	if deps.Events != nil {
		r.Use(middleware.Telemetry(deps.Events, probePaths))
	}

	healthhandler.NewServer(deps.HealthPinger).Register(r)

	users := r.Group(apiPrefix+"/user", middleware.BearerAuth(deps.Verifier, deps.Instruments, logger))
	userhandler.NewHandler(deps.Sync, deps.Users, logger).Register(users)

	r.NoRoute(spaFallback(deps.StaticDir))
	return r
}

// spaFallback serves files from dir for non-API paths. A missing file that looks like an asset is a 404;
// any other path gets index.html so client-side routes resolve.
func spaFallback(dir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := c.Request.URL.Path
		if dir == "" || p == apiPrefix || strings.HasPrefix(p, apiPrefix+"/") ||
			(c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "route not found"})
			return
		}
		if strings.Contains(p, "..") {
			c.Status(http.StatusBadRequest)
			return
		}
		clean := path.Clean("/" + p)
		file := filepath.Join(dir, filepath.FromSlash(clean))
		if clean != "/" {
			if info, err := os.Stat(file); err == nil && !info.IsDir() {
				c.File(file)
				return
			}
			if path.Ext(clean) != "" {
				c.Status(http.StatusNotFound)
				return
			}
		}
		index := filepath.Join(dir, "index.html")
		if _, err := os.Stat(index); err != nil {
			c.Status(http.StatusNotFound)
			return
		}
		c.File(index)
	}
}
