package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const readinessTimeout = 2 * time.Second

// Pinger is used for readiness (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Server serves liveness and readiness probes.
type Server struct {
	pinger Pinger
}

// NewServer returns a health Server. pinger may be nil (in-memory store); readiness then always succeeds.
func NewServer(pinger Pinger) *Server {
	return &Server{pinger: pinger}
}

// Register mounts /healthz and /readyz.
func (s *Server) Register(r gin.IRoutes) {
	r.GET("/healthz", s.Liveness)
	r.GET("/readyz", s.Readiness)
}

// Liveness reports that the process is serving.
func (s *Server) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readiness pings the database when one is configured.
func (s *Server) Readiness(c *gin.Context) {
	checks := gin.H{"database": "skipped"}
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
		defer cancel()
		if err := s.pinger.PingContext(ctx); err != nil {
			slog.WarnContext(ctx, "health: database ping failed", "error", err)
			checks["database"] = "unavailable"
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "checks": checks})
			return
		}
		checks["database"] = "ok"
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "checks": checks})
}
