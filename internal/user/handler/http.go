package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"identity-sync/internal/identity/userinfo"
	"identity-sync/internal/server/middleware"
	"identity-sync/internal/user/domain"
	"identity-sync/internal/user/service"
)

const protectedRouteMessage = "This is a protected route"

// Syncer mirrors the caller's identity into the user store. Implemented by *service.SyncService.
type Syncer interface {
	Sync(ctx context.Context, subject, accessToken string) (*service.SyncResult, error)
}

// Users is the administrative user API. Implemented by *service.UserService.
type Users interface {
	Get(ctx context.Context, id int64) (*domain.User, error)
	List(ctx context.Context) ([]*domain.User, error)
	Create(ctx context.Context, email, externalID string) (*domain.User, error)
	Update(ctx context.Context, id int64, email string) (*domain.User, error)
	Delete(ctx context.Context, id int64) error
}

// Handler serves /api/user. All routes expect the bearer middleware to have run.
type Handler struct {
	sync   Syncer
	users  Users
	logger *slog.Logger
}

// NewHandler returns a user Handler. logger may be nil.
func NewHandler(sync Syncer, users Users, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{sync: sync, users: users, logger: logger}
}

// Register mounts the user routes on g (typically the /api/user group).
func (h *Handler) Register(g gin.IRoutes) {
	g.GET("/profile", h.Profile)
	g.POST("/sync", h.Sync)
	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
}

type syncResponse struct {
	User    *domain.User `json:"user"`
	Message string       `json:"message"`
}

type createRequest struct {
	Email      string `json:"email"`
	ExternalID string `json:"external_id"`
}

type updateRequest struct {
	Email string `json:"email"`
}

// Profile returns the verified claims of the caller.
func (h *Handler) Profile(c *gin.Context) {
	claims, ok := middleware.GetClaims(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "No authorization token was found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": claims.Raw, "message": protectedRouteMessage})
}

// Sync creates or returns the local user for the caller's subject. The request body is ignored.
func (h *Handler) Sync(c *gin.Context) {
	ctx := c.Request.Context()
	token, _ := middleware.GetAccessToken(ctx)
	res, err := h.sync.Sync(ctx, middleware.GetSubject(ctx), token)
	if err != nil {
		h.writeError(c, err)
		return
	}
	msg := "User synced successfully"
	if res.Created {
		msg = "User created successfully"
	}
	c.JSON(http.StatusOK, syncResponse{User: res.User, Message: msg})
}

// List returns every user.
func (h *Handler) List(c *gin.Context) {
	users, err := h.users.List(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

// Get returns one user.
func (h *Handler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	u, err := h.users.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// Create inserts a user from {email, external_id}.
func (h *Handler) Create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, "invalid request body")
		return
	}
	u, err := h.users.Create(c.Request.Context(), req.Email, req.ExternalID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

// Update changes a user's email from {email}.
func (h *Handler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, "invalid request body")
		return
	}
	u, err := h.users.Update(c.Request.Context(), id, req.Email)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// Delete removes a user.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.users.Delete(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("User %d deleted successfully", id)})
}

// parseID reads :id as a positive integer, writing 400 and returning false otherwise.
func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		writeBadRequest(c, "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func writeBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": message})
}

// writeError maps service errors to HTTP responses.
func (h *Handler) writeError(c *gin.Context, err error) {
	var (
		validation *domain.ValidationError
		conflict   *domain.UniquenessViolation
		notFound   *domain.NotFoundError
		fetch      *userinfo.FetchError
	)
	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": validation.Message, "field": validation.Field})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"error": "conflict", "message": conflict.Error(), "field": conflict.Field})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": notFound.Error()})
	case errors.Is(err, service.ErrSubjectRequired):
		writeBadRequest(c, err.Error())
	case errors.As(err, &fetch):
		h.logger.WarnContext(c.Request.Context(), "identity provider profile fetch failed", "status", fetch.StatusCode, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "bad_gateway", "message": "identity provider: " + fetch.Message})
	case errors.Is(err, service.ErrSubjectMismatch), errors.Is(err, service.ErrEmailRequired),
		errors.Is(err, service.ErrInvalidProfile):
		h.logger.WarnContext(c.Request.Context(), "unusable identity provider profile", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "bad_gateway", "message": err.Error()})
	default:
		h.logger.ErrorContext(c.Request.Context(), "user request failed", "path", c.Request.URL.Path, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "message": "internal server error"})
	}
}
