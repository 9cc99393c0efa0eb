package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/keepalive/internal/shared/errs"
	"github.com/GriffinCanCode/keepalive/internal/shared/types"
)

// Handlers serves the admin endpoints
type Handlers struct {
	engine Engine
	logger *zap.Logger
}

// NewHandlers creates handlers over eng
func NewHandlers(eng Engine, logger *zap.Logger) *Handlers {
	return &Handlers{engine: eng, logger: logger}
}

type processRequest struct {
	PID     int    `json:"pid" binding:"required,gt=0"`
	UID     int    `json:"uid" binding:"gte=0"`
	UserID  int    `json:"user_id" binding:"gte=0"`
	Package string `json:"package" binding:"required"`
	Name    string `json:"name"`
}

type processRemovedRequest struct {
	PID int `json:"pid" binding:"required,gt=0"`
}

type visibilityRequest struct {
	Kind      string `json:"kind" binding:"required,oneof=gained lost"`
	UserID    int    `json:"user_id" binding:"gte=0"`
	Package   string `json:"package" binding:"required"`
	Component string `json:"component" binding:"required"`
}

type scoreRequest struct {
	PID   int  `json:"pid" binding:"required,gt=0"`
	UID   int  `json:"uid" binding:"gte=0"`
	Score *int `json:"score" binding:"required"`
}

type packageRequest struct {
	UserID  int    `json:"user_id" binding:"gte=0"`
	Package string `json:"package" binding:"required"`
}

type displayRequest struct {
	Interactive *bool `json:"interactive" binding:"required"`
}

// Health reports liveness and the supervisor breaker
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"stats":       h.engine.Stats(),
		"interactive": h.engine.Interactive(),
		"supervisor":  gin.H{"breaker": h.engine.Breaker().State().String()},
	})
}

// ListApps lists every tracked application
func (h *Handlers) ListApps(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"apps":  h.engine.Snapshot(),
		"stats": h.engine.Stats(),
	})
}

// GetApp returns one application by registry key
func (h *Handlers) GetApp(c *gin.Context) {
	id, err := types.ParseKey(c.Param("key"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	view, ok := h.engine.Application(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "application not tracked"})
		return
	}
	c.JSON(http.StatusOK, view)
}

// Stats returns engine statistics
func (h *Handlers) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Stats())
}

// ProcessCreated reports a new process
func (h *Handlers) ProcessCreated(c *gin.Context) {
	var req processRequest
	if !bind(c, &req) {
		return
	}
	err := h.engine.OnProcessCreated(c.Request.Context(), types.ProcessInfo{
		PID:     req.PID,
		UID:     req.UID,
		UserID:  req.UserID,
		Package: req.Package,
		Name:    req.Name,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ProcessRemoved reports a process exit
func (h *Handlers) ProcessRemoved(c *gin.Context) {
	var req processRemovedRequest
	if !bind(c, &req) {
		return
	}
	if err := h.engine.OnProcessRemoved(c.Request.Context(), req.PID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Visibility queues a visibility change
func (h *Handlers) Visibility(c *gin.Context) {
	var req visibilityRequest
	if !bind(c, &req) {
		return
	}
	accepted := h.engine.OnVisibilityChanged(types.VisibilityEvent{
		Kind:      types.Visibility(req.Kind),
		UserID:    req.UserID,
		Package:   req.Package,
		Component: req.Component,
	})
	if !accepted {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event dropped"})
		return
	}
	c.Status(http.StatusAccepted)
}

// Score arbitrates a score proposal
func (h *Handlers) Score(c *gin.Context) {
	var req scoreRequest
	if !bind(c, &req) {
		return
	}
	verdict := h.engine.OnScoreProposed(c.Request.Context(), req.PID, req.UID, *req.Score)
	c.JSON(http.StatusOK, gin.H{
		"decision":   verdict.Decision.String(),
		"score":      verdict.Score,
		"overridden": verdict.Overridden,
	})
}

// PackageInvalidated evicts cached package metadata
func (h *Handlers) PackageInvalidated(c *gin.Context) {
	var req packageRequest
	if !bind(c, &req) {
		return
	}
	h.engine.OnPackageMetadataInvalidated(req.UserID, req.Package)
	c.Status(http.StatusNoContent)
}

// Display records the display interactive state
func (h *Handlers) Display(c *gin.Context) {
	var req displayRequest
	if !bind(c, &req) {
		return
	}
	h.engine.OnDisplayInteractiveChanged(*req.Interactive)
	c.Status(http.StatusNoContent)
}

func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

func (h *Handlers) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Warn("Event handling failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{
		"error":    err.Error(),
		"category": string(errs.CategoryOf(err)),
	})
}

func statusFor(err error) int {
	switch errs.CategoryOf(err) {
	case errs.CategoryInvariant:
		return http.StatusBadRequest
	case errs.CategoryLookupMiss:
		return http.StatusNotFound
	case errs.CategoryStaleReference:
		return http.StatusConflict
	case errs.CategoryCollaborator:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
