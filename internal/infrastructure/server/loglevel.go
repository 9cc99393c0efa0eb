package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LevelController changes the daemon's log level at runtime
type LevelController interface {
	SetLevel(level string) error
	Level() zapcore.Level
}

type logLevelRequest struct {
	Level string `json:"level" binding:"required"`
}

type logLevelHandlers struct {
	levels LevelController
	logger *zap.Logger
}

// Get reports the current level
func (h *logLevelHandlers) Get(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"level": h.levels.Level().String()})
}

// Set replaces the current level
func (h *logLevelHandlers) Set(c *gin.Context) {
	var req logLevelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	from := h.levels.Level()
	if err := h.levels.SetLevel(req.Level); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.logger.Info("Log level changed",
		zap.Stringer("from", from),
		zap.Stringer("to", h.levels.Level()),
	)
	c.JSON(http.StatusOK, gin.H{"level": h.levels.Level().String()})
}
