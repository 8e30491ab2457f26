package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/ganeti-eventd/internal/eventd"
)

// StatusProvider exposes the daemon state to the status endpoints
type StatusProvider interface {
	Status() eventd.Status
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger      *slog.Logger
	Daemon      StatusProvider
	ServiceName string
	Version     string
}

// StatusHandler serves health and status requests
type StatusHandler struct {
	logger  *slog.Logger
	daemon  StatusProvider
	service string
	version string
}

// NewStatusHandler creates a new StatusHandler instance
func NewStatusHandler(deps *Dependencies) *StatusHandler {
	return &StatusHandler{
		logger:  deps.Logger,
		daemon:  deps.Daemon,
		service: deps.ServiceName,
		version: deps.Version,
	}
}

// Health handles GET /health. It answers 503 unless the event loop is
// running.
func (h *StatusHandler) Health(c *gin.Context) {
	state := h.daemon.Status().State
	if state != eventd.StateRunning.String() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"service": h.service,
			"state":   state,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": h.service,
		"state":   state,
	})
}

// Status handles GET /status
func (h *StatusHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": h.service,
		"version": h.version,
		"daemon":  h.daemon.Status(),
	})
}
