package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rolvdeihai/whatsapp-bot-dashboard-sub000/internal/domain/queue"
	"github.com/rolvdeihai/whatsapp-bot-dashboard-sub000/internal/domain/recovery"
	"github.com/rolvdeihai/whatsapp-bot-dashboard-sub000/internal/domain/session"
	"github.com/rolvdeihai/whatsapp-bot-dashboard-sub000/internal/infrastructure/logging"
)

// Handlers contains all dashboard HTTP handlers.
type Handlers struct {
	controller *recovery.Controller
	queue      *queue.Queue
	sessions   *session.Manager
	logger     *logging.Logger
	startedAt  time.Time
}

// NewHandlers creates a new handler set.
func NewHandlers(controller *recovery.Controller, q *queue.Queue, sessions *session.Manager, logger *logging.Logger) *Handlers {
	return &Handlers{
		controller: controller,
		queue:      q,
		sessions:   sessions,
		logger:     logger,
		startedAt:  time.Now(),
	}
}

// Root handles the service banner.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "whatsapp-bot-backend",
	})
}

// Health handles liveness checks.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	})
}

// Status reports the aggregate bot snapshot: connection status, queue
// depth, and recovery bookkeeping.
func (h *Handlers) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.controller.Status())
}

// Queue reports admission queue state.
func (h *Handlers) Queue(c *gin.Context) {
	c.JSON(http.StatusOK, h.queue.Status())
}

// Storage reports remote store usage against quota.
func (h *Handlers) Storage(c *gin.Context) {
	report, err := h.sessions.Usage(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

// BackupSession triggers an immediate pack-and-save of the working
// directory.
func (h *Handlers) BackupSession(c *gin.Context) {
	if err := h.controller.BackupNow(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "saved"})
}

// RestoreSession forces a restore from the remote blob, replacing any
// local session state.
func (h *Handlers) RestoreSession(c *gin.Context) {
	err := h.controller.RestoreNow(c.Request.Context())
	if errors.Is(err, session.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no remote session blob"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "restored"})
}

// FreshPairing abandons local and remote session state and starts a
// fresh pairing cycle.
func (h *Handlers) FreshPairing(c *gin.Context) {
	h.controller.ForceFreshPairing(c.Request.Context())
	c.JSON(http.StatusAccepted, gin.H{"status": "fresh_pairing_started"})
}
