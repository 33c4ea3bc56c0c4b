package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/rolvdeihai/whatsapp-bot-dashboard-sub000/internal/infrastructure/logging"
	"github.com/rolvdeihai/whatsapp-bot-dashboard-sub000/internal/infrastructure/monitoring"
	"github.com/rolvdeihai/whatsapp-bot-dashboard-sub000/internal/shared/types"
)

const writeTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // dashboard is served cross-origin in dev
	},
}

// envelope is the outbound wire frame.
type envelope struct {
	Type      string `json:"type"`
	Status    string `json:"status,omitempty"`
	Token     string `json:"token,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Hub fans bot state updates out to every connected dashboard client.
// It implements the recovery notifier surface.
type Hub struct {
	logger   *logging.Logger
	metrics  *monitoring.Metrics
	snapshot func() types.BotStatus

	mu         sync.Mutex
	conns      map[*websocket.Conn]struct{}
	lastStatus string
	lastToken  string
}

// NewHub creates a hub. Snapshot, when set, seeds each new connection
// with the current aggregate status.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		logger: logger,
		conns:  make(map[*websocket.Conn]struct{}),
	}
}

// WithMetrics attaches a metrics collector.
func (h *Hub) WithMetrics(m *monitoring.Metrics) *Hub {
	h.metrics = m
	return h
}

// WithSnapshot sets the status source for connection greetings.
func (h *Hub) WithSnapshot(fn func() types.BotStatus) *Hub {
	h.snapshot = fn
	return h
}

// HandleConnection upgrades the request and serves the push stream
// until the client goes away.
func (h *Hub) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	h.register(conn)
	defer h.unregister(conn)

	h.greet(conn)

	// Inbound traffic is ping-only; anything else is ignored. The read
	// loop exists to detect the close.
	for {
		var msg struct {
			Type string `json:"type"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Type == "ping" {
			h.writeTo(conn, envelope{Type: "pong", Timestamp: time.Now().Unix()})
		}
	}
}

// NotifyStatus broadcasts a connection status transition. Repeats of
// the current status are suppressed.
func (h *Hub) NotifyStatus(status string) {
	h.mu.Lock()
	if status == h.lastStatus {
		h.mu.Unlock()
		return
	}
	h.lastStatus = status
	if status == types.StatusReady || status == types.StatusAuthenticating {
		h.lastToken = ""
	}
	h.broadcastLocked(envelope{
		Type:      "status",
		Status:    status,
		Timestamp: time.Now().Unix(),
	})
	h.mu.Unlock()
}

// NotifyPairing broadcasts a freshly issued pairing token and retains
// it for clients that connect while pairing is still pending.
func (h *Hub) NotifyPairing(token string) {
	h.mu.Lock()
	h.lastToken = token
	h.broadcastLocked(envelope{
		Type:      "pairing",
		Token:     token,
		Timestamp: time.Now().Unix(),
	})
	h.mu.Unlock()
}

func (h *Hub) register(conn *websocket.Conn) {
	h.mu.Lock()
	h.conns[conn] = struct{}{}
	count := len(h.conns)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.WSConnections.Set(float64(count))
	}
}

func (h *Hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	count := len(h.conns)
	h.mu.Unlock()
	conn.Close()

	if h.metrics != nil {
		h.metrics.WSConnections.Set(float64(count))
	}
}

// greet sends the current state to a fresh connection so the dashboard
// renders without waiting for the next transition.
func (h *Hub) greet(conn *websocket.Conn) {
	status := ""
	if h.snapshot != nil {
		status = h.snapshot().Status
	}

	h.mu.Lock()
	if status == "" {
		status = h.lastStatus
	}
	token := h.lastToken
	h.mu.Unlock()

	if status != "" {
		h.writeTo(conn, envelope{Type: "status", Status: status, Timestamp: time.Now().Unix()})
	}
	if token != "" && status == types.StatusAwaitingPairing {
		h.writeTo(conn, envelope{Type: "pairing", Token: token, Timestamp: time.Now().Unix()})
	}
}

// broadcastLocked writes to every connection; callers hold h.mu, which
// also serializes writes per connection. Dead connections are dropped
// on their own read-loop exit.
func (h *Hub) broadcastLocked(env envelope) {
	for conn := range h.conns {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(env); err != nil {
			h.logger.Debug("WebSocket write failed", zap.Error(err))
		}
	}
}

func (h *Hub) writeTo(conn *websocket.Conn, env envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(env); err != nil {
		h.logger.Debug("WebSocket write failed", zap.Error(err))
	}
}
