package api

import (
	"sync"

	"github.com/glucolog/glucolog/internal/metrics"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

// hub fans out journal events to connected websocket clients so live
// dashboards update without polling.
type hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]bool
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func newHub(m *metrics.Metrics, log *zap.Logger) *hub {
	return &hub{
		clients: make(map[*websocket.Conn]bool),
		metrics: m,
		logger:  log,
	}
}

func (h *hub) register(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()
	h.metrics.WebsocketConnected()
}

func (h *hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		h.metrics.WebsocketDisconnected()
	}
	h.mu.Unlock()
}

// broadcast sends an event to every client. A client that fails to accept
// the write is dropped; it will reconnect if it is still alive.
func (h *hub) broadcast(event interface{}) {
	h.mu.Lock()
	var dead []*websocket.Conn
	for conn := range h.clients {
		if err := conn.WriteJSON(event); err != nil {
			dead = append(dead, conn)
		}
	}
	for _, conn := range dead {
		delete(h.clients, conn)
	}
	h.mu.Unlock()

	for _, conn := range dead {
		h.metrics.WebsocketDisconnected()
		_ = conn.Close()
	}
}

func (s *Server) handleWebSocket(c *websocket.Conn) {
	s.hub.register(c)
	defer func() {
		s.hub.unregister(c)
		_ = c.Close()
	}()

	// Read loop exists to detect disconnects; inbound messages are ignored.
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}
