package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sprite-ai/impactgate/internal/gate"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024 * 16,
	WriteBufferSize: 1024 * 16,
	CheckOrigin: func(r *http.Request) bool {
		return true // local tool; the server binds to loopback by default
	},
}

// WebSocket message types from client.
const (
	wsMsgGet  = "get"
	wsMsgPing = "ping"
)

// WebSocket message types to client.
const (
	wsMsgGateStatus = "gate_status"
	wsMsgAnalysis   = "analysis"
	wsMsgPong       = "pong"
	wsMsgError      = "error"
)

const wsWriteTimeout = 5 * time.Second

// wsMessage is the envelope for WebSocket messages in both directions.
type wsMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// wsGet is the payload for "get" messages.
type wsGet struct {
	ID string `json:"id"`
}

// client serializes writes to one connection.
type client struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *client) send(msgType string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteJSON(wsMessage{Type: msgType, Data: raw})
}

// hub tracks connected clients and fans gate status changes out to them.
type hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	logger  *slog.Logger
}

func newHub(logger *slog.Logger) *hub {
	return &hub{clients: make(map[*client]struct{}), logger: logger}
}

func (h *hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

func (h *hub) snapshot() []*client {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, c)
	}
	return out
}

// broadcastStatus is registered as a gate hook.
func (h *hub) broadcastStatus(_ context.Context, change gate.StatusChange) error {
	for _, c := range h.snapshot() {
		if err := c.send(wsMsgGateStatus, change); err != nil {
			h.logger.Debug("ws broadcast failed", slog.Any("error", err))
			h.remove(c)
			c.conn.Close()
		}
	}
	return nil
}

func (h *hub) closeAll() {
	for _, c := range h.snapshot() {
		h.remove(c)
		c.conn.Close()
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade", slog.Any("error", err))
		return
	}
	c := &client{conn: conn}
	s.hub.add(c)
	defer func() {
		s.hub.remove(c)
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read", slog.Any("error", err))
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.sendWSError(c, "invalid message format")
			continue
		}

		switch msg.Type {
		case wsMsgPing:
			s.sendWS(c, wsMsgPong, map[string]string{"status": "ok"})
		case wsMsgGet:
			var req wsGet
			if err := json.Unmarshal(msg.Data, &req); err != nil {
				s.sendWSError(c, "invalid get data")
				continue
			}
			a, err := s.svc.Get(req.ID)
			if err != nil {
				s.sendWSError(c, err.Error())
				continue
			}
			s.sendWS(c, wsMsgAnalysis, a)
		default:
			s.sendWSError(c, "unknown message type: "+msg.Type)
		}
	}
}

func (s *Server) sendWS(c *client, msgType string, data any) {
	if err := c.send(msgType, data); err != nil {
		s.logger.Warn("ws write", slog.Any("error", err))
	}
}

func (s *Server) sendWSError(c *client, errMsg string) {
	s.sendWS(c, wsMsgError, map[string]string{"message": errMsg})
}
