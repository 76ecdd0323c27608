package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/FocuswithJustin/docdiff/internal/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 256
)

// ProgressMessage is a progress update sent to WebSocket clients.
type ProgressMessage struct {
	Type      string         `json:"type"`      // "progress", "complete", "error"
	Operation string         `json:"operation"` // "extract", "compare"
	ID        string         `json:"id,omitempty"`
	Stage     string         `json:"stage,omitempty"`
	Progress  int            `json:"progress"` // 0-100
	Message   string         `json:"message"`
	Timestamp string         `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// WebSocketSecurityConfig holds WebSocket-specific security configuration.
type WebSocketSecurityConfig struct {
	// AllowedOrigins lists accepted Origin values. "*" allows any origin
	// and "*.example.com" allows subdomains.
	AllowedOrigins []string

	// MaxMessageRate is the maximum number of messages per second per client.
	MaxMessageRate int

	// MaxMessageSize is the maximum inbound message size in bytes.
	MaxMessageSize int64

	RequireAuth bool
	AuthConfig  AuthConfig
}

// DefaultWebSocketSecurityConfig returns the default configuration.
func DefaultWebSocketSecurityConfig() WebSocketSecurityConfig {
	return WebSocketSecurityConfig{
		AllowedOrigins: []string{"*"},
		MaxMessageRate: 10,
		MaxMessageSize: 4096,
	}
}

// Client is one WebSocket connection.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks connected clients and fans progress messages out to them.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]struct{}
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

// NewHub creates a hub. Run must be started before clients connect.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan []byte, sendBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run serves registrations and broadcasts until ctx is done, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			logging.WebSocketEvent("client_connected", n, "client_id", c.id)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			logging.WebSocketEvent("client_disconnected", n, "client_id", c.id)

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Slow client: drop it rather than block everyone.
					delete(h.clients, c)
					close(c.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues msg for every client. Messages are dropped when the
// queue is full.
func (h *Hub) Broadcast(msg ProgressMessage) {
	if h == nil {
		return
	}
	if msg.Timestamp == "" {
		msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		logging.Error("failed to marshal progress message", "error", err)
		return
	}

	select {
	case h.broadcast <- data:
	default:
		logging.Warn("broadcast channel full, dropping message", "operation", msg.Operation)
	}
}

// Progress reports an intermediate stage of an operation.
func (h *Hub) Progress(operation, id, stage, message string, progress int) {
	h.Broadcast(ProgressMessage{
		Type:      "progress",
		Operation: operation,
		ID:        id,
		Stage:     stage,
		Progress:  progress,
		Message:   message,
	})
}

// Complete reports a finished operation.
func (h *Hub) Complete(operation, id, message string, data map[string]any) {
	h.Broadcast(ProgressMessage{
		Type:      "complete",
		Operation: operation,
		ID:        id,
		Progress:  100,
		Message:   message,
		Data:      data,
	})
}

// Fail reports a failed operation.
func (h *Hub) Fail(operation, id, message string) {
	h.Broadcast(ProgressMessage{
		Type:      "error",
		Operation: operation,
		ID:        id,
		Message:   message,
	})
}

// messageRateBucket limits inbound messages per client.
type messageRateBucket struct {
	tokens     float64
	capacity   float64
	refillRate float64
	last       time.Time
}

func newMessageRateBucket(perSecond int) *messageRateBucket {
	return &messageRateBucket{
		tokens:     float64(perSecond) * 2,
		capacity:   float64(perSecond) * 2,
		refillRate: float64(perSecond),
		last:       time.Now(),
	}
}

// allow is only called from the client's read loop, so it needs no lock.
func (b *messageRateBucket) allow() bool {
	now := time.Now()
	b.tokens = min(b.capacity, b.tokens+now.Sub(b.last).Seconds()*b.refillRate)
	b.last = now
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// isOriginAllowed checks origin against the allowed patterns.
func isOriginAllowed(origin string, allowed []string) bool {
	if origin == "" {
		return false
	}
	for _, pattern := range allowed {
		switch {
		case pattern == "*", pattern == origin:
			return true
		case strings.HasPrefix(pattern, "*."):
			if strings.HasSuffix(origin, pattern[1:]) {
				return true
			}
		}
	}
	return false
}

// validateWebSocketAuth returns a reason when the upgrade request is
// not authenticated. Browsers cannot set headers on WebSocket requests,
// so the key may also come from the api_key query parameter.
func validateWebSocketAuth(r *http.Request, cfg WebSocketSecurityConfig) string {
	if !cfg.RequireAuth {
		return ""
	}
	if !cfg.AuthConfig.Enabled {
		return "authentication required but not configured"
	}
	key := r.Header.Get("X-API-Key")
	if key == "" {
		key = r.URL.Query().Get("api_key")
	}
	if key == "" {
		return "missing API key"
	}
	if !constantTimeCompare(key, cfg.AuthConfig.APIKey) {
		return "invalid API key"
	}
	return ""
}

// WebSocketHandler upgrades authenticated, same-policy connections and
// registers them with hub.
func WebSocketHandler(hub *Hub, cfg WebSocketSecurityConfig) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if !isOriginAllowed(origin, cfg.AllowedOrigins) {
				logging.SecurityEvent("websocket_origin_rejected", "websocket", "origin", origin)
				return false
			}
			return true
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if reason := validateWebSocketAuth(r, cfg); reason != "" {
			logging.SecurityEvent("unauthorized_request", "websocket",
				"reason", reason,
				"client_ip", getClientIP(r))
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", reason)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
			return
		}
		conn.SetReadLimit(cfg.MaxMessageSize)

		c := &Client{
			id:   uuid.NewString(),
			hub:  hub,
			conn: conn,
			send: make(chan []byte, sendBuffer),
		}
		select {
		case hub.register <- c:
		case <-hub.done:
			conn.Close()
			return
		}

		go c.writePump()
		go c.readPump(newMessageRateBucket(cfg.MaxMessageRate))
	}
}

// readPump drains inbound messages. The channel is broadcast-only, so
// client messages are read for liveness and rate limiting only.
func (c *Client) readPump(limit *messageRateBucket) {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Warn("websocket unexpected close", "client_id", c.id, "error", err)
			}
			return
		}
		if !limit.allow() {
			logging.SecurityEvent("websocket_rate_limited", "websocket", "client_id", c.id)
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "rate limit exceeded"),
				time.Now().Add(writeWait))
			return
		}
	}
}

// writePump sends queued messages, batching any backlog into one frame,
// and keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			for range len(c.send) {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
