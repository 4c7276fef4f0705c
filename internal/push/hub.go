package push

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const defaultWriteTimeout = 10 * time.Second

type client struct {
	conn   *websocket.Conn
	userID string
	// gorilla/websocket allows one concurrent writer per connection.
	writeMu sync.Mutex
}

// Hub delivers pushes to devices holding an open websocket, keyed by device token.
type Hub struct {
	mu      sync.Mutex
	clients map[string]*client
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]*client)}
}

type envelope struct {
	Type    string  `json:"type"`
	Message Message `json:"message"`
}

func (h *Hub) Send(ctx context.Context, msg Message) error {
	h.mu.Lock()
	c, ok := h.clients[msg.Token]
	h.mu.Unlock()
	if !ok {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultWriteTimeout)
	}
	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteJSON(envelope{Type: "push", Message: msg}); err != nil {
		return fmt.Errorf("websocket push failed: %w", err)
	}
	return nil
}

// Serve registers conn under token and blocks until the client disconnects.
// A newer connection of the same user replaces the older one; a token held by
// a different user is refused with ErrDeviceInUse and conn is closed.
func (h *Hub) Serve(conn *websocket.Conn, token, userID string) error {
	c := &client{conn: conn, userID: userID}

	h.mu.Lock()
	if old, ok := h.clients[token]; ok {
		if old.userID != userID {
			h.mu.Unlock()
			msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "device in use")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			conn.Close()
			return ErrDeviceInUse
		}
		old.conn.Close()
	}
	h.clients[token] = c
	h.mu.Unlock()

	log := logrus.WithField("userID", userID)
	log.Info("Push client connected")

	defer func() {
		h.mu.Lock()
		if h.clients[token] == c {
			delete(h.clients, token)
		}
		h.mu.Unlock()
		conn.Close()
		log.Info("Push client disconnected")
	}()

	for {
		// Incoming frames are ignored; reading keeps control frames flowing.
		if _, _, err := conn.ReadMessage(); err != nil {
			return nil
		}
	}
}

// Connected reports how many devices currently hold a connection.
func (h *Hub) Connected() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
