package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/linkup/backend/internal/auth"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 32
)

// ErrSessionUnavailable indicates the session's send buffer is full or the
// session has already closed.
var ErrSessionUnavailable = errors.New("session unavailable")

// Client is one live session: a single websocket connection for one
// (possibly unauthenticated) user. It owns the connection; the registry only
// references it through the Pusher interface.
type Client struct {
	conn          *websocket.Conn
	identity      auth.Identity
	authenticated bool
	logger        *slog.Logger

	send      chan []byte
	closeOnce sync.Once
	done      chan struct{}
}

func newClient(conn *websocket.Conn, identity auth.Identity, authenticated bool, logger *slog.Logger) *Client {
	return &Client{
		conn:          conn,
		identity:      identity,
		authenticated: authenticated,
		logger:        logger,
		send:          make(chan []byte, sendBufferSize),
		done:          make(chan struct{}),
	}
}

// TrySend queues a payload for delivery without blocking. A full buffer or a
// closed session returns ErrSessionUnavailable; the dispatcher drops the
// event and the session recovers (or dies) on its own.
func (c *Client) TrySend(payload []byte) error {
	select {
	case <-c.done:
		return ErrSessionUnavailable
	default:
	}

	select {
	case c.send <- payload:
		return nil
	default:
		return ErrSessionUnavailable
	}
}

// sendEvent marshals and queues a direct reply to this session only.
func (c *Client) sendEvent(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		c.logger.Error("marshal outbound frame", "error", err)
		return
	}
	if err := c.TrySend(payload); err != nil {
		c.logger.Warn("drop outbound frame", "error", err)
	}
}

func (c *Client) sendError(message string) {
	c.sendEvent(errorEvent{Type: "error", Message: message})
}

// close marks the session terminal. Safe to call from any goroutine, any
// number of times.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// readPump consumes inbound frames until the connection dies, dispatching
// each through the handler. It runs on the HTTP handler's goroutine.
func (c *Client) readPump(h *Handler) {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read failed", "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		h.dispatch(c, message)
	}
}

// writePump serializes all writes to the connection: queued events plus
// keepalive pings. Exactly one writePump runs per connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Warn("websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// String identifies the session in logs.
func (c *Client) String() string {
	if !c.authenticated {
		return "anonymous"
	}
	return fmt.Sprintf("%s (%s)", c.identity.Username, c.identity.ID)
}

type errorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type pongEvent struct {
	Type string `json:"type"`
}
