package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/linkup/backend/internal/auth"
	"github.com/linkup/backend/internal/connections"
	"github.com/linkup/backend/internal/logging"
	"github.com/linkup/backend/internal/models"
)

// ConnectionService is the slice of the connection state machine the live
// protocol drives.
type ConnectionService interface {
	Send(ctx context.Context, caller auth.Identity, receiverUsername string) error
	Approve(ctx context.Context, caller auth.Identity, senderUsername string) error
	Reject(ctx context.Context, caller auth.Identity, senderUsername string) error
	Views(ctx context.Context, caller auth.Identity) (models.UserViews, error)
}

// IdentityProvider authenticates the credential presented at handshake.
type IdentityProvider interface {
	Verify(ctx context.Context, credential string) (auth.Identity, error)
}

// RateLimiter caps how often a caller may attempt an upgrade.
type RateLimiter interface {
	Allow(key string) bool
}

// Handler upgrades HTTP requests to live sessions and translates between the
// wire protocol and the connection service.
type Handler struct {
	Registry       *Registry
	Connections    ConnectionService
	Identity       IdentityProvider
	Limiter        RateLimiter
	AllowedOrigins []string
}

// inboundMessage is the single inbound frame shape: a tagged action with the
// fields the action needs.
type inboundMessage struct {
	Action   string `json:"action"`
	Receiver string `json:"receiver,omitempty"`
	Sender   string `json:"sender,omitempty"`
}

// ServeHTTP implements GET /ws. The credential travels in the token query
// parameter because browsers cannot set headers on websocket handshakes.
// A failed authentication keeps the socket open but unregistered: the client
// gets explicit error frames instead of an opaque close.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Limiter != nil && !h.Limiter.Allow("ws:"+clientIP(r)) {
		logger.Warn("upgrade rate limited", "remote", r.RemoteAddr)
		http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		return
	}

	identity, err := h.Identity.Verify(ctx, r.URL.Query().Get("token"))
	authenticated := err == nil
	if authenticated {
		logger = logger.With("user_id", identity.ID, "username", identity.Username)
	} else if !errors.Is(err, auth.ErrInvalidCredential) {
		logger.Error("handshake authentication failed", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	} else {
		logger.Warn("unauthenticated live session")
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := newClient(conn, identity, authenticated, logger)
	if authenticated {
		h.Registry.Register(identity.ID, client)
	}
	logger.Info("live session opened", "session", client.String())

	defer func() {
		// Deregistration runs unconditionally and is idempotent, so a
		// session that never registered tears down the same way.
		h.Registry.Deregister(identity.ID, client)
		client.close()
		logger.Info("live session closed", "session", client.String())
	}()

	go client.writePump()
	client.readPump(h)
}

// dispatch decodes one inbound frame and routes it. Every failure answers
// this session only; the socket stays open.
func (h *Handler) dispatch(c *Client, raw []byte) {
	// The request context died with the handshake; inbound frames get a
	// fresh one carrying the session's logger.
	ctx := logging.WithLogger(context.Background(), c.logger)

	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.sendError("invalid message")
		return
	}

	if msg.Action == "ping" {
		c.sendEvent(pongEvent{Type: "pong"})
		return
	}

	if !c.authenticated {
		c.sendError("authentication required")
		return
	}

	switch msg.Action {
	case "init_connection", "get_users":
		h.pushViews(ctx, c)
	case "send_request":
		if msg.Receiver == "" {
			c.sendError("receiver is required")
			return
		}
		if err := h.Connections.Send(ctx, c.identity, msg.Receiver); err != nil {
			c.sendError(clientMessage(err))
		}
	case "approve_request":
		if msg.Sender == "" {
			c.sendError("sender is required")
			return
		}
		if err := h.Connections.Approve(ctx, c.identity, msg.Sender); err != nil {
			c.sendError(clientMessage(err))
		}
	case "reject_request":
		if msg.Sender == "" {
			c.sendError("sender is required")
			return
		}
		if err := h.Connections.Reject(ctx, c.identity, msg.Sender); err != nil {
			c.sendError(clientMessage(err))
		}
	default:
		c.sendError("unknown action " + msg.Action)
	}
}

func (h *Handler) pushViews(ctx context.Context, c *Client) {
	views, err := h.Connections.Views(ctx, c.identity)
	if err != nil {
		c.logger.Error("compute views", "error", err)
		c.sendError("unable to load users")
		return
	}
	c.sendEvent(connections.UpdateUsers(views))
}

// checkOrigin accepts same-origin handshakes and any configured origin.
// Comparison is exact after stripping a trailing slash; a prefix match would
// let an attacker-controlled host that embeds an allowed origin through.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := strings.TrimSuffix(r.Header.Get("Origin"), "/")
	if origin == "" {
		return true
	}

	allowed := append([]string{"http://" + r.Host, "https://" + r.Host}, h.AllowedOrigins...)
	for _, a := range allowed {
		if a == "*" || origin == strings.TrimSuffix(a, "/") {
			return true
		}
	}
	return false
}

func clientIP(r *http.Request) string {
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}

// clientMessage maps service errors onto client-safe error frame text.
func clientMessage(err error) string {
	switch {
	case errors.Is(err, connections.ErrTargetNotFound):
		return "user not found"
	case errors.Is(err, connections.ErrDuplicateRequest):
		return "connection request already sent"
	case errors.Is(err, connections.ErrRequestNotFound):
		return "connection request not found"
	case errors.Is(err, connections.ErrSelfRequest):
		return "cannot send a connection request to yourself"
	default:
		return "internal error"
	}
}
