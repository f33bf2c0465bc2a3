package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/linkup/backend/internal/auth"
	"github.com/linkup/backend/internal/connections"
	"github.com/linkup/backend/internal/logging"
)

// ConnectionHandler exposes the connection state machine over plain HTTP.
// It shares the service (and therefore the store and the dispatcher fan-out)
// with the live protocol.
type ConnectionHandler struct {
	Connections ConnectionService
}

// List handles GET /api/v1/connections: the caller's four derived views.
func (h ConnectionHandler) List(w http.ResponseWriter, r *http.Request, caller auth.Identity) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	views, err := h.Connections.Views(ctx, caller)
	if err != nil {
		logging.FromContext(ctx).Error("compute views", "error", err, "userId", caller.ID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to load connections"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, views)
}

// SendRequest handles POST /api/v1/connections/request.
func (h ConnectionHandler) SendRequest(w http.ResponseWriter, r *http.Request, caller auth.Identity) {
	receiver, ok := h.decodePeer(w, r, "receiver")
	if !ok {
		return
	}

	ctx := r.Context()
	if err := h.Connections.Send(ctx, caller, receiver); err != nil {
		h.respondServiceError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusCreated, map[string]string{"status": "request sent"})
}

// Approve handles POST /api/v1/connections/approve.
func (h ConnectionHandler) Approve(w http.ResponseWriter, r *http.Request, caller auth.Identity) {
	sender, ok := h.decodePeer(w, r, "sender")
	if !ok {
		return
	}

	ctx := r.Context()
	if err := h.Connections.Approve(ctx, caller, sender); err != nil {
		h.respondServiceError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": "request approved"})
}

// Reject handles POST /api/v1/connections/reject.
func (h ConnectionHandler) Reject(w http.ResponseWriter, r *http.Request, caller auth.Identity) {
	sender, ok := h.decodePeer(w, r, "sender")
	if !ok {
		return
	}

	ctx := r.Context()
	if err := h.Connections.Reject(ctx, caller, sender); err != nil {
		h.respondServiceError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": "request rejected"})
}

// decodePeer reads the single-username payload shared by the mutating
// endpoints. The field name differs per operation; the shape does not.
func (h ConnectionHandler) decodePeer(w http.ResponseWriter, r *http.Request, field string) (string, bool) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return "", false
	}

	var payload map[string]string
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return "", false
	}

	peer := strings.TrimSpace(payload[field])
	if peer == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": field + " is required"})
		return "", false
	}

	return peer, true
}

func (h ConnectionHandler) respondServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, connections.ErrSelfRequest):
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "cannot send a connection request to yourself"})
	case errors.Is(err, connections.ErrTargetNotFound):
		respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "user not found"})
	case errors.Is(err, connections.ErrDuplicateRequest):
		respondJSON(ctx, w, http.StatusConflict, map[string]string{"error": "connection request already sent"})
	case errors.Is(err, connections.ErrRequestNotFound):
		respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "connection request not found"})
	default:
		logging.FromContext(ctx).Error("connection operation failed", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "operation failed"})
	}
}
