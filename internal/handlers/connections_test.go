package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/linkup/backend/internal/auth"
	"github.com/linkup/backend/internal/connections"
	"github.com/linkup/backend/internal/models"
)

type stubConnectionService struct {
	sendErr    error
	approveErr error
	rejectErr  error
	viewsErr   error

	calls []string
	views models.UserViews
}

func (s *stubConnectionService) Send(_ context.Context, caller auth.Identity, receiver string) error {
	s.calls = append(s.calls, "send:"+caller.Username+">"+receiver)
	return s.sendErr
}

func (s *stubConnectionService) Approve(_ context.Context, caller auth.Identity, sender string) error {
	s.calls = append(s.calls, "approve:"+caller.Username+"<"+sender)
	return s.approveErr
}

func (s *stubConnectionService) Reject(_ context.Context, caller auth.Identity, sender string) error {
	s.calls = append(s.calls, "reject:"+caller.Username+"<"+sender)
	return s.rejectErr
}

func (s *stubConnectionService) Views(_ context.Context, _ auth.Identity) (models.UserViews, error) {
	return s.views, s.viewsErr
}

type stubVerifier struct {
	identity auth.Identity
	err      error
	token    string
}

func (v *stubVerifier) Verify(_ context.Context, credential string) (auth.Identity, error) {
	v.token = credential
	if v.err != nil {
		return auth.Identity{}, v.err
	}
	return v.identity, nil
}

var testCaller = auth.Identity{ID: "user-1", Username: "alice"}

func TestListReturnsViews(t *testing.T) {
	service := &stubConnectionService{views: models.UserViews{
		Users:             []string{"bob", "carol"},
		SentRequests:      []string{"bob"},
		PendingRequests:   []string{},
		MutualConnections: []string{"carol"},
	}}
	handler := ConnectionHandler{Connections: service}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/connections", nil)
	rec := httptest.NewRecorder()
	handler.List(rec, req, testCaller)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	body := decodeBody(t, rec)
	users, ok := body["users"].([]any)
	if !ok || len(users) != 2 {
		t.Fatalf("expected two users, got %v", body["users"])
	}
	if mutual, ok := body["mutual_connections"].([]any); !ok || len(mutual) != 1 || mutual[0] != "carol" {
		t.Fatalf("expected mutual connections [carol], got %v", body["mutual_connections"])
	}
}

func TestListRejectsNonGet(t *testing.T) {
	handler := ConnectionHandler{Connections: &stubConnectionService{}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/connections", nil)
	rec := httptest.NewRecorder()
	handler.List(rec, req, testCaller)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestSendRequestCallsService(t *testing.T) {
	service := &stubConnectionService{}
	handler := ConnectionHandler{Connections: service}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/connections/request", strings.NewReader(`{"receiver":"bob"}`))
	rec := httptest.NewRecorder()
	handler.SendRequest(rec, req, testCaller)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(service.calls) != 1 || service.calls[0] != "send:alice>bob" {
		t.Fatalf("unexpected service calls: %v", service.calls)
	}
}

func TestSendRequestErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"self request", connections.ErrSelfRequest, http.StatusBadRequest},
		{"unknown receiver", connections.ErrTargetNotFound, http.StatusNotFound},
		{"duplicate", connections.ErrDuplicateRequest, http.StatusConflict},
		{"store failure", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := ConnectionHandler{Connections: &stubConnectionService{sendErr: tc.err}}

			req := httptest.NewRequest(http.MethodPost, "/api/v1/connections/request", strings.NewReader(`{"receiver":"bob"}`))
			rec := httptest.NewRecorder()
			handler.SendRequest(rec, req, testCaller)

			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestSendRequestValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{`},
		{"missing receiver", `{}`},
		{"blank receiver", `{"receiver":"  "}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			service := &stubConnectionService{}
			handler := ConnectionHandler{Connections: service}

			req := httptest.NewRequest(http.MethodPost, "/api/v1/connections/request", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			handler.SendRequest(rec, req, testCaller)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
			if len(service.calls) != 0 {
				t.Fatalf("expected no service calls, got %v", service.calls)
			}
		})
	}
}

func TestApproveCallsService(t *testing.T) {
	service := &stubConnectionService{}
	handler := ConnectionHandler{Connections: service}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/connections/approve", strings.NewReader(`{"sender":"bob"}`))
	rec := httptest.NewRecorder()
	handler.Approve(rec, req, testCaller)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(service.calls) != 1 || service.calls[0] != "approve:alice<bob" {
		t.Fatalf("unexpected service calls: %v", service.calls)
	}
}

func TestApproveUnknownRequest(t *testing.T) {
	handler := ConnectionHandler{Connections: &stubConnectionService{approveErr: connections.ErrRequestNotFound}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/connections/approve", strings.NewReader(`{"sender":"bob"}`))
	rec := httptest.NewRecorder()
	handler.Approve(rec, req, testCaller)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRejectCallsService(t *testing.T) {
	service := &stubConnectionService{}
	handler := ConnectionHandler{Connections: service}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/connections/reject", strings.NewReader(`{"sender":"bob"}`))
	rec := httptest.NewRecorder()
	handler.Reject(rec, req, testCaller)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(service.calls) != 1 || service.calls[0] != "reject:alice<bob" {
		t.Fatalf("unexpected service calls: %v", service.calls)
	}
}

func TestRequireIdentityPassesIdentityThrough(t *testing.T) {
	verifier := &stubVerifier{identity: testCaller}

	var got auth.Identity
	wrapped := RequireIdentity(verifier, func(w http.ResponseWriter, _ *http.Request, caller auth.Identity) {
		got = caller
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/connections", nil)
	req.Header.Set("Authorization", "Bearer some-access-token")
	rec := httptest.NewRecorder()
	wrapped(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected wrapped handler to run, got %d", rec.Code)
	}
	if got != testCaller {
		t.Fatalf("expected identity %+v, got %+v", testCaller, got)
	}
	if verifier.token != "some-access-token" {
		t.Fatalf("expected bearer token to reach verifier, got %q", verifier.token)
	}
}

func TestRequireIdentityRejectsBadTokens(t *testing.T) {
	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic abc"},
		{"invalid token", "Bearer bad"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			verifier := &stubVerifier{err: auth.ErrInvalidCredential}
			wrapped := RequireIdentity(verifier, func(http.ResponseWriter, *http.Request, auth.Identity) {
				t.Fatal("wrapped handler must not run")
			})

			req := httptest.NewRequest(http.MethodGet, "/api/v1/connections", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			wrapped(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
			if body := decodeBody(t, rec); body["error"] != "unauthenticated" {
				t.Fatalf("unexpected body: %v", body)
			}
		})
	}
}
