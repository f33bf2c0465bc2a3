package handlers

import "net/http"

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{}
	auth := AuthHandler{Users: deps.Users, Sessions: deps.Sessions, Limiter: deps.Limiter}
	conns := ConnectionHandler{Connections: deps.Connections}

	mux.HandleFunc("/healthz", health.Handle)
	mux.HandleFunc("/api/v1/auth/register", auth.Register)
	mux.HandleFunc("/api/v1/auth/login", auth.Login)
	mux.HandleFunc("/api/v1/auth/refresh", auth.Refresh)
	mux.Handle("/api/v1/connections", RequireIdentity(deps.Verifier, conns.List))
	mux.Handle("/api/v1/connections/request", RequireIdentity(deps.Verifier, conns.SendRequest))
	mux.Handle("/api/v1/connections/approve", RequireIdentity(deps.Verifier, conns.Approve))
	mux.Handle("/api/v1/connections/reject", RequireIdentity(deps.Verifier, conns.Reject))

	if deps.Live != nil {
		mux.Handle("/ws", deps.Live)
	}
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Users       UserStore
	Sessions    SessionManager
	Verifier    TokenVerifier
	Connections ConnectionService
	Live        http.Handler
	Limiter     RateLimiter
}
