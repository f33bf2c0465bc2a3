package app

import (
	"log/slog"
	"time"

	"github.com/linkup/backend/internal/auth"
	"github.com/linkup/backend/internal/config"
	"github.com/linkup/backend/internal/connections"
	"github.com/linkup/backend/internal/db"
	"github.com/linkup/backend/internal/handlers"
	"github.com/linkup/backend/internal/middleware"
	"github.com/linkup/backend/internal/realtime"
	"github.com/linkup/backend/internal/repositories"
)

// buildDependencies wires together concrete implementations used by the HTTP
// handlers and the live protocol.
func buildDependencies(pool db.Pool, cfg config.Config) handlers.Dependencies {
	users := repositories.NewPostgresUserRepository(pool)
	conns := repositories.NewPostgresConnectionRepository(pool)
	sessionStore := repositories.NewPostgresSessionStore(pool)

	manager := auth.NewManager(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL, sessionStore)

	registry := realtime.NewRegistry()
	dispatcher := realtime.NewDispatcher(registry, slog.Default())

	service := connections.NewService(users, conns, dispatcher)

	limiter := middleware.NewKeyRateLimiter(cfg.AuthRateLimit, cfg.AuthRateWindow, cfg.AuthRateLimit, 10*time.Minute)

	live := &realtime.Handler{
		Registry:       registry,
		Connections:    service,
		Identity:       manager,
		Limiter:        limiter,
		AllowedOrigins: cfg.AllowedOrigins,
	}

	return handlers.Dependencies{
		Users:       users,
		Sessions:    manager,
		Verifier:    manager,
		Connections: service,
		Live:        live,
		Limiter:     limiter,
	}
}
