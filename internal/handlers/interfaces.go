package handlers

import (
	"context"

	"github.com/linkup/backend/internal/auth"
	"github.com/linkup/backend/internal/models"
)

// UserStore captures the persistence operations required by the auth handlers.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByUsername(ctx context.Context, username string) (models.User, error)
}

// SessionManager issues and refreshes authentication tokens for users.
type SessionManager interface {
	Issue(ctx context.Context, identity auth.Identity) (models.SessionTokens, error)
	Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error)
}

// TokenVerifier resolves a bearer token to an authenticated identity.
type TokenVerifier interface {
	Verify(ctx context.Context, credential string) (auth.Identity, error)
}

// ConnectionService captures the state-machine operations behind the
// synchronous endpoints.
type ConnectionService interface {
	Send(ctx context.Context, caller auth.Identity, receiverUsername string) error
	Approve(ctx context.Context, caller auth.Identity, senderUsername string) error
	Reject(ctx context.Context, caller auth.Identity, senderUsername string) error
	Views(ctx context.Context, caller auth.Identity) (models.UserViews, error)
}
