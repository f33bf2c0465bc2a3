package repositories

import (
	"context"

	"github.com/linkup/backend/internal/models"
)

// ConnectionRepository defines data access for connection requests.
//
// Create, UpdateStatus, and Delete are the serialization points for a single
// (sender, receiver) pair: each is a single conditional statement, so two
// racing callers observe exactly one success.
type ConnectionRepository interface {
	Create(ctx context.Context, request models.ConnectionRequest) error
	Find(ctx context.Context, senderID, receiverID string) (models.ConnectionRequest, error)
	UpdateStatus(ctx context.Context, senderID, receiverID, from, to string) error
	Delete(ctx context.Context, senderID, receiverID, status string) error

	// Derived views, all returning peer usernames for the given user.
	SentPending(ctx context.Context, userID string) ([]string, error)
	ReceivedPending(ctx context.Context, userID string) ([]string, error)
	MutualConnections(ctx context.Context, userID string) ([]string, error)
}
