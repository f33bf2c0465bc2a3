package repositories

import (
	"context"

	"github.com/linkup/backend/internal/models"
)

// UserRepository defines the data access contract for users.
type UserRepository interface {
	Create(ctx context.Context, user models.User) error
	FindByUsername(ctx context.Context, username string) (models.User, error)
	UsernamesExcept(ctx context.Context, userID string) ([]string, error)
}
