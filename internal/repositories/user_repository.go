package repositories

import (
	"context"

	"github.com/taleweave/backend/internal/models"
)

// UserRepository defines the data access contract for locally mirrored users.
type UserRepository interface {
	Create(ctx context.Context, user models.User) error
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByIdentityID(ctx context.Context, identityID string) (models.User, error)
	Update(ctx context.Context, user models.User) error
	// ProfilesByIDs resolves display name and avatar for the given local
	// user ids. Missing ids are simply absent from the result map.
	ProfilesByIDs(ctx context.Context, ids []string) (map[string]models.User, error)
	// DeleteCascade removes the user together with every story they
	// authored, their identity-id in all like/bookmark sets, and every
	// comment they wrote, atomically.
	DeleteCascade(ctx context.Context, user models.User) error
}
