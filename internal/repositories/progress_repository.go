package repositories

import (
	"context"

	"github.com/taleweave/backend/internal/models"
)

// ProgressRepository defines data access for per-user story progress markers.
type ProgressRepository interface {
	// Upsert creates the (user, story) marker or overwrites its value and
	// timestamp when one already exists.
	Upsert(ctx context.Context, progress models.Progress) error
	ListForUser(ctx context.Context, userID string) ([]models.Progress, error)
}
