package repositories

import (
	"context"
	"time"

	"github.com/taleweave/backend/internal/models"
)

// StoryRepository defines data access for stories and their embedded
// engagement state.
type StoryRepository interface {
	Create(ctx context.Context, story models.Story) error
	FindByID(ctx context.Context, id string) (models.Story, error)
	ListAll(ctx context.Context) ([]models.Story, error)
	ListByAuthor(ctx context.Context, authorID string) ([]models.Story, error)
	ListBookmarkedBy(ctx context.Context, identityID string) ([]models.Story, error)
	Update(ctx context.Context, story models.Story) error
	Delete(ctx context.Context, id string) error
	// ToggleLike flips the identity-id's membership in the story's like
	// set as a single statement, so concurrent toggles serialize in the
	// database instead of racing read-modify-write.
	ToggleLike(ctx context.Context, storyID, identityID string, at time.Time) error
	ToggleBookmark(ctx context.Context, storyID, identityID string, at time.Time) error
	AppendComment(ctx context.Context, storyID string, comment models.Comment, at time.Time) error
	ReplaceComments(ctx context.Context, storyID string, comments []models.Comment, at time.Time) error
}
