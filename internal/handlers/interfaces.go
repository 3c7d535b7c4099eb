package handlers

import (
	"context"
	"io"
	"time"

	"github.com/taleweave/backend/internal/models"
)

// UserStore is the subset of the user repository required by HTTP handlers.
type UserStore interface {
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByIdentityID(ctx context.Context, identityID string) (models.User, error)
	Update(ctx context.Context, user models.User) error
	ProfilesByIDs(ctx context.Context, ids []string) (map[string]models.User, error)
	DeleteCascade(ctx context.Context, user models.User) error
}

// StoryStore is the subset of the story repository required by HTTP handlers.
type StoryStore interface {
	Create(ctx context.Context, story models.Story) error
	FindByID(ctx context.Context, id string) (models.Story, error)
	ListAll(ctx context.Context) ([]models.Story, error)
	ListByAuthor(ctx context.Context, authorID string) ([]models.Story, error)
	ListBookmarkedBy(ctx context.Context, identityID string) ([]models.Story, error)
	Update(ctx context.Context, story models.Story) error
	Delete(ctx context.Context, id string) error
	ToggleLike(ctx context.Context, storyID, identityID string, at time.Time) error
	ToggleBookmark(ctx context.Context, storyID, identityID string, at time.Time) error
	AppendComment(ctx context.Context, storyID string, comment models.Comment, at time.Time) error
	ReplaceComments(ctx context.Context, storyID string, comments []models.Comment, at time.Time) error
}

// ProgressStore is the subset of the progress repository required by HTTP handlers.
type ProgressStore interface {
	Upsert(ctx context.Context, progress models.Progress) error
	ListForUser(ctx context.Context, userID string) ([]models.Progress, error)
}

// MediaStore uploads binary media and returns a publicly reachable URL.
type MediaStore interface {
	Upload(ctx context.Context, folder, filename string, r io.Reader) (string, error)
}

// OTPService issues and verifies emailed one-time codes.
type OTPService interface {
	Send(ctx context.Context, email string) error
	Verify(ctx context.Context, email, code string) error
}

// IdentityDeleter removes an identity from the external provider.
type IdentityDeleter interface {
	DeleteIdentity(ctx context.Context, subject string) error
}

// SyncInvalidator drops a cached profile mirror after a mutation.
type SyncInvalidator interface {
	Invalidate(subject string)
}

// MediaMetrics counts media upload outcomes. A nil value disables recording.
type MediaMetrics interface {
	RecordMediaUpload(folder string, ok bool)
}
