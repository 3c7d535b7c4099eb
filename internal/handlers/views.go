package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/taleweave/backend/internal/models"
)

// storyView is the wire shape of a story. Media URLs render as null when
// absent; likes, bookmarks and comments render as [], never null.
type storyView struct {
	ID           string        `json:"id"`
	AuthorID     string        `json:"authorId"`
	AuthorName   string        `json:"authorName"`
	AuthorAvatar string        `json:"authorAvatar"`
	Title        string        `json:"title"`
	Content      string        `json:"content"`
	Category     string        `json:"category"`
	ImageURL     *string       `json:"imageUrl"`
	AudioURL     *string       `json:"audioUrl"`
	VideoURL     *string       `json:"videoUrl"`
	Likes        []string      `json:"likes"`
	Bookmarks    []string      `json:"bookmarks"`
	Comments     []commentView `json:"comments"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

type commentView struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	AuthorName string    `json:"authorName"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
}

type userView struct {
	ID         string    `json:"id"`
	IdentityID string    `json:"identityId"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	AvatarURL  string    `json:"avatarUrl"`
	Bio        string    `json:"bio"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type progressView struct {
	StoryID   string    `json:"storyId"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func newUserView(user models.User) userView {
	return userView{
		ID:         user.ID,
		IdentityID: user.IdentityID,
		Name:       user.Name,
		Email:      user.Email,
		AvatarURL:  user.AvatarURL,
		Bio:        user.Bio,
		CreatedAt:  user.CreatedAt,
		UpdatedAt:  user.UpdatedAt,
	}
}

func newProgressView(p models.Progress) progressView {
	return progressView{StoryID: p.StoryID, Value: p.Value, UpdatedAt: p.UpdatedAt}
}

// projectStories renders stories with author name and avatar resolved
// against the live users table in one batch. References to users that no
// longer exist fall back to the "Unknown" placeholder.
func projectStories(ctx context.Context, users UserStore, stories []models.Story) ([]storyView, error) {
	ids := make(map[string]struct{})
	for _, story := range stories {
		ids[story.AuthorID] = struct{}{}
		for _, comment := range story.Comments {
			ids[comment.UserID] = struct{}{}
		}
	}

	lookup := make([]string, 0, len(ids))
	for id := range ids {
		lookup = append(lookup, id)
	}

	profiles, err := users.ProfilesByIDs(ctx, lookup)
	if err != nil {
		return nil, fmt.Errorf("resolve author profiles: %w", err)
	}

	views := make([]storyView, 0, len(stories))
	for _, story := range stories {
		views = append(views, projectStory(story, profiles))
	}
	return views, nil
}

func projectOneStory(ctx context.Context, users UserStore, story models.Story) (storyView, error) {
	views, err := projectStories(ctx, users, []models.Story{story})
	if err != nil {
		return storyView{}, err
	}
	return views[0], nil
}

func projectStory(story models.Story, profiles map[string]models.User) storyView {
	view := storyView{
		ID:           story.ID,
		AuthorID:     story.AuthorID,
		AuthorName:   story.AuthorName,
		AuthorAvatar: story.AuthorAvatar,
		Title:        story.Title,
		Content:      story.Body,
		Category:     story.Category,
		ImageURL:     nullableURL(story.ImageURL),
		AudioURL:     nullableURL(story.AudioURL),
		VideoURL:     nullableURL(story.VideoURL),
		Likes:        emptyIfNil(story.Likes),
		Bookmarks:    emptyIfNil(story.Bookmarks),
		Comments:     make([]commentView, 0, len(story.Comments)),
		CreatedAt:    story.CreatedAt,
		UpdatedAt:    story.UpdatedAt,
	}

	if author, ok := profiles[story.AuthorID]; ok {
		view.AuthorName = author.Name
		view.AuthorAvatar = author.AvatarURL
	}
	if view.AuthorName == "" {
		view.AuthorName = models.UnknownAuthor
	}

	for _, comment := range story.Comments {
		name := models.UnknownAuthor
		if author, ok := profiles[comment.UserID]; ok && author.Name != "" {
			name = author.Name
		}
		view.Comments = append(view.Comments, commentView{
			ID:         comment.ID,
			UserID:     comment.UserID,
			AuthorName: name,
			Content:    comment.Body,
			CreatedAt:  comment.CreatedAt,
		})
	}

	return view
}

func nullableURL(url string) *string {
	if url == "" {
		return nil
	}
	return &url
}

func emptyIfNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
