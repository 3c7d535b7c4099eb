package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/taleweave/backend/internal/apperror"
	"github.com/taleweave/backend/internal/logging"
	"github.com/taleweave/backend/internal/middleware"
	"github.com/taleweave/backend/internal/models"
)

const (
	maxUploadBytes    = 128 << 20 // request cap, dominated by video uploads
	multipartMemLimit = 32 << 20
)

// StoryHandler implements story CRUD and engagement endpoints.
type StoryHandler struct {
	Stories StoryStore
	Users   UserStore
	Media   MediaStore
	Metrics MediaMetrics
	NowFunc func() time.Time
}

// List handles GET /stories. Public; newest first.
func (h StoryHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stories, err := h.Stories.ListAll(ctx)
	if err != nil {
		logging.FromContext(ctx).Error("listing stories failed", "error", err)
		respondError(ctx, w, err)
		return
	}

	views, err := projectStories(ctx, h.Users, stories)
	if err != nil {
		logging.FromContext(ctx).Error("projecting stories failed", "error", err)
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, views)
}

// ListByAuthor handles GET /stories/user/{id}.
func (h StoryHandler) ListByAuthor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	authorID := chi.URLParam(r, "id")
	stories, err := h.Stories.ListByAuthor(ctx, authorID)
	if err != nil {
		logging.FromContext(ctx).Error("listing author stories failed", "error", err, "authorId", authorID)
		respondError(ctx, w, err)
		return
	}

	views, err := projectStories(ctx, h.Users, stories)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, views)
}

// ListBookmarked handles GET /stories/bookmarked for the calling user.
func (h StoryHandler) ListBookmarked(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller, ok := middleware.UserFromContext(ctx)
	if !ok {
		respondError(ctx, w, apperror.Unauthenticated("no authenticated caller"))
		return
	}

	stories, err := h.Stories.ListBookmarkedBy(ctx, caller.IdentityID)
	if err != nil {
		logging.FromContext(ctx).Error("listing bookmarked stories failed", "error", err)
		respondError(ctx, w, err)
		return
	}

	views, err := projectStories(ctx, h.Users, stories)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, views)
}

// Create handles POST /stories. Multipart: title, content, category plus
// optional image/audio/video files.
func (h StoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	caller, ok := middleware.UserFromContext(ctx)
	if !ok {
		respondError(ctx, w, apperror.Unauthenticated("no authenticated caller"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemLimit); err != nil {
		logger.Warn("invalid multipart payload", "error", err)
		respondError(ctx, w, apperror.InvalidInput("expected multipart form data"))
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	content := strings.TrimSpace(r.FormValue("content"))
	category := strings.TrimSpace(r.FormValue("category"))
	if title == "" || content == "" || category == "" {
		respondError(ctx, w, apperror.InvalidInput("title, content and category are required"))
		return
	}

	now := h.now()
	story := models.Story{
		ID:           uuid.NewString(),
		AuthorID:     caller.ID,
		AuthorName:   caller.Name,
		AuthorAvatar: caller.AvatarURL,
		Title:        title,
		Body:         content,
		Category:     category,
		Likes:        []string{},
		Bookmarks:    []string{},
		Comments:     []models.Comment{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if ok := h.collectMedia(w, r, &story); !ok {
		return
	}

	if err := h.Stories.Create(ctx, story); err != nil {
		logger.Error("creating story failed", "error", err, "storyId", story.ID)
		respondError(ctx, w, err)
		return
	}

	view, err := projectOneStory(ctx, h.Users, story)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusCreated, view)
}

// Update handles PUT /stories/{id}. Partial multipart: empty fields keep
// their current values, present files replace the stored media URL.
func (h StoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	caller, ok := middleware.UserFromContext(ctx)
	if !ok {
		respondError(ctx, w, apperror.Unauthenticated("no authenticated caller"))
		return
	}

	storyID := chi.URLParam(r, "id")
	story, err := h.Stories.FindByID(ctx, storyID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	if story.AuthorID != caller.ID {
		respondError(ctx, w, apperror.Forbidden("only the author may edit this story"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemLimit); err != nil {
		logger.Warn("invalid multipart payload", "error", err)
		respondError(ctx, w, apperror.InvalidInput("expected multipart form data"))
		return
	}

	if title := strings.TrimSpace(r.FormValue("title")); title != "" {
		story.Title = title
	}
	if content := strings.TrimSpace(r.FormValue("content")); content != "" {
		story.Body = content
	}
	if category := strings.TrimSpace(r.FormValue("category")); category != "" {
		story.Category = category
	}

	if ok := h.collectMedia(w, r, &story); !ok {
		return
	}

	story.UpdatedAt = h.now()

	if err := h.Stories.Update(ctx, story); err != nil {
		logger.Error("updating story failed", "error", err, "storyId", story.ID)
		respondError(ctx, w, err)
		return
	}

	view, err := projectOneStory(ctx, h.Users, story)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, view)
}

// Delete handles DELETE /stories/{id}.
func (h StoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller, ok := middleware.UserFromContext(ctx)
	if !ok {
		respondError(ctx, w, apperror.Unauthenticated("no authenticated caller"))
		return
	}

	storyID := chi.URLParam(r, "id")
	story, err := h.Stories.FindByID(ctx, storyID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	if story.AuthorID != caller.ID {
		respondError(ctx, w, apperror.Forbidden("only the author may delete this story"))
		return
	}

	if err := h.Stories.Delete(ctx, storyID); err != nil {
		logging.FromContext(ctx).Error("deleting story failed", "error", err, "storyId", storyID)
		respondError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ToggleLike handles POST /stories/{id}/like.
func (h StoryHandler) ToggleLike(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.Stories.ToggleLike)
}

// ToggleBookmark handles POST /stories/{id}/bookmark.
func (h StoryHandler) ToggleBookmark(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.Stories.ToggleBookmark)
}

func (h StoryHandler) toggle(w http.ResponseWriter, r *http.Request, flip func(ctx context.Context, storyID, identityID string, at time.Time) error) {
	ctx := r.Context()

	caller, ok := middleware.UserFromContext(ctx)
	if !ok {
		respondError(ctx, w, apperror.Unauthenticated("no authenticated caller"))
		return
	}

	storyID := chi.URLParam(r, "id")
	if err := flip(ctx, storyID, caller.IdentityID, h.now()); err != nil {
		respondError(ctx, w, err)
		return
	}

	story, err := h.Stories.FindByID(ctx, storyID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	view, err := projectOneStory(ctx, h.Users, story)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, view)
}

// AddComment handles POST /stories/{id}/comment with JSON {content}.
func (h StoryHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	caller, ok := middleware.UserFromContext(ctx)
	if !ok {
		respondError(ctx, w, apperror.Unauthenticated("no authenticated caller"))
		return
	}

	var req commentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid comment payload", "error", err)
		respondError(ctx, w, apperror.InvalidInput("invalid request body"))
		return
	}

	req.Content = strings.TrimSpace(req.Content)
	if req.Content == "" {
		respondError(ctx, w, apperror.InvalidInput("comment content is required"))
		return
	}

	storyID := chi.URLParam(r, "id")
	comment := models.Comment{
		ID:         uuid.NewString(),
		UserID:     caller.ID,
		AuthorName: caller.Name,
		Body:       req.Content,
		CreatedAt:  h.now(),
	}

	if err := h.Stories.AppendComment(ctx, storyID, comment, comment.CreatedAt); err != nil {
		respondError(ctx, w, err)
		return
	}

	story, err := h.Stories.FindByID(ctx, storyID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	view, err := projectOneStory(ctx, h.Users, story)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusCreated, view)
}

// DeleteComment handles DELETE /stories/{storyID}/comment/{commentID}.
// Only the comment's author may remove it.
func (h StoryHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller, ok := middleware.UserFromContext(ctx)
	if !ok {
		respondError(ctx, w, apperror.Unauthenticated("no authenticated caller"))
		return
	}

	storyID := chi.URLParam(r, "storyID")
	commentID := chi.URLParam(r, "commentID")

	story, err := h.Stories.FindByID(ctx, storyID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	remaining := make([]models.Comment, 0, len(story.Comments))
	var target *models.Comment
	for i := range story.Comments {
		if story.Comments[i].ID == commentID {
			target = &story.Comments[i]
			continue
		}
		remaining = append(remaining, story.Comments[i])
	}

	if target == nil {
		respondError(ctx, w, apperror.NotFound("comment", commentID))
		return
	}
	if target.UserID != caller.ID {
		respondError(ctx, w, apperror.Forbidden("only the comment author may delete it"))
		return
	}

	at := h.now()
	if err := h.Stories.ReplaceComments(ctx, storyID, remaining, at); err != nil {
		respondError(ctx, w, err)
		return
	}

	story.Comments = remaining
	story.UpdatedAt = at

	view, err := projectOneStory(ctx, h.Users, story)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, view)
}

// collectMedia uploads any files present under the image/audio/video form
// fields and writes the resulting URLs onto the story. It responds on
// failure and reports whether the caller may continue.
func (h StoryHandler) collectMedia(w http.ResponseWriter, r *http.Request, story *models.Story) bool {
	ctx := r.Context()

	fields := []struct {
		name   string
		folder string
		dest   *string
	}{
		{"image", models.MediaFolderImages, &story.ImageURL},
		{"audio", models.MediaFolderAudio, &story.AudioURL},
		{"video", models.MediaFolderVideos, &story.VideoURL},
	}

	for _, field := range fields {
		file, header, err := r.FormFile(field.name)
		if err != nil {
			if errors.Is(err, http.ErrMissingFile) {
				continue
			}
			respondError(ctx, w, apperror.InvalidInput("unreadable "+field.name+" upload"))
			return false
		}

		url, err := h.Media.Upload(ctx, field.folder, header.Filename, file)
		file.Close()
		if h.Metrics != nil {
			h.Metrics.RecordMediaUpload(field.folder, err == nil)
		}
		if err != nil {
			logging.FromContext(ctx).Error("media upload failed", "error", err, "folder", field.folder)
			respondError(ctx, w, apperror.Upstream("storing "+field.name+" failed", err))
			return false
		}

		*field.dest = url
	}

	return true
}

type commentRequest struct {
	Content string `json:"content"`
}

func (h StoryHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}
