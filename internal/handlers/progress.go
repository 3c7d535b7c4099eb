package handlers

import (
	"encoding/json"
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

// ProgressHandler implements per-user story progress endpoints.
type ProgressHandler struct {
	Progress ProgressStore
	NowFunc  func() time.Time
}

// Report handles POST /progress with JSON {storyId, value}. One marker per
// (user, story); reporting again overwrites it.
func (h ProgressHandler) Report(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	caller, ok := middleware.UserFromContext(ctx)
	if !ok {
		respondError(ctx, w, apperror.Unauthenticated("no authenticated caller"))
		return
	}

	var req progressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid progress payload", "error", err)
		respondError(ctx, w, apperror.InvalidInput("invalid request body"))
		return
	}

	req.StoryID = strings.TrimSpace(req.StoryID)
	if req.StoryID == "" {
		respondError(ctx, w, apperror.InvalidInput("storyId is required"))
		return
	}

	record := models.Progress{
		ID:        uuid.NewString(),
		UserID:    caller.ID,
		StoryID:   req.StoryID,
		Value:     req.Value,
		UpdatedAt: h.now(),
	}

	if err := h.Progress.Upsert(ctx, record); err != nil {
		logger.Error("storing progress failed", "error", err, "storyId", req.StoryID)
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, newProgressView(record))
}

// List handles GET /progress for the calling user.
func (h ProgressHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller, ok := middleware.UserFromContext(ctx)
	if !ok {
		respondError(ctx, w, apperror.Unauthenticated("no authenticated caller"))
		return
	}

	h.respondList(w, r, caller.ID)
}

// ListForUser handles GET /progress/{userID}.
func (h ProgressHandler) ListForUser(w http.ResponseWriter, r *http.Request) {
	h.respondList(w, r, chi.URLParam(r, "userID"))
}

func (h ProgressHandler) respondList(w http.ResponseWriter, r *http.Request, userID string) {
	ctx := r.Context()

	records, err := h.Progress.ListForUser(ctx, userID)
	if err != nil {
		logging.FromContext(ctx).Error("listing progress failed", "error", err, "userId", userID)
		respondError(ctx, w, err)
		return
	}

	views := make([]progressView, 0, len(records))
	for _, record := range records {
		views = append(views, newProgressView(record))
	}

	respondJSON(ctx, w, http.StatusOK, views)
}

type progressRequest struct {
	StoryID string `json:"storyId"`
	Value   string `json:"value"`
}

func (h ProgressHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}
