package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/taleweave/backend/internal/apperror"
	"github.com/taleweave/backend/internal/identity"
	"github.com/taleweave/backend/internal/logging"
	"github.com/taleweave/backend/internal/middleware"
	"github.com/taleweave/backend/internal/models"
)

// ProfileHandler implements user profile endpoints. Profiles are addressed
// by identity-provider id, matching the credential clients already hold.
type ProfileHandler struct {
	Users      UserStore
	Media      MediaStore
	Identities IdentityDeleter
	Sync       SyncInvalidator
	Metrics    MediaMetrics
	NowFunc    func() time.Time
}

// Get handles GET /users/{id}.
func (h ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identityID := chi.URLParam(r, "id")
	user, err := h.Users.FindByIdentityID(ctx, identityID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, newUserView(user))
}

// Update handles PUT /users/{id}. Self-only; multipart with optional name,
// bio and image fields, of which at least one must be present.
func (h ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	caller, ok := middleware.UserFromContext(ctx)
	if !ok {
		respondError(ctx, w, apperror.Unauthenticated("no authenticated caller"))
		return
	}

	if chi.URLParam(r, "id") != caller.IdentityID {
		respondError(ctx, w, apperror.Forbidden("profiles may only be edited by their owner"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemLimit); err != nil {
		logger.Warn("invalid multipart payload", "error", err)
		respondError(ctx, w, apperror.InvalidInput("expected multipart form data"))
		return
	}

	changed := false

	if name := strings.TrimSpace(r.FormValue("name")); name != "" {
		caller.Name = name
		changed = true
	}
	if bio := strings.TrimSpace(r.FormValue("bio")); bio != "" {
		caller.Bio = bio
		changed = true
	}

	file, header, err := r.FormFile("image")
	switch {
	case err == nil:
		url, uploadErr := h.Media.Upload(ctx, models.MediaFolderAvatars, header.Filename, file)
		file.Close()
		if h.Metrics != nil {
			h.Metrics.RecordMediaUpload(models.MediaFolderAvatars, uploadErr == nil)
		}
		if uploadErr != nil {
			logger.Error("avatar upload failed", "error", uploadErr)
			respondError(ctx, w, apperror.Upstream("storing avatar failed", uploadErr))
			return
		}
		caller.AvatarURL = url
		changed = true
	case errors.Is(err, http.ErrMissingFile):
	default:
		respondError(ctx, w, apperror.InvalidInput("unreadable image upload"))
		return
	}

	if !changed {
		respondError(ctx, w, apperror.InvalidInput("nothing to update"))
		return
	}

	caller.UpdatedAt = h.now()

	if err := h.Users.Update(ctx, caller); err != nil {
		logger.Error("updating profile failed", "error", err, "userId", caller.ID)
		respondError(ctx, w, err)
		return
	}

	if h.Sync != nil {
		h.Sync.Invalidate(caller.IdentityID)
	}

	respondJSON(ctx, w, http.StatusOK, newUserView(caller))
}

// Delete handles DELETE /users/{id}. Self-only. Local rows go first in one
// transaction, then the provider identity; if the provider call fails the
// local account is already gone and the error is surfaced.
func (h ProfileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	caller, ok := middleware.UserFromContext(ctx)
	if !ok {
		respondError(ctx, w, apperror.Unauthenticated("no authenticated caller"))
		return
	}

	if chi.URLParam(r, "id") != caller.IdentityID {
		respondError(ctx, w, apperror.Forbidden("profiles may only be deleted by their owner"))
		return
	}

	if err := h.Users.DeleteCascade(ctx, caller); err != nil {
		logger.Error("cascade delete failed", "error", err, "userId", caller.ID)
		respondError(ctx, w, err)
		return
	}

	if h.Sync != nil {
		h.Sync.Invalidate(caller.IdentityID)
	}

	if err := h.Identities.DeleteIdentity(ctx, caller.IdentityID); err != nil && !errors.Is(err, identity.ErrIdentityNotFound) {
		logger.Error("provider identity deletion failed", "error", err, "subject", caller.IdentityID)
		respondError(ctx, w, apperror.Upstream("account data removed but identity deletion failed", err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h ProfileHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}
