package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/taleweave/backend/internal/apperror"
	"github.com/taleweave/backend/internal/logging"
	"github.com/taleweave/backend/internal/repositories"
)

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// respondError maps category sentinels to HTTP statuses and renders the
// uniform error body. Unknown errors become 500 without leaking detail.
func respondError(ctx context.Context, w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := "internal"
	message := "something went wrong"

	switch {
	case errors.Is(err, apperror.ErrInvalidInput):
		status, kind = http.StatusBadRequest, "invalid_input"
	case errors.Is(err, apperror.ErrUnauthenticated):
		status, kind = http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, apperror.ErrForbidden):
		status, kind = http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrNotFound), errors.Is(err, repositories.ErrNotFound):
		status, kind, message = http.StatusNotFound, "not_found", "resource not found"
	case errors.Is(err, repositories.ErrConflict):
		status, kind, message = http.StatusConflict, "conflict", "resource already exists"
	case errors.Is(err, apperror.ErrUpstream):
		kind, message = "upstream", "an external service failed"
	default:
		logging.FromContext(ctx).Error("unhandled error", "error", err)
	}

	var appErr *apperror.Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		message = appErr.Message
	}

	respondJSON(ctx, w, status, errorBody{Error: kind, Message: message})
}

func respondRateLimited(ctx context.Context, w http.ResponseWriter, message string) {
	respondJSON(ctx, w, http.StatusTooManyRequests, errorBody{Error: "rate_limited", Message: message})
}
