package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/taleweave/backend/internal/apperror"
	"github.com/taleweave/backend/internal/logging"
	"github.com/taleweave/backend/internal/otp"
)

// OTPHandler implements email verification endpoints.
type OTPHandler struct {
	OTP     OTPService
	Limiter RateLimiter
}

// Send handles POST /send-otp with JSON {email}. Guarded by a keyed rate
// limiter on both client IP and target email.
func (h OTPHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req otpSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid send-otp payload", "error", err)
		respondError(ctx, w, apperror.InvalidInput("invalid request body"))
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" {
		respondError(ctx, w, apperror.InvalidInput("email is required"))
		return
	}

	if !allowOTPSend(h.Limiter, r, req.Email) {
		logger.Warn("otp send rate limited", "email", req.Email)
		respondRateLimited(ctx, w, "too many verification requests, try again later")
		return
	}

	if err := h.OTP.Send(ctx, req.Email); err != nil {
		switch {
		case errors.Is(err, otp.ErrInvalidEmail):
			respondError(ctx, w, apperror.InvalidInput("invalid email address"))
		case errors.Is(err, otp.ErrSendFailed):
			logger.Error("otp delivery failed", "error", err, "email", req.Email)
			respondError(ctx, w, apperror.Upstream("could not send verification email", err))
		default:
			logger.Error("otp generation failed", "error", err)
			respondError(ctx, w, err)
		}
		return
	}

	respondJSON(ctx, w, http.StatusAccepted, map[string]string{"status": "verification code sent"})
}

// Verify handles POST /verify-otp with JSON {email, code}.
func (h OTPHandler) Verify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req otpVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid verify-otp payload", "error", err)
		respondError(ctx, w, apperror.InvalidInput("invalid request body"))
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Code = strings.TrimSpace(req.Code)
	if req.Email == "" || req.Code == "" {
		respondError(ctx, w, apperror.InvalidInput("email and code are required"))
		return
	}

	if err := h.OTP.Verify(ctx, req.Email, req.Code); err != nil {
		switch {
		case errors.Is(err, otp.ErrNoCode):
			respondError(ctx, w, apperror.NotFound("verification code for", req.Email))
		case errors.Is(err, otp.ErrExpired):
			respondError(ctx, w, apperror.InvalidInput("code has expired, request a new one"))
		case errors.Is(err, otp.ErrMismatch):
			respondError(ctx, w, apperror.InvalidInput("code does not match"))
		default:
			logger.Error("otp verification failed", "error", err)
			respondError(ctx, w, err)
		}
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": "verified"})
}

type otpSendRequest struct {
	Email string `json:"email"`
}

type otpVerifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}
