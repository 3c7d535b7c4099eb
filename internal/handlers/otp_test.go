package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/taleweave/backend/internal/otp"
)

type fakeOTPService struct {
	sendErr   error
	verifyErr error
	sentTo    []string
	verified  []string
}

func (f *fakeOTPService) Send(_ context.Context, email string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sentTo = append(f.sentTo, email)
	return nil
}

func (f *fakeOTPService) Verify(_ context.Context, email, _ string) error {
	if f.verifyErr != nil {
		return f.verifyErr
	}
	f.verified = append(f.verified, email)
	return nil
}

type denyingLimiter struct{}

func (denyingLimiter) Allow(string) bool { return false }

func TestOTPHandlerSend(t *testing.T) {
	service := &fakeOTPService{}
	handler := OTPHandler{OTP: service}

	req := httptest.NewRequest(http.MethodPost, "/send-otp", bytes.NewReader([]byte(`{"email":"Reader@Example.com"}`)))
	rec := httptest.NewRecorder()

	handler.Send(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status %d got %d", http.StatusAccepted, rec.Code)
	}
	if len(service.sentTo) != 1 || service.sentTo[0] != "reader@example.com" {
		t.Fatalf("expected normalized recipient, got %v", service.sentTo)
	}
}

func TestOTPHandlerSendFailures(t *testing.T) {
	cases := []struct {
		name       string
		handler    OTPHandler
		body       []byte
		wantStatus int
	}{
		{"badJSON", OTPHandler{OTP: &fakeOTPService{}}, []byte("{"), http.StatusBadRequest},
		{"missingEmail", OTPHandler{OTP: &fakeOTPService{}}, []byte(`{}`), http.StatusBadRequest},
		{"invalidEmail", OTPHandler{OTP: &fakeOTPService{sendErr: otp.ErrInvalidEmail}}, []byte(`{"email":"not-an-address"}`), http.StatusBadRequest},
		{"rateLimited", OTPHandler{OTP: &fakeOTPService{}, Limiter: denyingLimiter{}}, []byte(`{"email":"a@b.test"}`), http.StatusTooManyRequests},
		{"relayDown", OTPHandler{OTP: &fakeOTPService{sendErr: otp.ErrSendFailed}}, []byte(`{"email":"a@b.test"}`), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/send-otp", bytes.NewReader(tc.body))
			rec := httptest.NewRecorder()

			tc.handler.Send(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d got %d", tc.wantStatus, rec.Code)
			}
		})
	}
}

func TestOTPHandlerVerify(t *testing.T) {
	service := &fakeOTPService{}
	handler := OTPHandler{OTP: service}

	req := httptest.NewRequest(http.MethodPost, "/verify-otp", bytes.NewReader([]byte(`{"email":"a@b.test","code":"123456"}`)))
	rec := httptest.NewRecorder()

	handler.Verify(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d", http.StatusOK, rec.Code)
	}
	if len(service.verified) != 1 {
		t.Fatalf("expected verification call, got %v", service.verified)
	}
}

func TestOTPHandlerVerifyFailures(t *testing.T) {
	body := []byte(`{"email":"a@b.test","code":"123456"}`)

	cases := []struct {
		name       string
		handler    OTPHandler
		body       []byte
		wantStatus int
	}{
		{"badJSON", OTPHandler{OTP: &fakeOTPService{}}, []byte("{"), http.StatusBadRequest},
		{"missingFields", OTPHandler{OTP: &fakeOTPService{}}, []byte(`{"email":"a@b.test"}`), http.StatusBadRequest},
		{"noCode", OTPHandler{OTP: &fakeOTPService{verifyErr: otp.ErrNoCode}}, body, http.StatusNotFound},
		{"expired", OTPHandler{OTP: &fakeOTPService{verifyErr: otp.ErrExpired}}, body, http.StatusBadRequest},
		{"mismatch", OTPHandler{OTP: &fakeOTPService{verifyErr: otp.ErrMismatch}}, body, http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/verify-otp", bytes.NewReader(tc.body))
			rec := httptest.NewRecorder()

			tc.handler.Verify(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d got %d", tc.wantStatus, rec.Code)
			}
		})
	}
}
