package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	mailer "github.com/taleweave/backend/internal/mail"
)

var (
	// ErrNoCode indicates no live code exists for the email.
	ErrNoCode = errors.New("no code issued for this email")
	// ErrExpired indicates the code's window has passed; the entry is gone.
	ErrExpired = errors.New("code has expired")
	// ErrMismatch indicates the submitted code is wrong. The entry survives
	// so the caller may retry within the window.
	ErrMismatch = errors.New("code does not match")
	// ErrSendFailed indicates the mail relay rejected the send. The stored
	// code is deliberately left in place, so a code can be valid even though
	// its delivery failed.
	ErrSendFailed = errors.New("sending verification email failed")
	// ErrInvalidEmail indicates the address could not be parsed.
	ErrInvalidEmail = errors.New("invalid email address")
)

const codeDigits = 1000000 // 6-digit codes, zero-padded

// Metrics receives OTP outcome counts. A nil Metrics is valid.
type Metrics interface {
	RecordOTPIssued()
	RecordOTPVerify(result string)
}

// Service issues and verifies short-lived one-time codes. Codes live in the
// injected Store for the configured TTL, one per email, newest wins.
type Service struct {
	store   Store
	sender  mailer.Sender
	ttl     time.Duration
	metrics Metrics
	nowFunc func() time.Time
}

// NewService constructs an OTP service around the given store and sender.
func NewService(store Store, sender mailer.Sender, ttl time.Duration, metrics Metrics) *Service {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{
		store:   store,
		sender:  sender,
		ttl:     ttl,
		metrics: metrics,
		nowFunc: func() time.Time { return time.Now().UTC() },
	}
}

// Send generates a fresh 6-digit code for the email, stores its hash
// (overwriting any prior live code), and emails it. A failed send is
// reported but does not roll the stored code back.
func (s *Service) Send(ctx context.Context, email string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return ErrInvalidEmail
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return ErrInvalidEmail
	}

	code, err := generateCode()
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash code: %w", err)
	}

	s.store.Put(email, Entry{
		CodeHash:  hash,
		ExpiresAt: s.nowFunc().Add(s.ttl),
	})

	if s.metrics != nil {
		s.metrics.RecordOTPIssued()
	}

	if err := s.sender.SendOTP(ctx, email, code, int(s.ttl.Minutes())); err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	return nil
}

// Verify checks the submitted code against the live entry for the email.
// A match consumes the entry; an expired entry is removed; a mismatch leaves
// the entry so the caller may retry within the window.
func (s *Service) Verify(_ context.Context, email, code string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	code = strings.TrimSpace(code)

	entry, ok := s.store.Get(email)
	if !ok {
		s.record("no_code")
		return ErrNoCode
	}

	if s.nowFunc().After(entry.ExpiresAt) {
		s.store.Delete(email)
		s.record("expired")
		return ErrExpired
	}

	if bcrypt.CompareHashAndPassword(entry.CodeHash, []byte(code)) != nil {
		s.record("mismatch")
		return ErrMismatch
	}

	s.store.Delete(email)
	s.record("ok")
	return nil
}

func (s *Service) record(result string) {
	if s.metrics != nil {
		s.metrics.RecordOTPVerify(result)
	}
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeDigits))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
