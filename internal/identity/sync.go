package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taleweave/backend/internal/models"
	"github.com/taleweave/backend/internal/repositories"
)

// Syncer mirrors provider profiles into the local user store. It runs on
// every protected request so local rows track the provider's view; the
// optional cache trades that freshness for latency and is off by default.
type Syncer struct {
	users    repositories.UserRepository
	cacheTTL time.Duration
	nowFunc  func() time.Time

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	user    models.User
	expires time.Time
}

// NewSyncer constructs a Syncer. A zero cacheTTL disables caching entirely.
func NewSyncer(users repositories.UserRepository, cacheTTL time.Duration) *Syncer {
	return &Syncer{
		users:    users,
		cacheTTL: cacheTTL,
		nowFunc:  func() time.Time { return time.Now().UTC() },
		cache:    make(map[string]cacheEntry),
	}
}

// Sync upserts a local user mirroring the provider profile and returns it.
// New identities get a row with a derived display name; existing rows get
// their mirrored fields overwritten, keeping local values wherever the
// provider field is empty.
func (s *Syncer) Sync(ctx context.Context, profile Profile) (models.User, error) {
	if profile.Subject == "" {
		return models.User{}, fmt.Errorf("sync: profile has no subject")
	}

	if user, ok := s.cached(profile.Subject); ok {
		return user, nil
	}

	now := s.nowFunc()

	user, err := s.users.FindByIdentityID(ctx, profile.Subject)
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		user = models.User{
			ID:         uuid.NewString(),
			IdentityID: profile.Subject,
			Name:       fallbackName(profile),
			Email:      profile.Email,
			AvatarURL:  profile.Picture,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.users.Create(ctx, user); err != nil {
			if errors.Is(err, repositories.ErrConflict) {
				// Lost a create race with a concurrent first request;
				// the winner's row is the one to mirror.
				return s.retryExisting(ctx, profile, now)
			}
			return models.User{}, fmt.Errorf("create mirrored user: %w", err)
		}
	case err != nil:
		return models.User{}, fmt.Errorf("find mirrored user: %w", err)
	default:
		user = mirror(user, profile, now)
		if err := s.users.Update(ctx, user); err != nil {
			return models.User{}, fmt.Errorf("update mirrored user: %w", err)
		}
	}

	s.store(user)
	return user, nil
}

// Invalidate drops any cached mirror for the subject. Called after profile
// mutations so a follow-up request cannot see a stale row.
func (s *Syncer) Invalidate(subject string) {
	if s.cacheTTL <= 0 {
		return
	}
	s.mu.Lock()
	delete(s.cache, subject)
	s.mu.Unlock()
}

func (s *Syncer) retryExisting(ctx context.Context, profile Profile, now time.Time) (models.User, error) {
	user, err := s.users.FindByIdentityID(ctx, profile.Subject)
	if err != nil {
		return models.User{}, fmt.Errorf("find mirrored user after conflict: %w", err)
	}
	user = mirror(user, profile, now)
	if err := s.users.Update(ctx, user); err != nil {
		return models.User{}, fmt.Errorf("update mirrored user after conflict: %w", err)
	}
	s.store(user)
	return user, nil
}

func (s *Syncer) cached(subject string) (models.User, bool) {
	if s.cacheTTL <= 0 {
		return models.User{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.cache[subject]
	if !ok || s.nowFunc().After(entry.expires) {
		delete(s.cache, subject)
		return models.User{}, false
	}
	return entry.user, true
}

func (s *Syncer) store(user models.User) {
	if s.cacheTTL <= 0 {
		return
	}
	s.mu.Lock()
	s.cache[user.IdentityID] = cacheEntry{user: user, expires: s.nowFunc().Add(s.cacheTTL)}
	s.mu.Unlock()
}

// mirror overwrites the mirrored fields from the provider's current values,
// preferring existing local values when the provider field is empty.
func mirror(user models.User, profile Profile, now time.Time) models.User {
	if name := joinedName(profile); name != "" {
		user.Name = name
	}
	if profile.Email != "" {
		user.Email = profile.Email
	}
	if profile.Picture != "" {
		user.AvatarURL = profile.Picture
	}
	user.UpdatedAt = now
	return user
}

func joinedName(profile Profile) string {
	return strings.TrimSpace(strings.TrimSpace(profile.GivenName) + " " + strings.TrimSpace(profile.FamilyName))
}

// fallbackName derives a display name for a brand-new identity: provider
// name parts first, then the email local part, then a generated placeholder.
func fallbackName(profile Profile) string {
	if name := joinedName(profile); name != "" {
		return name
	}
	if at := strings.Index(profile.Email, "@"); at > 0 {
		return profile.Email[:at]
	}
	return "user-" + uuid.NewString()[:8]
}
