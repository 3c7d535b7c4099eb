package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/taleweave/backend/internal/identity"
	"github.com/taleweave/backend/internal/logging"
	"github.com/taleweave/backend/internal/models"
)

type userContextKey struct{}

// Resolver validates a bearer credential against the identity provider.
type Resolver interface {
	Resolve(ctx context.Context, credential string) (identity.Profile, error)
}

// ProfileSyncer mirrors a provider profile into the local user store.
type ProfileSyncer interface {
	Sync(ctx context.Context, profile identity.Profile) (models.User, error)
}

// RequireIdentity authenticates the request's bearer token, syncs the
// caller's profile into the local store, and places the resulting user in
// the request context. Requests without a valid token never reach the
// wrapped handler.
func RequireIdentity(resolver Resolver, syncer ProfileSyncer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			credential, ok := bearerToken(r)
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "unauthenticated", "missing bearer token")
				return
			}

			profile, err := resolver.Resolve(ctx, credential)
			if err != nil {
				switch {
				case errors.Is(err, identity.ErrUnverified):
					writeAuthError(w, http.StatusUnauthorized, "unauthenticated", "credential rejected by identity provider")
				case errors.Is(err, identity.ErrIdentityNotFound):
					writeAuthError(w, http.StatusNotFound, "not_found", "identity no longer exists")
				default:
					logging.FromContext(ctx).Error("resolving identity failed", "error", err)
					writeAuthError(w, http.StatusInternalServerError, "internal", "could not verify credential")
				}
				return
			}

			user, err := syncer.Sync(ctx, profile)
			if err != nil {
				logging.FromContext(ctx).Error("syncing identity profile failed", "error", err, "subject", profile.Subject)
				writeAuthError(w, http.StatusInternalServerError, "internal", "could not load caller profile")
				return
			}

			ctx = context.WithValue(ctx, userContextKey{}, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFromContext returns the authenticated caller placed by RequireIdentity.
func UserFromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(userContextKey{}).(models.User)
	return user, ok
}

// WithUser places a user into the context. Exposed for handler tests.
func WithUser(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

func writeAuthError(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   kind,
		"message": message,
	})
}
