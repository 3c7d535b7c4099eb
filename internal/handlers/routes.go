package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/taleweave/backend/internal/middleware"
)

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Users    UserStore
	Stories  StoryStore
	Progress ProgressStore
	Media    MediaStore
	OTP      OTPService

	Identity   middleware.Resolver
	Syncer     middleware.ProfileSyncer
	SyncCache  SyncInvalidator
	Identities IdentityDeleter

	OTPLimiter     RateLimiter
	MediaMetrics   MediaMetrics
	MetricsHandler http.Handler

	NowFunc func() time.Time
}

// NewRouter builds the HTTP routing tree. Story listing, OTP endpoints,
// health and metrics are public; everything else requires a bearer
// credential resolved against the identity provider.
func NewRouter(deps Dependencies) http.Handler {
	health := HealthHandler{}
	stories := StoryHandler{
		Stories: deps.Stories,
		Users:   deps.Users,
		Media:   deps.Media,
		Metrics: deps.MediaMetrics,
		NowFunc: deps.NowFunc,
	}
	profile := ProfileHandler{
		Users:      deps.Users,
		Media:      deps.Media,
		Identities: deps.Identities,
		Sync:       deps.SyncCache,
		Metrics:    deps.MediaMetrics,
		NowFunc:    deps.NowFunc,
	}
	progress := ProgressHandler{Progress: deps.Progress, NowFunc: deps.NowFunc}
	otp := OTPHandler{OTP: deps.OTP, Limiter: deps.OTPLimiter}

	r := chi.NewRouter()

	r.Get("/healthz", health.Handle)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Get("/stories", stories.List)
	r.Post("/send-otp", otp.Send)
	r.Post("/verify-otp", otp.Verify)

	r.Group(func(pr chi.Router) {
		pr.Use(middleware.RequireIdentity(deps.Identity, deps.Syncer))

		pr.Get("/stories/bookmarked", stories.ListBookmarked)
		pr.Get("/stories/user/{id}", stories.ListByAuthor)
		pr.Post("/stories", stories.Create)
		pr.Put("/stories/{id}", stories.Update)
		pr.Delete("/stories/{id}", stories.Delete)
		pr.Post("/stories/{id}/like", stories.ToggleLike)
		pr.Post("/stories/{id}/bookmark", stories.ToggleBookmark)
		pr.Post("/stories/{id}/comment", stories.AddComment)
		pr.Delete("/stories/{storyID}/comment/{commentID}", stories.DeleteComment)

		pr.Get("/users/{id}", profile.Get)
		pr.Put("/users/{id}", profile.Update)
		pr.Delete("/users/{id}", profile.Delete)

		pr.Get("/progress", progress.List)
		pr.Post("/progress", progress.Report)
		pr.Get("/progress/{userID}", progress.ListForUser)
	})

	return r
}
