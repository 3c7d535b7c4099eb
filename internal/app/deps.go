package app

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/taleweave/backend/internal/config"
	"github.com/taleweave/backend/internal/db"
	"github.com/taleweave/backend/internal/handlers"
	"github.com/taleweave/backend/internal/identity"
	"github.com/taleweave/backend/internal/mail"
	"github.com/taleweave/backend/internal/metrics"
	"github.com/taleweave/backend/internal/middleware"
	"github.com/taleweave/backend/internal/otp"
	"github.com/taleweave/backend/internal/repositories"
	"github.com/taleweave/backend/internal/storage"
)

// buildDependencies wires together concrete implementations used by the HTTP handlers.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config, collector *metrics.Collector, gatherer prometheus.Gatherer) (handlers.Dependencies, error) {
	users := repositories.NewPostgresUserRepository(pool)

	media, err := storage.NewS3MediaStore(ctx, cfg.ObjectStore)
	if err != nil {
		return handlers.Dependencies{}, fmt.Errorf("configure media store: %w", err)
	}

	provider, err := identity.NewOIDCProvider(ctx, cfg.Identity)
	if err != nil {
		return handlers.Dependencies{}, fmt.Errorf("configure identity provider: %w", err)
	}

	syncer := identity.NewSyncer(users, cfg.Identity.SyncCacheTTL)

	var sender mail.Sender = mail.LogSender{}
	if cfg.SMTP.Host != "" {
		sender = mail.NewSMTPSender(cfg.SMTP)
	}

	otpService := otp.NewService(otp.NewMemoryStore(), sender, cfg.OTPTTL, collector)

	return handlers.Dependencies{
		Users:    users,
		Stories:  repositories.NewPostgresStoryRepository(pool),
		Progress: repositories.NewPostgresProgressRepository(pool),
		Media:    media,
		OTP:      otpService,

		Identity:   provider,
		Syncer:     syncer,
		SyncCache:  syncer,
		Identities: provider,

		OTPLimiter:     middleware.NewKeyedRateLimiter(cfg.OTPSendLimit, time.Minute, cfg.OTPSendLimit, 10*time.Minute),
		MediaMetrics:   collector,
		MetricsHandler: metrics.Handler(gatherer),
	}, nil
}
