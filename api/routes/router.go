package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bucketshare/bucketshare-backend/api/controllers"
	webhookcontrollers "github.com/bucketshare/bucketshare-backend/api/controllers/webhooks"
	"github.com/bucketshare/bucketshare-backend/api/middleware"
	"github.com/bucketshare/bucketshare-backend/internal/buckets"
	"github.com/bucketshare/bucketshare-backend/internal/invites"
	"github.com/bucketshare/bucketshare-backend/internal/support"
	"github.com/bucketshare/bucketshare-backend/internal/users"
	"github.com/bucketshare/bucketshare-backend/pkg/config"
	"github.com/bucketshare/bucketshare-backend/pkg/logger"
	"github.com/bucketshare/bucketshare-backend/pkg/metrics"
	pkgredis "github.com/bucketshare/bucketshare-backend/pkg/redis"
)

// RedisStore is the subset of the redis client the HTTP layer needs for
// idempotency replay and rate limiting.
type RedisStore interface {
	pkgredis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(scope string) string
}

type Params struct {
	Config   *config.Config
	Logger   *logger.Logger
	Pingers  map[string]controllers.Pinger
	Redis    RedisStore
	Gatherer prometheus.Gatherer

	// HTTPMetrics may be nil; requests are then only logged.
	HTTPMetrics *metrics.HTTPMetrics

	Buckets buckets.Service
	Invites invites.Service
	Users   users.Service
	Support support.Service

	StripeWebhook      webhookcontrollers.StripeWebhookService
	StripeClient       webhookcontrollers.SigningSecretProvider
	StripeWebhookGuard webhookcontrollers.EventGuard
}

func NewRouter(p Params) http.Handler {
	cfg, logg := p.Config, p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, p.HTTPMetrics),
		middleware.CORS(cfg.HTTP.CORSAllowedOrigins),
	)

	var (
		idempotency = middleware.Idempotency(nil, middleware.ReplayOptional, logg)
		moneyReplay = middleware.Idempotency(nil, middleware.ReplayMoney, logg)
		moneyLimit  = middleware.RateLimit(middleware.RateLimitPolicy{}, nil, logg)
	)
	if p.Redis != nil {
		idempotency = middleware.Idempotency(p.Redis, middleware.ReplayOptional, logg)
		moneyReplay = middleware.Idempotency(p.Redis, middleware.ReplayMoney, logg)
		moneyLimit = middleware.RateLimit(middleware.NewRateLimitPolicy(
			"money",
			cfg.RateLimit.MoneyWindow,
			cfg.RateLimit.MoneyIPLimit,
			cfg.RateLimit.MoneyUserLimit,
		), p.Redis, logg)
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.Pingers))
	})

	gatherer := p.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(p.StripeWebhook, p.StripeClient, p.StripeWebhookGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/buckets", func(r chi.Router) {
			r.Get("/", controllers.BucketList(p.Buckets, logg))
			r.With(idempotency).Post("/", controllers.BucketCreate(p.Buckets, logg))
			r.Route("/{bucketId}", func(r chi.Router) {
				r.Get("/", controllers.BucketGet(p.Buckets, logg))
				r.Delete("/", controllers.BucketDelete(p.Buckets, logg))
				r.With(moneyLimit, moneyReplay).Post("/contributions", controllers.BucketContribute(p.Buckets, logg))
				r.With(moneyLimit, moneyReplay).Post("/collect", controllers.BucketCollect(p.Buckets, logg))
				r.Put("/collector", controllers.BucketSetCollector(p.Buckets, logg))
				r.With(idempotency).Post("/invites", controllers.BucketInvite(p.Invites, logg))
			})
		})

		r.Route("/bucket-invites", func(r chi.Router) {
			r.Get("/", controllers.InviteList(p.Invites, logg))
			r.Post("/{inviteId}/accept", controllers.InviteAccept(p.Invites, logg))
			r.Post("/{inviteId}/decline", controllers.InviteDecline(p.Invites, logg))
		})

		r.Route("/users/me", func(r chi.Router) {
			r.Get("/", controllers.UserProfile(p.Users, logg))
			r.Patch("/", controllers.UserUpdate(p.Users, logg))
			r.Delete("/", controllers.UserDelete(p.Users, logg))
			r.With(idempotency).Post("/funding/setup", controllers.UserFundingSetup(p.Users, logg))
			r.With(idempotency).Post("/funding/finalize", controllers.UserFundingFinalize(p.Users, logg))
			r.Delete("/funding", controllers.UserFundingRemove(p.Users, logg))
			r.With(idempotency).Post("/payout/onboard", controllers.UserPayoutOnboard(p.Users, logg))
		})

		r.Route("/support", func(r chi.Router) {
			r.With(idempotency).Post("/stuck-funds", controllers.SupportStuckFunds(p.Support, logg))
			r.Get("/requests", controllers.SupportRequests(p.Support, logg))
		})
	})

	return r
}
