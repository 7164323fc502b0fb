package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bucketshare/bucketshare-backend/api/controllers"
	"github.com/bucketshare/bucketshare-backend/api/routes"
	"github.com/bucketshare/bucketshare-backend/internal/buckets"
	"github.com/bucketshare/bucketshare-backend/internal/friends"
	"github.com/bucketshare/bucketshare-backend/internal/invites"
	"github.com/bucketshare/bucketshare-backend/internal/notifications"
	"github.com/bucketshare/bucketshare-backend/internal/payments"
	"github.com/bucketshare/bucketshare-backend/internal/settlement"
	"github.com/bucketshare/bucketshare-backend/internal/support"
	"github.com/bucketshare/bucketshare-backend/internal/users"
	stripewebhook "github.com/bucketshare/bucketshare-backend/internal/webhooks/stripe"
	"github.com/bucketshare/bucketshare-backend/pkg/config"
	"github.com/bucketshare/bucketshare-backend/pkg/db"
	"github.com/bucketshare/bucketshare-backend/pkg/logger"
	"github.com/bucketshare/bucketshare-backend/pkg/metrics"
	"github.com/bucketshare/bucketshare-backend/pkg/migrate"
	"github.com/bucketshare/bucketshare-backend/pkg/pubsub"
	"github.com/bucketshare/bucketshare-backend/pkg/redis"
	pkgstripe "github.com/bucketshare/bucketshare-backend/pkg/stripe"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	var (
		stripeClient *pkgstripe.Client
		processor    payments.Processor
		accounts     payments.Accounts
		gateway      *payments.StripeGateway
	)
	stripeClient, err = pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
	switch {
	case err == nil:
		gateway, err = payments.NewStripeGateway(stripeClient)
		if err != nil {
			logg.Error(context.Background(), "failed to create payment gateway", err)
			os.Exit(1)
		}
		processor, accounts = gateway, gateway
	case cfg.App.IsProd():
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	default:
		logg.Warn(context.Background(), "stripe not configured, ach contributions disabled: "+err.Error())
		stripeClient = nil
		cfg.FeatureFlags.AllowACH = false
	}

	pingers := map[string]controllers.Pinger{
		"db":    dbClient,
		"redis": redisClient,
	}

	var publisher notifications.Publisher
	if cfg.NotificationsEnabled() {
		psClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := psClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub", err)
			}
		}()
		pingers["pubsub"] = psClient
		publisher, err = notifications.NewPubSubPublisher(psClient.NotificationPublisher())
		if err != nil {
			logg.Error(context.Background(), "failed to create notification publisher", err)
			os.Exit(1)
		}
	} else {
		publisher = notifications.NewLogPublisher(logg)
	}
	dispatcher := notifications.NewDispatcher(publisher, logg)
	ledgerMetrics := metrics.NewLedgerMetrics(prometheus.DefaultRegisterer)

	bucketRepo := buckets.NewRepository(dbClient.DB())
	usersRepo := users.NewRepository(dbClient.DB())
	userService, err := users.NewService(users.ServiceParams{
		Repo:     usersRepo,
		Tx:       dbClient,
		Holdings: buckets.NewHoldings(bucketRepo),
		Accounts: accounts,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create users service", err)
		os.Exit(1)
	}

	bucketStore, err := buckets.NewStore(buckets.StoreParams{
		Tx:          dbClient,
		Repo:        bucketRepo,
		MaxAttempts: cfg.Ledger.MaxMutationAttempts,
		Metrics:     ledgerMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create bucket store", err)
		os.Exit(1)
	}
	bucketService, err := buckets.NewService(buckets.ServiceParams{
		Tx:        dbClient,
		Repo:      bucketRepo,
		Store:     bucketStore,
		Users:     userService,
		Processor: processor,
		Notifier:  dispatcher,
		Metrics:   ledgerMetrics,
		Logger:    logg,
		AllowACH:  cfg.FeatureFlags.AllowACH,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create bucket service", err)
		os.Exit(1)
	}

	inviteService, err := invites.NewService(invites.ServiceParams{
		Repo:     invites.NewRepository(dbClient.DB()),
		Buckets:  bucketStore,
		Friends:  friends.NewRepository(dbClient.DB()),
		Users:    userService,
		Notifier: dispatcher,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create invites service", err)
		os.Exit(1)
	}

	supportService, err := support.NewService(support.ServiceParams{
		Repo:     support.NewRepository(dbClient.DB()),
		Buckets:  bucketStore,
		Notifier: dispatcher,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create support service", err)
		os.Exit(1)
	}

	settlementService, err := settlement.NewService(settlement.ServiceParams{
		Store:       bucketStore,
		Refs:        bucketRepo,
		Users:       usersRepo,
		DeadLetters: settlement.NewDeadLetterRepository(dbClient.DB()),
		Notifier:    dispatcher,
		Metrics:     ledgerMetrics,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create settlement service", err)
		os.Exit(1)
	}

	webhookParams := stripewebhook.ServiceParams{Settlement: settlementService}
	if gateway != nil {
		webhookParams.Accounts = gateway
	}
	webhookService, err := stripewebhook.NewService(webhookParams)
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook service", err)
		os.Exit(1)
	}
	webhookGuard, err := stripewebhook.NewEventClaims(redisClient, cfg.Webhooks.IdempotencyTTL, "stripe_event")
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook guard", err)
		os.Exit(1)
	}

	routerParams := routes.Params{
		Config:             cfg,
		Logger:             logg,
		Pingers:            pingers,
		Redis:              redisClient,
		Gatherer:           prometheus.DefaultGatherer,
		HTTPMetrics:        metrics.NewHTTPMetrics(prometheus.DefaultRegisterer),
		Buckets:            bucketService,
		Invites:            inviteService,
		Users:              userService,
		Support:            supportService,
		StripeWebhook:      webhookService,
		StripeWebhookGuard: webhookGuard,
	}
	if stripeClient != nil {
		routerParams.StripeClient = stripeClient
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:         addr,
		Handler:      routes.NewRouter(routerParams),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}

	dispatcher.Wait()
	logg.Info(ctx, "api server stopped")
}
