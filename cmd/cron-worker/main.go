package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bucketshare/bucketshare-backend/internal/buckets"
	"github.com/bucketshare/bucketshare-backend/internal/cron"
	"github.com/bucketshare/bucketshare-backend/internal/notifications"
	"github.com/bucketshare/bucketshare-backend/internal/settlement"
	"github.com/bucketshare/bucketshare-backend/internal/users"
	"github.com/bucketshare/bucketshare-backend/pkg/config"
	"github.com/bucketshare/bucketshare-backend/pkg/db"
	"github.com/bucketshare/bucketshare-backend/pkg/logger"
	"github.com/bucketshare/bucketshare-backend/pkg/metrics"
	"github.com/bucketshare/bucketshare-backend/pkg/migrate"
	"github.com/bucketshare/bucketshare-backend/pkg/pubsub"
	"github.com/bucketshare/bucketshare-backend/pkg/redis"
)

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit")
	jobs := flag.String("jobs", "", "comma separated job names to run with -once (default all)")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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
		publisher, err = notifications.NewPubSubPublisher(psClient.NotificationPublisher())
		if err != nil {
			logg.Error(context.Background(), "failed to create notification publisher", err)
			os.Exit(1)
		}
	}
	dispatcher := notifications.NewDispatcher(publisher, logg)
	defer dispatcher.Wait()

	ledgerMetrics := metrics.NewLedgerMetrics(prometheus.DefaultRegisterer)
	bucketRepo := buckets.NewRepository(dbClient.DB())
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
	userService, err := users.NewService(users.ServiceParams{
		Repo:   users.NewRepository(dbClient.DB()),
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create users service", err)
		os.Exit(1)
	}
	// Auto-collect only touches virtual-only buckets, so no processor is wired.
	bucketService, err := buckets.NewService(buckets.ServiceParams{
		Tx:       dbClient,
		Repo:     bucketRepo,
		Store:    bucketStore,
		Users:    userService,
		Notifier: dispatcher,
		Metrics:  ledgerMetrics,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create bucket service", err)
		os.Exit(1)
	}

	autoCollect, err := cron.NewAutoCollectJob(cron.AutoCollectJobParams{
		Logger:  logg,
		Buckets: bucketService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create auto-collect job", err)
		os.Exit(1)
	}
	retention, err := cron.NewDeadLetterRetentionJob(cron.DeadLetterRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: settlement.NewDeadLetterRepository(dbClient.DB()),
		Retention:  cfg.Cron.DeadLetterRetentionDays,
		BatchSize:  cfg.Cron.PurgeBatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create dead letter retention job", err)
		os.Exit(1)
	}

	registry, err := cron.NewRegistry(autoCollect, retention)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker"), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	if *once {
		logg.Info(ctx, "running single cron cycle")
		if err := service.RunOnce(ctx, jobNames(*jobs)...); err != nil {
			logg.Error(ctx, "cron cycle failed", err)
			dispatcher.Wait()
			os.Exit(1)
		}
		return
	}

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		dispatcher.Wait()
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func jobNames(raw string) []string {
	var names []string
	for _, part := range strings.Split(raw, ",") {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}
