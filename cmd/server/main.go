package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"
	"github.com/spf13/viper"

	"github.com/Proton-105/clicker-social/internal/abuse"
	"github.com/Proton-105/clicker-social/internal/api"
	"github.com/Proton-105/clicker-social/internal/calendar"
	"github.com/Proton-105/clicker-social/internal/clan"
	"github.com/Proton-105/clicker-social/internal/database"
	apperrors "github.com/Proton-105/clicker-social/internal/errors"
	"github.com/Proton-105/clicker-social/internal/feed"
	"github.com/Proton-105/clicker-social/internal/health"
	"github.com/Proton-105/clicker-social/internal/i18n"
	"github.com/Proton-105/clicker-social/internal/idempotency"
	"github.com/Proton-105/clicker-social/internal/identity"
	"github.com/Proton-105/clicker-social/internal/jobs"
	"github.com/Proton-105/clicker-social/internal/jobs/handlers"
	"github.com/Proton-105/clicker-social/internal/ledger"
	"github.com/Proton-105/clicker-social/internal/lifecycle"
	"github.com/Proton-105/clicker-social/internal/notify"
	"github.com/Proton-105/clicker-social/internal/ratelimit"
	"github.com/Proton-105/clicker-social/internal/repository/mongostore"
	"github.com/Proton-105/clicker-social/internal/session"
	"github.com/Proton-105/clicker-social/internal/social"
	"github.com/Proton-105/clicker-social/internal/user"
	"github.com/Proton-105/clicker-social/internal/usercache"
	"github.com/Proton-105/clicker-social/pkg/bus"
	"github.com/Proton-105/clicker-social/pkg/config"
	"github.com/Proton-105/clicker-social/pkg/graceful"
	"github.com/Proton-105/clicker-social/pkg/logger"
	redisclient "github.com/Proton-105/clicker-social/pkg/redis"
)

const (
	rateLimitPrefix   = "ratelimit:"
	clickWindowPrefix = "clickwin:"
	burstFlagPrefix   = "clickburst:"
	cleanupInterval   = 10 * time.Minute
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, v, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if cfg.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Sentry.DSN,
			Environment:      cfg.AppEnv,
			TracesSampleRate: cfg.Sentry.TracesSampleRate,
		}); err != nil {
			fmt.Fprintf(os.Stderr, "failed to init sentry: %v\n", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	log := logger.New(*cfg)
	slog.SetDefault(log)

	if err := run(ctx, cfg, v, log); err != nil {
		log.Error("server stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, v *viper.Viper, log *slog.Logger) error {
	log.Info("starting clicker-social",
		slog.String("addr", cfg.Server.Addr),
		slog.String("timezone", cfg.Rewards.Timezone),
		slog.Bool("jobs", cfg.Jobs.Enabled),
		slog.Bool("nats", cfg.NATS.Enabled),
	)

	shutdown := lifecycle.NewShutdown(log)
	checker := health.NewChecker(log)

	mongoClient, err := database.Connect(ctx, cfg.Mongo)
	if err != nil {
		return err
	}
	shutdown.Register("mongo", mongoClient.Disconnect)
	checker.AddCheck("mongo", database.NewHealthCheck(mongoClient))

	store := mongostore.New(mongoClient, cfg.Mongo.Database, log)
	if err := database.NewMigrator(store.Database(), log).Apply(ctx, database.Migrations()); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	rdb, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	shutdown.Add(lifecycle.CloserHook("redis", rdb))
	checker.AddCheck("redis", health.NewRedisChecker(rdb))

	translations, err := i18n.Load(cfg.App.DefaultLang)
	if err != nil {
		return fmt.Errorf("load translations: %w", err)
	}
	tr := translations.Translator(cfg.App.DefaultLang)

	cal, err := calendar.New(cfg.Rewards.Timezone)
	if err != nil {
		return err
	}

	users := user.NewService(store, usercache.NewCache(rdb, cfg.Session.CacheTTL), log)
	sessions := identity.NewSessions(rdb, cfg.Session.TTL)
	provider := identity.NewProvider(sessions, users, cfg.App.DevSessions, log)

	feeds := feed.NewRedisBus(rdb, log)
	refresher := feed.NewCacheRefresher(users, feeds, log)

	storeNotifier := notify.NewStoreNotifier(store, feeds, log)
	var notifier notify.Notifier = storeNotifier
	if cfg.NATS.Enabled {
		natsClient := bus.New(cfg.NATS, log)
		if err := natsClient.Connect(ctx); err != nil {
			return err
		}
		if err := natsClient.EnsureStream(); err != nil {
			return err
		}
		shutdown.Add(lifecycle.CloserHook("nats", natsClient))
		checker.AddCheck("nats", natsClient)
		notifier = notify.Multi{storeNotifier, notify.NewBusNotifier(natsClient, nil, log)}
	}

	memory := ratelimit.NewMemoryWindow(log)
	limitWindow := ratelimit.NewAdaptiveWindow(ratelimit.NewRedisWindow(rdb, rateLimitPrefix, log), memory, log)
	clickWindow := ratelimit.NewAdaptiveWindow(ratelimit.NewRedisWindow(rdb, clickWindowPrefix, log), memory, log)
	windowCleaner := ratelimit.NewCleaner(rdb, memory, []string{rateLimitPrefix, clickWindowPrefix}, time.Hour, cleanupInterval, log)
	go windowCleaner.Run(ctx)

	var reporter abuse.Reporter = abuse.NewStoreReporter(store)
	if cfg.Jobs.Enabled {
		reporter, err = startJobs(ctx, cfg, store, shutdown, log)
		if err != nil {
			return err
		}
	}

	scorer := abuse.NewScorer(cfg.Abuse.BaseCooldown)
	tracker := abuse.NewTracker(clickWindow, reporter, cfg.Abuse.BurstWindow, cfg.Abuse.BurstThreshold, log).
		WithLatch(ratelimit.NewRedisLatch(rdb, burstFlagPrefix, log))
	shutdown.Register("abuse reports", func(context.Context) error {
		tracker.Wait()
		return nil
	})

	led := ledger.New(ledger.Deps{
		Store:     store,
		Calendar:  cal,
		Scorer:    scorer,
		Tracker:   tracker,
		Refresher: refresher,
		Boxes:     cfg.Boxes,
		Log:       log,
	})
	sessions.OnRevoke(func(ctx context.Context, token string) error {
		return led.ResetClicks(ctx, session.TrackerKey(token))
	})

	socialSvc := social.NewService(social.Deps{
		Store:      store,
		Notifier:   notifier,
		Publisher:  feeds,
		Refresher:  refresher,
		Translator: tr,
		Log:        log,
	})
	clanSvc := clan.NewService(clan.Deps{
		Store:      store,
		Notifier:   notifier,
		Publisher:  feeds,
		Refresher:  refresher,
		Translator: tr,
		Log:        log,
	})

	registry := session.NewRegistry(func(ctx context.Context, username string) (any, error) {
		u, err := users.Load(ctx, username)
		if err != nil {
			return nil, err
		}
		return led.BoxProgress(u), nil
	}, cfg.Session.RefreshInterval, log)
	if err := registry.Start(ctx); err != nil {
		return err
	}

	idem := idempotency.NewManager(idempotency.NewRedisStore(rdb, log), log)
	go idempotency.NewCleaner(rdb, log, cleanupInterval, cfg.Session.IdempotencyTTL+time.Hour).Run(ctx)

	config.Watch(v, log, func(next *config.Config) {
		scorer.SetBase(next.Abuse.BaseCooldown)
	})

	probes := lifecycle.NewProbes(checker, log)
	server := api.NewServer(api.Deps{
		Log:            log,
		Errors:         apperrors.NewHandler(log, cfg.Sentry.Enabled),
		I18n:           translations,
		Auth:           provider,
		Users:          users,
		Ledger:         led,
		Social:         socialSvc,
		Clans:          clanSvc,
		Notifications:  storeNotifier,
		Feeds:          feeds,
		Sessions:       registry,
		Limiter:        ratelimit.NewLimiter(limitWindow, log),
		Rules:          ratelimit.NewRules(cfg.RateLimit),
		Idempotency:    idem,
		IdempotencyTTL: cfg.Session.IdempotencyTTL,
		Readiness:      probes,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.Router(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}
	srv := graceful.NewServer(log, httpServer, cfg.Server.ShutdownTimeout, func() {
		if err := registry.Shutdown(); err != nil {
			log.Warn("session registry shutdown failed", slog.Any("error", err))
		}
	})

	go func() {
		<-ctx.Done()
		probes.Drain()
	}()

	serveErr := srv.ListenAndServe(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	return errors.Join(serveErr, shutdown.Execute(shutdownCtx))
}

// startJobs runs the asynq worker and scheduler and returns the reporter that
// queues click bursts for them.
func startJobs(ctx context.Context, cfg *config.Config, store *mongostore.Store, shutdown *lifecycle.Shutdown, log *slog.Logger) (abuse.Reporter, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	manager := jobs.NewManager(redisOpt, log)
	shutdown.Add(lifecycle.CloserHook("jobs client", manager))

	worker := jobs.NewWorker(redisOpt, jobs.Queues, cfg.Jobs.Concurrency, log)
	worker.RegisterHandler(jobs.TaskTypeModerationReport, handlers.NewModerationReportHandler(abuse.NewStoreReporter(store), log))
	worker.RegisterHandler(jobs.TaskTypeModerationCleanup, handlers.NewModerationCleanupHandler(store.Moderation(), cfg.Jobs.ModerationRetention, log))
	go func() {
		if err := worker.Run(); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
			log.ErrorContext(ctx, "jobs worker stopped", slog.Any("error", err))
		}
	}()
	shutdown.Register("jobs worker", func(context.Context) error {
		worker.Shutdown()
		return nil
	})

	scheduler := jobs.NewScheduler(redisOpt, cfg.Jobs.CleanupCron, cfg.Jobs.ModerationRetention, log)
	if err := scheduler.RegisterTasks(); err != nil {
		return nil, fmt.Errorf("register scheduled tasks: %w", err)
	}
	scheduler.Run()
	shutdown.Register("jobs scheduler", func(context.Context) error {
		scheduler.Shutdown()
		return nil
	})

	return jobs.NewQueueReporter(manager), nil
}
