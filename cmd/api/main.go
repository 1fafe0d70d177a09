package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/booking-service/internal/api/http"
	"github.com/spec-kit/booking-service/internal/api/http/handlers"
	"github.com/spec-kit/booking-service/internal/auth"
	"github.com/spec-kit/booking-service/internal/config"
	"github.com/spec-kit/booking-service/internal/events"
	"github.com/spec-kit/booking-service/internal/observability"
	"github.com/spec-kit/booking-service/internal/persistence"
	"github.com/spec-kit/booking-service/internal/ratelimiter"
	"github.com/spec-kit/booking-service/internal/repository"
	"github.com/spec-kit/booking-service/internal/repository/memory"
	"github.com/spec-kit/booking-service/internal/service"
	"github.com/spec-kit/booking-service/internal/slotlock"
	"github.com/spec-kit/booking-service/internal/worker"
)

type repositories struct {
	tx            repository.Transactor
	identities    repository.IdentityRepository
	practitioners repository.PractitionerRepository
	appointments  repository.AppointmentRepository
	notifications repository.NotificationRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App.Name)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	sentryEnabled := false
	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Sentry.DSN,
			EnableTracing:    true,
			TracesSampleRate: cfg.Sentry.TracesSampleRate,
			Environment:      cfg.App.Env,
			Release:          cfg.App.Version,
		}); err != nil {
			logger.Error("sentry init failed", zap.Error(err))
		} else {
			sentryEnabled = true
			defer sentry.Flush(2 * time.Second)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	healthDeps := map[string]handlers.Pinger{}
	var repos repositories
	if pool := pg.PoolHandle(); pool != nil {
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pool, cfg.Postgres.MigrationsDir, logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		repos = repositories{
			tx:            repository.NewTransactor(pool),
			identities:    repository.NewIdentityRepository(pool),
			practitioners: repository.NewPractitionerRepository(pool),
			appointments:  repository.NewAppointmentRepository(pool),
			notifications: repository.NewNotificationRepository(pool),
		}
		healthDeps["postgres"] = pg
		if err := pg.RegisterPoolMetrics(metrics.Registry()); err != nil {
			logger.Warn("pool metrics not registered", zap.Error(err))
		}
	} else {
		logger.Warn("using in-memory store; data will not survive restarts")
		store := memory.NewStore()
		repos = repositories{
			tx:            store.Transactor(),
			identities:    store.Identities(),
			practitioners: store.Practitioners(),
			appointments:  store.Appointments(),
			notifications: store.Notifications(),
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	var locker slotlock.Locker
	var publisher service.NotificationPublisher
	if err := redis.Ping(ctx); err == nil {
		locker = slotlock.NewRedisLocker(redis.Client, cfg.Booking.SlotLockTTL(), cfg.Booking.SlotLockWait())
		publisher = redis
		healthDeps["redis"] = redis
	} else {
		logger.Warn("redis unavailable; slot locks are process-local", zap.Error(err))
		locker = slotlock.NewLocalLocker(cfg.Booking.SlotLockWait())
	}

	dispatcher := events.NewAsyncDispatcher(logger, 1024)
	sink := service.NewNotificationSink(repos.notifications, cfg.Notification.RetentionPerIdentity)
	guard := service.NewSlotConflictGuard(repos.appointments, repos.tx, locker)

	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		IdentityRepo:     repos.identities,
		PractitionerRepo: repos.practitioners,
		Sink:             sink,
		LoginLimiter:     ratelimiter.New(cfg.RateLimit.LoginRPS, cfg.RateLimit.LoginBurst, 10*time.Minute),
		Logger:           logger,
	})
	onboardingService := service.NewOnboardingService(service.OnboardingDependencies{
		Transactor:       repos.tx,
		IdentityRepo:     repos.identities,
		PractitionerRepo: repos.practitioners,
		Sink:             sink,
		Dispatcher:       dispatcher,
		Metrics:          metrics,
		Logger:           logger,
	})
	appointmentService := service.NewAppointmentService(service.AppointmentDependencies{
		Transactor:       repos.tx,
		IdentityRepo:     repos.identities,
		PractitionerRepo: repos.practitioners,
		AppointmentRepo:  repos.appointments,
		Guard:            guard,
		Sink:             sink,
		Dispatcher:       dispatcher,
		Metrics:          metrics,
		Logger:           logger,
	})
	adminService := service.NewAdminService(service.AdminDependencies{
		Transactor:       repos.tx,
		IdentityRepo:     repos.identities,
		PractitionerRepo: repos.practitioners,
		AppointmentRepo:  repos.appointments,
		NotificationRepo: repos.notifications,
		Dispatcher:       dispatcher,
		Metrics:          metrics,
		Logger:           logger,
	})
	notificationService := service.NewNotificationService(dispatcher, publisher, logger, cfg.Notification)

	worker.StartNotificationWorker(ctx, dispatcher, notificationService)
	go worker.Periodic(ctx, "notification_sweep", time.Duration(cfg.Workers.NotificationSweepSeconds)*time.Second,
		worker.NotificationSweep(sink, logger), metrics, logger)
	go worker.Periodic(ctx, "role_reconcile", time.Duration(cfg.Workers.ReconcileSeconds)*time.Second,
		worker.RoleReconcile(onboardingService), metrics, logger)

	gate := auth.NewGate(authService.TokenManager(), repos.identities)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, httptransport.MiddlewareConfig{
		Logger:            logger,
		Metrics:           metrics,
		RequestTimeout:    cfg.App.RequestTimeout(),
		RequestsPerMinute: cfg.RateLimit.APIPerMinute,
		Sentry:            sentryEnabled,
	})
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, healthDeps),
		Auth:           handlers.NewAuthHandler(authService),
		Practitioners:  handlers.NewPractitionersHandler(onboardingService, appointmentService),
		Appointments:   handlers.NewAppointmentsHandler(appointmentService),
		Notifications:  handlers.NewNotificationsHandler(sink),
		Operator:       handlers.NewOperatorHandler(onboardingService, appointmentService, adminService),
		AuthMiddleware: auth.NewAuthMiddleware(gate),
		Metrics:        metrics,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	cancel()
	select {
	case <-dispatcher.Done():
	case <-time.After(5 * time.Second):
		logger.Warn("event queue not drained before exit")
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
