package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"avolve-rewards/config"
	"avolve-rewards/handlers"
	"avolve-rewards/middleware"
	"avolve-rewards/rewards"
	"avolve-rewards/services"
	"avolve-rewards/utils"
	"avolve-rewards/workers"
)

func main() {
	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	if level, err := log.ParseLevel(cfg.AppLogLevel); err == nil {
		log.SetLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		backend services.Backend
		store   *services.StoreBackend
	)
	switch cfg.BackendMode {
	case config.BackendSupabase:
		backend = services.NewSupabaseBackend(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.BackendTimeout)
	default:
		db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
		if err != nil {
			log.WithError(err).Fatal("failed to connect to database")
		}
		if err := services.Migrate(db); err != nil {
			log.WithError(err).Fatal("failed to migrate database")
		}
		store = services.NewStoreBackend(db, cfg.Location)
		backend = store
	}

	feed := services.NewClaimFeed()
	ledger := services.NewRewardLedgerClient(backend,
		services.WithFeed(feed),
		services.WithTimeout(cfg.BackendTimeout),
		services.WithRetryPolicy(services.RetryPolicy{
			MaxRetries:      cfg.BackendMaxRetries,
			InitialInterval: 200 * time.Millisecond,
			MaxInterval:     2 * time.Second,
		}),
		services.WithStreakCalculator(rewards.NewStreakCalculator(cfg.Location, cfg.ClaimCooldown)),
		services.WithLogger(log.WithFields(log.Fields{"component": "ledger", "backend": cfg.BackendMode})),
	)

	sched, err := workers.NewScheduler(cfg.Location)
	if err != nil {
		log.WithError(err).Fatal("failed to create scheduler")
	}
	if store != nil {
		claimWindows := workers.NewClaimWindowWorker(store, cfg.DailyClaimAmount)
		if err := claimWindows.Register(ctx, sched); err != nil {
			log.WithError(err).Fatal("failed to schedule claim windows")
		}
		go func() { _ = claimWindows.RunOnce(ctx) }()

		if cfg.SyncServiceURL != "" {
			workers.NewMemberSyncWorker(store, cfg.SyncServiceURL, cfg.SyncServicePath, cfg.GatewayToken, cfg.SyncInterval).Start(ctx)
		} else {
			log.Warn("SYNC_SERVICE_URL not set, member sync disabled")
		}

		if cfg.ArchiveEnabled {
			r2, err := utils.NewR2Store(ctx, cfg.CloudflareAccount, cfg.R2AccessKeyID, cfg.R2AccessKeySecret, cfg.R2Bucket)
			if err != nil {
				log.WithError(err).Fatal("failed to initialize R2 client")
			}
			archive := workers.NewActivityArchiveWorker(store, r2, cfg.ArchivePrefix, cfg.Location)
			if err := archive.Register(ctx, sched); err != nil {
				log.WithError(err).Fatal("failed to schedule activity archive")
			}
		}
	}
	sched.Start()

	app := fiber.New(fiber.Config{
		AppName: "avolve-rewards",
	})
	app.Use(logger.New())

	// GLOBAL: Only Gateway requests allowed, except health checks
	app.Use(middleware.GatewayAuthMiddleware(cfg.GatewayToken, "/health"))

	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,PUT,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, Cache-Control",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "backend": cfg.BackendMode})
	})

	handlers.SetupRewardRoutes(app, ledger)
	if store != nil {
		handlers.SetupAdminRoutes(app, store, cfg.DailyClaimAmount)
	}
	if cfg.AuthURL != "" {
		authClient := services.NewAuthClient(cfg.AuthURL, cfg.AuthAPIKey)
		handlers.SetupStreamRoutes(app, middleware.SSEAuthMiddleware(authClient), feed)
	} else {
		log.Warn("AUTH_URL not set, claim stream disabled")
	}

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.WithError(err).Error("server error")
		}
	}()

	log.WithFields(log.Fields{
		"port":     cfg.Port,
		"backend":  cfg.BackendMode,
		"timezone": cfg.Location.String(),
		"origins":  cfg.AllowedOrigins,
	}).Info("server running")

	<-ctx.Done()
	log.Info("shutting down server...")

	if err := sched.Shutdown(); err != nil {
		log.WithError(err).Warn("scheduler shutdown failed")
	}
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.WithError(err).Warn("server shutdown failed")
	}
}

func setupLogging() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.InfoLevel)
}
