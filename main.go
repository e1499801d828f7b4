package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"omoide-album/conditions"
	"omoide-album/config"
	"omoide-album/handlers"
	"omoide-album/logger"
	"omoide-album/middleware"
	"omoide-album/models"
	"omoide-album/services"
	"omoide-album/utils"
	"omoide-album/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg, dotenvLoaded, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.App.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if !dotenvLoaded {
		log.Info("⚠️  No .env file found, reading environment variables directly")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := gorm.Open(postgres.Open(cfg.Database.URL), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		log.Fatal("failed to migrate database", zap.Error(err))
	}

	registry := conditions.DefaultRegistry()
	catalogue, err := services.DefaultCatalogue()
	if err != nil {
		log.Fatal("failed to read badge catalogue", zap.Error(err))
	}
	seeded, err := services.SeedCatalogue(ctx, db, registry, catalogue)
	if err != nil {
		log.Fatal("failed to seed badge catalogue", zap.Error(err))
	}
	log.Info("badge catalogue ready", zap.Int64("inserted", seeded), zap.Int("entries", len(catalogue)))

	var locker services.Locker = services.NewLocalLocker()
	if cfg.Redis.URL != "" {
		client, err := services.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer client.Close()
		locker = services.NewRedisLocker(client, cfg.Redis.LockTTL, log)
		log.Info("using redis for evaluation locks")
	}

	var storage services.ObjectStorage
	if cfg.Storage.StorageEnabled() {
		r2, err := utils.NewR2Storage(ctx, cfg.Storage)
		if err != nil {
			log.Fatal("failed to initialize R2 client", zap.Error(err))
		}
		storage = r2
	} else {
		local, err := utils.NewLocalStorage(cfg.Storage.UploadDir, "/uploads")
		if err != nil {
			log.Fatal("failed to ensure upload dir", zap.Error(err))
		}
		storage = local
		log.Warn("R2 credentials not set, storing photos on local disk", zap.String("dir", cfg.Storage.UploadDir))
	}

	jobs := workers.NewJobQueue(cfg.Jobs.QueueSize, cfg.Jobs.Workers, cfg.Jobs.Timeout, log)
	jobs.Start(ctx)

	var textGen services.TextGenerator
	if cfg.TextGen.APIKey != "" {
		textGen = services.NewOpenAIClient(cfg.TextGen, log)
	} else {
		log.Warn("OPENAI_API_KEY not set, celebrations use the fixed message")
	}

	hub := services.NewNotificationHub(log)
	userService := services.NewUserService(db, cfg.Bot.Email, cfg.Bot.Name)
	postService := services.NewPostService(db)
	notificationService := services.NewNotificationService(db, hub, cfg.App.ProfileURL, log)
	celebrationService := services.NewCelebrationService(postService, textGen, cfg.TextGen.Timeout, log)
	badgeService := services.NewBadgeService(db, services.BadgeServiceOptions{
		Registry:    registry,
		History:     services.NewHistoryStore(db),
		Jobs:        jobs,
		Bots:        userService,
		Notifier:    notificationService,
		Celebration: celebrationService,
		Locker:      locker,
		Location:    cfg.Location(),
		Logger:      log,
	})
	postService.WithMentions(services.MentionOptions{
		Notifier:   notificationService,
		Bots:       userService,
		Jobs:       jobs,
		BotReplies: services.NewBotReplyService(db, postService, textGen, cfg.TextGen.Timeout, log),
		Logger:     log,
	})
	tripService := services.NewTripService(db, storage, badgeService).WithNotifier(notificationService, log)
	suggestionService := services.NewSuggestionService(db, badgeService)
	onThisDay := services.NewOnThisDayService(db, postService, userService, log)

	hour, minute, _ := cfg.Scheduler.OnThisDayClock()
	sched, err := services.StartScheduler(ctx, services.SchedulerOptions{
		Location:         cfg.Location(),
		OnThisDayHour:    hour,
		OnThisDayMinute:  minute,
		SweepInterval:    cfg.Scheduler.SweepInterval,
		SweepConcurrency: cfg.Scheduler.SweepConcurrency,
	}, badgeService, userService, onThisDay, log)
	if err != nil {
		log.Fatal("failed to start scheduler", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 20 * 1024 * 1024, // photos
	})

	// 🔐❗ GLOBAL: Only Gateway requests allowed
	app.Use(middleware.GatewayAuthMiddleware(cfg.Server.GatewayToken, log))

	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.Server.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, Cache-Control",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	if !cfg.Storage.StorageEnabled() {
		app.Static("/uploads", cfg.Storage.UploadDir)
	}

	secured := app.Group("/", middleware.UserContextMiddleware(userService, log))
	handlers.SetupBadgeRoutes(secured, badgeService)
	handlers.SetupNotificationRoutes(secured, notificationService)
	handlers.SetupTimelineRoutes(secured, postService, badgeService)
	handlers.SetupTripRoutes(secured, tripService, suggestionService)
	handlers.SetupUserRoutes(secured, userService)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		if err := app.Listen(addr); err != nil {
			log.Error("server error", zap.Error(err))
			stop()
		}
	}()

	log.Info("✅ server running",
		zap.Int("port", cfg.Server.Port),
		zap.Strings("cors_origins", cfg.Server.AllowedOrigins),
		zap.String("timezone", cfg.App.Timezone))

	<-ctx.Done()
	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error("http shutdown failed", zap.Error(err))
	}
	if err := sched.Shutdown(); err != nil {
		log.Error("scheduler shutdown failed", zap.Error(err))
	}
	if err := jobs.Stop(shutdownCtx); err != nil {
		log.Error("job queue did not drain", zap.Error(err))
	}
}
