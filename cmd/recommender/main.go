package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"squad_recommender/internal/app"
	"squad_recommender/internal/domain/catalog"
	"squad_recommender/internal/domain/mission"
	catalogClient "squad_recommender/internal/infra/catalog"
	"squad_recommender/internal/infra/config"
	idb "squad_recommender/internal/infra/database"
	"squad_recommender/internal/infra/httpapi"
	"squad_recommender/internal/infra/logger"
	"squad_recommender/internal/infra/mail"
	"squad_recommender/internal/infra/ratelimit"
	"squad_recommender/internal/infra/scheduler"
	"squad_recommender/internal/infra/telegram"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatalf("FATAL: Could not load application configuration: %v", err)
	}

	logger.Init(cfg)
	mainLogger := logger.Component("main")
	mainLogger.WithFields(logrus.Fields{
		"environment": cfg.Environment,
		"timezone":    cfg.Location.String(),
	}).Info("Squad recommender starting...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize Database Connection
	db, err := idb.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		mainLogger.Fatalf("FATAL: Could not connect to database: %v", err)
	}
	defer db.Close()
	if err := idb.ApplySchema(ctx, db); err != nil {
		mainLogger.Fatalf("FATAL: Could not apply database schema: %v", err)
	}
	mainLogger.Info("Database connection established and schema applied.")

	// Initialize Repositories
	missionRepo := idb.NewPostgresMissionRepository(db)
	squadDirectory := idb.NewPostgresSquadDirectory(db)
	catalogRepo := idb.NewPostgresCatalogRepository(db)

	// Catalog client, rate limited per actor when Redis is configured
	var recommender catalog.Recommender = catalogClient.NewClient(cfg.CatalogBaseURL, cfg.CatalogTimeout)
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = ratelimit.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			mainLogger.Fatalf("FATAL: Could not connect to Redis: %v", err)
		}
		defer redisClient.Close()
		limiter := ratelimit.NewFixedWindow(redisClient, cfg.RateLimitMax, cfg.RateLimitWindow, logger.Log.WithField("service", "ratelimit"))
		recommender = catalogClient.NewRateLimitedRecommender(recommender, limiter)
		mainLogger.WithField("max_per_window", cfg.RateLimitMax).Info("Catalog rate limiting enabled.")
	} else {
		mainLogger.Warn("REDIS_URL is not set; catalog rate limiting disabled.")
	}

	clock := mission.SystemClock{Location: cfg.Location}
	serviceLogger := logger.Log.WithField("layer", "app")

	// Initialize Services
	composer := mail.NewTemplateComposer(missionRepo, cfg.ProblemURLFormat)
	transport := mail.NewSMTPTransport(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.MailFrom, cfg.MailFromName, cfg.SMTPTimeout)
	creator := app.NewRecommendationCreator(missionRepo, squadDirectory, recommender, catalogRepo, clock, serviceLogger)
	deliveryService := app.NewDeliveryService(missionRepo, squadDirectory, composer, transport, clock, cfg.SMTPTimeout, cfg.BatchWorkers, serviceLogger)
	scheduledService := app.NewScheduledService(squadDirectory, missionRepo, creator, cfg.BatchWorkers, serviceLogger)
	manualService := app.NewManualService(missionRepo, creator, deliveryService, clock, cfg.BlockedWindow, serviceLogger)
	solveService := app.NewSolveService(missionRepo, clock, serviceLogger)
	mainLogger.Info("Application services initialized.")

	// Optional Telegram admin bot
	var reporter scheduler.RunReporter
	var bot *telebot.Bot
	if cfg.TelegramToken != "" {
		botLogger := logger.Component("telegram_bot")
		pref := telebot.Settings{
			Token:  cfg.TelegramToken,
			Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
			OnError: func(err error, c telebot.Context) {
				entry := botLogger.WithError(err)
				if c != nil && c.Sender() != nil && c.Chat() != nil {
					entry = entry.WithFields(logrus.Fields{"sender_id": c.Sender().ID, "chat_id": c.Chat().ID, "text": c.Text()})
				}
				entry.Error("Telebot error")
			},
		}
		bot, err = telebot.NewBot(pref)
		if err != nil {
			mainLogger.Fatalf("FATAL: Could not create Telegram bot: %v", err)
		}
		telegram.RegisterBotCommands(bot, cfg.AdminTelegramID, botLogger)
		telegram.RegisterAdminHandlers(ctx, bot, squadDirectory, manualService, deliveryService, solveService, cfg.AdminTelegramID, cfg.Location, cfg.BlockedWindow, botLogger)
		reporter = telegram.NewRunReporter(telegram.NewChatNotifier(bot), cfg.AdminTelegramID, botLogger)
		mainLogger.Info("Telegram admin handlers registered.")
	}

	// Initialize Scheduler
	missionScheduler := scheduler.NewMissionScheduler(
		scheduledService,
		deliveryService,
		reporter,
		clock,
		cfg.Location,
		logger.Component("scheduler"),
		cfg.CronSpecDailyBatch,
		cfg.CronSpecDeliverySweep,
	)
	if err := missionScheduler.Start(); err != nil {
		mainLogger.Fatalf("FATAL: Could not start scheduler: %v", err)
	}

	// HTTP API
	handler := httpapi.NewHandler(squadDirectory, manualService, deliveryService, solveService, cfg.AdminAPIToken, cfg.TrustProxy, logger.Log.WithField("layer", "http"))
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		mainLogger.WithField("addr", cfg.HTTPAddr).Info("HTTP server listening.")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			mainLogger.WithError(err).Error("HTTP server failed")
			stop()
		}
	}()

	if bot != nil {
		// Start bot in a goroutine so it doesn't block graceful shutdown handling
		go bot.Start()
	}

	mainLogger.Info("Application setup complete. Scheduler, HTTP server and bot are running.")
	<-ctx.Done()

	mainLogger.Info("Shutting down application...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		mainLogger.WithError(err).Warn("HTTP server shutdown incomplete")
	}
	if bot != nil {
		bot.Stop()
	}
	missionScheduler.Stop()
	mainLogger.Info("Application shut down gracefully.")
}
