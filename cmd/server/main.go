package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/dealdesk/internal/admin"
	"github.com/hugh/dealdesk/internal/analysis"
	"github.com/hugh/dealdesk/internal/api"
	"github.com/hugh/dealdesk/internal/auth"
	"github.com/hugh/dealdesk/internal/billing"
	"github.com/hugh/dealdesk/internal/database"
	"github.com/hugh/dealdesk/internal/metrics"
	"github.com/hugh/dealdesk/internal/notifications"
	"github.com/hugh/dealdesk/internal/storage"
	"github.com/hugh/dealdesk/internal/team"
	"github.com/hugh/dealdesk/pkg/config"
	"github.com/hugh/dealdesk/pkg/crypto"
	"github.com/hugh/dealdesk/pkg/queue"
	"github.com/hugh/dealdesk/pkg/util"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load .env file
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := util.NewLogger(cfg.Server.Env, "dealdesk-api")
	slog.SetDefault(logger)

	logger.Info("starting DealDesk server",
		"env", cfg.Server.Env,
		"addr", cfg.Server.Addr(),
	)

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := database.AutoMigrate(db); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Warn("failed to connect to Redis", "error", err)
		redisClient.Close()
		redisClient = nil
	}

	// Admin-triggered sweeps go through the same queue the worker drains
	var asynqClient *asynq.Client
	if redisClient != nil {
		asynqClient = queue.NewClient(&cfg.Redis)
	}

	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		logger.Error("failed to create encryptor", "error", err)
		os.Exit(1)
	}
	if cfg.Encryption.Key == "" {
		logger.Warn("ENCRYPTION_KEY not set, using generated key - saved analyses will be unreadable after restart")
	}

	store, err := storage.New(context.Background(), cfg.Storage, logger)
	if err != nil {
		logger.Error("failed to initialise export storage", "error", err)
		os.Exit(1)
	}
	if store == nil {
		logger.Info("no export storage configured, reports will be returned inline")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(registry)

	clock := util.SystemClock()
	settings := admin.NewSettingsService(db, admin.DefaultSettings(cfg), cfg.Admin.SettingsCacheTTL(), clock, logger)
	checker := admin.NewChecker(db, cfg.Admin.AdminCheckCacheTTL(), clock)

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiry())
	billingService := billing.NewService(db, settings, clock, m, logger)
	teamService := team.NewService(db, billingService, settings, clock, m, logger)
	authService := auth.NewService(db, jwtService, clock, logger)
	authService.OnSignup(teamService.ClaimSignups)
	analysisService := analysis.NewService(db, billingService, encryptor, logger, analysis.Options{
		Limits:    settings,
		Store:     store,
		URLExpiry: cfg.Storage.URLExpiry(),
		Clock:     clock,
		Metrics:   m,
	})

	if cfg.Admin.PIN == "" {
		logger.Warn("ADMIN_PIN not set, admin user deletion is disabled")
	}

	router := api.NewRouter(api.RouterConfig{
		DB:                  db,
		Redis:               redisClient,
		Logger:              logger,
		Clock:               clock,
		Metrics:             m,
		JWTService:          jwtService,
		AuthService:         authService,
		BillingService:      billingService,
		TeamService:         teamService,
		AnalysisService:     analysisService,
		NotificationService: notifications.NewService(db, clock),
		AdminService:        admin.NewService(db, billingService, teamService, checker, logger),
		Settings:            settings,
		AdminChecker:        checker,
		PINVerifier:         admin.NewPINVerifier(cfg.Admin.PIN, cfg.Admin.PINDelay()),
		AsynqClient:         asynqClient,
		WebhookSecret:       cfg.Payments.WebhookSecret,
		AllowedOrigins:      cfg.Server.AllowedOrigins,
		SecureCookies:       !cfg.Server.IsDevelopment(),
		RateLimitReqs:       cfg.RateLimit.Requests,
		RateLimitSecs:       cfg.RateLimit.WindowSeconds,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if asynqClient != nil {
		asynqClient.Close()
	}
	if redisClient != nil {
		redisClient.Close()
	}
	if store != nil {
		if err := store.Close(); err != nil {
			logger.Warn("closing export storage", "error", err)
		}
	}

	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("server stopped")
}
