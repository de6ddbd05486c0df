package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/dealdesk/internal/admin"
	"github.com/hugh/dealdesk/internal/billing"
	"github.com/hugh/dealdesk/internal/database"
	"github.com/hugh/dealdesk/internal/metrics"
	"github.com/hugh/dealdesk/internal/tasks"
	"github.com/hugh/dealdesk/internal/team"
	"github.com/hugh/dealdesk/pkg/config"
	"github.com/hugh/dealdesk/pkg/queue"
	"github.com/hugh/dealdesk/pkg/util"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	// Load .env file
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := util.NewLogger(cfg.Server.Env, "dealdesk-worker")
	slog.SetDefault(logger)

	logger.Info("starting DealDesk worker", "sweep_cron", cfg.Worker.SweepCron)

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	clock := util.SystemClock()
	m := metrics.NewMetrics(prometheus.NewRegistry())
	settings := admin.NewSettingsService(db, admin.DefaultSettings(cfg), cfg.Admin.SettingsCacheTTL(), clock, logger)
	billingService := billing.NewService(db, settings, clock, m, logger)
	teamService := team.NewService(db, billingService, settings, clock, m, logger)

	handler := tasks.NewHandler(billingService, teamService, logger)
	mux := asynq.NewServeMux()
	handler.RegisterHandlers(mux)

	scheduler := queue.NewScheduler(&cfg.Redis)
	if err := tasks.Schedule(scheduler, cfg.Worker.SweepCron); err != nil {
		logger.Error("failed to schedule sweeps", "error", err)
		os.Exit(1)
	}
	if next, err := util.NextCronTime(cfg.Worker.SweepCron, time.Now()); err == nil {
		logger.Info("sweeps scheduled", "next_run", next)
	}
	if err := scheduler.Start(); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	srv := queue.NewServer(&cfg.Redis, cfg.Worker.Concurrency)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("shutting down worker...")
		scheduler.Shutdown()
		srv.Shutdown()
		cancel()
	}()

	logger.Info("worker started, waiting for tasks...")

	if err := srv.Run(mux); err != nil {
		logger.Error("worker error", "error", err)
		cancel()
	}

	<-ctx.Done()

	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("worker stopped")
}
