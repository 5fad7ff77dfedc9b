package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fleet-backend/internal/config"
	"fleet-backend/internal/database"
	"fleet-backend/internal/logger"
	"fleet-backend/internal/scheduler"
	"fleet-backend/internal/server"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logg, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logg.Sync() }()

	db, err := database.Open(cfg, logg)
	if err != nil {
		logg.Fatal("database", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats := server.NewStatisticsService(db, logg)
	app := server.New(cfg, db, stats, logg)

	var sched *scheduler.Scheduler
	if cfg.StatsCron != "" {
		sched = scheduler.New(stats, logg, ctx)
		if _, err := sched.Schedule(cfg.StatsCron); err != nil {
			logg.Fatal("invalid STATS_CRON", zap.String("spec", cfg.StatsCron), zap.Error(err))
		}
		sched.Start()
	}

	go func() {
		<-ctx.Done()
		logg.Info("shutting down")
		if sched != nil {
			sched.Stop()
		}
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logg.Error("http shutdown", zap.Error(err))
		}
	}()

	logg.Info("server listening", zap.String("port", cfg.HTTPPort), zap.String("env", cfg.AppEnv))
	if err := app.Listen(":" + cfg.HTTPPort); err != nil {
		logg.Fatal("http listen", zap.Error(err))
	}
}
