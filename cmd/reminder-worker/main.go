package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/pediatric-clinic-booking/internal/chatbot"
	"github.com/hackgods/pediatric-clinic-booking/internal/clinic"
	"github.com/hackgods/pediatric-clinic-booking/internal/config"
	"github.com/hackgods/pediatric-clinic-booking/internal/db"
	"github.com/hackgods/pediatric-clinic-booking/internal/logging"
	redisclient "github.com/hackgods/pediatric-clinic-booking/internal/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.TelegramToken == "" {
		logger.Fatal("TELEGRAM_BOT_TOKEN is required for reminders")
	}

	logger.Info("reminder-worker starting up", zap.Duration("interval", cfg.ReminderInterval))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 2})
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()

	rdb, err := redisclient.NewRedisClient(rootCtx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
		PoolSize: 2,
	})
	if err != nil {
		logger.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", zap.Error(err))
		}
	}()

	repo := clinic.NewPgRepository(pgPool)
	locker := redisclient.NewRedisLocker(rdb, cfg.LockTTL)
	svc := clinic.NewService(repo, locker, clinic.ScheduleFromConfig(cfg.Clinic), logger)

	telegram := chatbot.NewTelegramClient(cfg.TelegramAPIURL, cfg.TelegramToken, &http.Client{Timeout: 10 * time.Second})
	sender := chatbot.NewReminders(telegram)

	// Run once at startup
	runOnce(rootCtx, svc, sender, logger)

	ticker := time.NewTicker(cfg.ReminderInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping reminder worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, sender, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *clinic.Service, sender clinic.ReminderSender, logger *zap.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	start := time.Now()
	sent, err := svc.SendDueReminders(runCtx, sender)
	if err != nil {
		logger.Error("reminder run error", zap.Error(err))
		return
	}
	logger.Info("reminder run complete", zap.Int("sent", sent), zap.Duration("took", time.Since(start)))
}
