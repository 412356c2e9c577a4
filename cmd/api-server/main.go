package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hackgods/pediatric-clinic-booking/internal/api"
	"github.com/hackgods/pediatric-clinic-booking/internal/auth"
	"github.com/hackgods/pediatric-clinic-booking/internal/booking"
	"github.com/hackgods/pediatric-clinic-booking/internal/chatbot"
	"github.com/hackgods/pediatric-clinic-booking/internal/clinic"
	"github.com/hackgods/pediatric-clinic-booking/internal/config"
	"github.com/hackgods/pediatric-clinic-booking/internal/db"
	"github.com/hackgods/pediatric-clinic-booking/internal/logging"
	"github.com/hackgods/pediatric-clinic-booking/internal/metrics"
	redisclient "github.com/hackgods/pediatric-clinic-booking/internal/redis"
	"github.com/hackgods/pediatric-clinic-booking/internal/session"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	if err := cfg.RequireJWT(); err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("api-server starting up",
		zap.String("http_port", cfg.HTTPPort),
		zap.String("version", version),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 30*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{Attempts: 5, Logger: logger})
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(rootCtx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		logger.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", zap.Error(err))
		}
	}()
	logger.Info("connected to Redis")

	locker := redisclient.NewRedisLocker(rdb, cfg.LockTTL)
	repo := clinic.NewPgRepository(pgPool)
	svc := clinic.NewService(repo, locker, clinic.ScheduleFromConfig(cfg.Clinic), logger)
	m := metrics.NewBookingMetrics(prometheus.DefaultRegisterer)

	engine := booking.NewEngine(
		metrics.InstrumentDirectory(svc, m),
		metrics.InstrumentBooker(svc, m),
		cfg.Clinic.Location,
	)
	coord := session.NewCoordinator(session.NewStore(rdb, cfg.ConversationTTL), locker, m, logger)
	conversations := session.NewConversations(engine, coord)

	authenticator := auth.NewAuthenticator(svc, cfg.LoginRate, cfg.LoginBurst, logger)
	tokens := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)

	var (
		staff     api.StaffDesk
		staffAuth api.StaffAuthenticator
	)
	if cfg.StaffEnabled() {
		staff = clinic.NewStaffService(svc, repo, logger.Named("staff"))
		staffAuth = auth.NewStaffAuthenticator(cfg.StaffLogin, cfg.StaffSecretHash, cfg.LoginRate, cfg.LoginBurst, logger)
		logger.Info("staff API enabled")
	}

	var chatWebhook http.Handler
	if cfg.TelegramToken != "" {
		telegram := chatbot.NewTelegramClient(cfg.TelegramAPIURL, cfg.TelegramToken, &http.Client{Timeout: 10 * time.Second})
		chatWebhook = chatbot.New(chatbot.Config{
			Conversations: conversations,
			Sessions:      session.NewChatStore(rdb, cfg.ChatSessionTTL),
			Auth:          authenticator,
			Directory:     svc,
			Messenger:     telegram,
			Location:      cfg.Clinic.Location,
			Logger:        logger.Named("chatbot"),
		})
		logger.Info("chat front-end enabled")
	}

	router := api.NewRouter(api.RouterConfig{
		Conversations: conversations,
		Directory:     svc,
		Auth:          authenticator,
		Tokens:        tokens,
		Location:      cfg.Clinic.Location,
		Staff:         staff,
		StaffAuth:     staffAuth,
		PgPool:        pgPool,
		Redis:         rdb,
		ChatWebhook:   chatWebhook,
		ChatSecret:    cfg.TelegramWebhookSecret,
		Logger:        logger,
		Env:           cfg.Env,
		Version:       version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		logger.Error("HTTP server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}

	logger.Info("api-server stopped")
}
