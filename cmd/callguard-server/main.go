package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lisafeets/callguard/internal/auth"
	"github.com/lisafeets/callguard/internal/config"
	"github.com/lisafeets/callguard/internal/database"
	"github.com/lisafeets/callguard/internal/httpapi"
	"github.com/lisafeets/callguard/internal/logger"
	"github.com/lisafeets/callguard/internal/notify"
	"github.com/lisafeets/callguard/internal/privacy"
	"github.com/lisafeets/callguard/internal/realtime"
	"github.com/lisafeets/callguard/internal/repository"
	"github.com/lisafeets/callguard/internal/service"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func main() {
	cfg := config.LoadServer()

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, "callguard-server")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if cfg.Privacy.HashSecret == "" || cfg.Privacy.MasterSecret == "" {
		log.Fatal("PRIVACY_HASH_SECRET and PRIVACY_MASTER_SECRET are required")
	}
	if cfg.Auth.TokenSecret == "" {
		log.Fatal("AUTH_TOKEN_SECRET is required")
	}

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatal("Database connection failed", zap.Error(err))
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		// redis 只承担警报去重；不可用时退化为 at-least-once，不阻止启动
		log.Warn("Redis unreachable, alert dedup degraded", zap.Error(err))
	}

	hasher := privacy.NewHasher(cfg.Privacy.HashSecret)
	encryptor, err := privacy.NewEncryptor(cfg.Privacy.MasterSecret)
	if err != nil {
		log.Fatal("Encryptor init failed", zap.Error(err))
	}

	activityRepo := repository.NewPostgresActivityRepository(db, log)
	alertRepo := repository.NewPostgresAlertRepository(db, log)
	familyRepo := repository.NewPostgresFamilyRepository(db, log)

	tokenSvc := auth.NewTokenService(cfg.Auth.TokenSecret, cfg.Auth.TokenTTL)

	registry := realtime.NewRegistry(cfg.Realtime.HeartbeatInterval, cfg.Realtime.WriteTimeout, log)
	gateway := realtime.NewGateway(registry, tokenSvc, log)

	channels := []notify.Channel{
		notify.NewEmailChannel(log),
		notify.NewSMSChannel(log),
		notify.NewPushChannel(log),
	}
	dispatcher := service.NewAlertDispatcher(alertRepo, familyRepo, registry, channels, log)
	analyzer := service.NewPatternAnalyzer(activityRepo, redisClient, dispatcher, log)
	activitySvc := service.NewActivityService(activityRepo, analyzer, hasher, encryptor, log)
	summarySvc := service.NewSummaryService(activityRepo, familyRepo, log)
	retention := service.NewRetentionService(
		activityRepo, alertRepo,
		time.Duration(cfg.Retention.ActivityDays)*24*time.Hour,
		time.Duration(cfg.Retention.AlertDays)*24*time.Hour,
		cfg.Retention.Interval,
		log,
	)

	router := httpapi.NewRouter(log)
	router.RegisterActivityRoutes(httpapi.NewActivityHandler(activitySvc, summarySvc, log), tokenSvc)
	router.RegisterAlertRoutes(httpapi.NewAlertHandler(alertRepo, log), tokenSvc)
	router.RegisterHealthRoute()
	router.Handle("/realtime/ws", gateway.HandleWS)

	srv := service.NewServer(cfg.HTTP.Addr, router, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go registry.Run(ctx)
	go retention.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		cancel()
	case err := <-errCh:
		log.Error("HTTP server exited", zap.Error(err))
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}
