package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/lisafeets/callguard/internal/agent"
	"github.com/lisafeets/callguard/internal/cache"
	"github.com/lisafeets/callguard/internal/config"
	"github.com/lisafeets/callguard/internal/logger"

	"go.uber.org/zap"
)

func main() {
	cfg := config.LoadAgent()

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, "callguard-agent")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if cfg.DeviceToken == "" {
		log.Fatal("DEVICE_TOKEN is required")
	}

	store, err := agent.OpenStore(cfg.DBPath)
	if err != nil {
		log.Fatal("Queue database open failed", zap.Error(err))
	}
	defer store.Close()

	spoolDir := os.Getenv("AGENT_SPOOL_DIR")
	if spoolDir == "" {
		spoolDir = filepath.Join(filepath.Dir(cfg.DBPath), "spool")
	}
	source := agent.NewFileSource(spoolDir)

	contacts := cache.New(cfg.ContactCacheSize, cfg.ContactCacheTTL)
	collector := agent.NewCollector(source, store, contacts, log)
	client := agent.NewSyncClient(cfg.ServerURL, cfg.DeviceToken, cfg.Sync.UploadTimeout, log)
	runner := agent.NewRunner(collector, store, client, cfg.Sync.Interval, cfg.Sync.BatchSize, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	log.Info("Agent starting",
		zap.String("server_url", cfg.ServerURL),
		zap.String("db_path", cfg.DBPath),
		zap.String("spool_dir", spoolDir),
	)
	runner.Run(ctx)
}
