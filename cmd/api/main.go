package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/minipass/reconciler/internal/api"
	"github.com/minipass/reconciler/internal/application/operator"
	"github.com/minipass/reconciler/internal/infrastructure/config"
	"github.com/minipass/reconciler/internal/infrastructure/logging"
	"github.com/minipass/reconciler/internal/infrastructure/storage"
)

func main() {
	var (
		configFile = flag.String("config", "config.yaml", "Configuration file path")
		listenAddr = flag.String("addr", "", "Listen address (overrides config)")
	)
	flag.Parse()

	_ = godotenv.Load()

	cfg := config.LoadOrEnvWithPath(*configFile)
	logger := logging.NewLoggerWithSystem(cfg.Observability.Logging, "api")

	store, err := storage.NewStorage(cfg.Storage.DatabasePath)
	if err != nil {
		logger.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	serverCfg := api.DefaultConfig()
	serverCfg.ListenAddr = cfg.API.ListenAddr
	if *listenAddr != "" {
		serverCfg.ListenAddr = *listenAddr
	}

	svc := operator.NewService(store, logger)
	server := api.NewServer(serverCfg, svc, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Shutdown failed", "error", err)
		}
	}
}
