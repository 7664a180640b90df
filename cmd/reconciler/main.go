package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/minipass/reconciler/internal/adapters/mailbox"
	"github.com/minipass/reconciler/internal/application/scan"
	"github.com/minipass/reconciler/internal/domain/matcher"
	"github.com/minipass/reconciler/internal/domain/parser"
	"github.com/minipass/reconciler/internal/infrastructure/config"
	"github.com/minipass/reconciler/internal/infrastructure/logging"
	"github.com/minipass/reconciler/internal/infrastructure/storage"
)

func main() {
	var (
		configFile = flag.String("config", "config.yaml", "Configuration file path")
		once       = flag.Bool("once", false, "Run a single pass and exit")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.LoadOrEnvWithPath(*configFile)
	if *verbose {
		cfg.Observability.Logging.Level = "debug"
	}

	logger := logging.NewLoggerWithSystem(cfg.Observability.Logging, "scan")

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	store, err := storage.NewStorage(cfg.Storage.DatabasePath)
	if err != nil {
		logger.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	dialer := mailbox.NewIMAPDialer(mailbox.Config{
		Host:            cfg.IMAP.Host,
		Port:            cfg.IMAP.Port,
		Username:        cfg.IMAP.Username,
		Password:        cfg.IMAP.Password,
		ProcessedFolder: cfg.IMAP.ProcessedFolder,
		SenderFilter:    cfg.IMAP.SenderFilter,
		SubjectFilter:   cfg.IMAP.SubjectFilter,
		DialTimeout:     cfg.IMAP.DialTimeout,
	}, logger)

	orchestrator, err := scan.NewOrchestrator(scan.Options{
		Dialer: dialer,
		Repo:   store,
		Parser: parser.New(cfg.Matching.Currency),
		Matcher: matcher.NewMatcher(matcher.Config{
			Threshold:      cfg.Matching.Threshold,
			RunnerUpMargin: cfg.Matching.RunnerUpMargin,
		}),
		Logger:         logger,
		Account:        cfg.IMAP.Username,
		AllowedSenders: cfg.Scan.AllowedSenders,
		PassTimeout:    cfg.Scan.PassTimeout,
	})
	if err != nil {
		logger.Error("Failed to build orchestrator", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *once || cfg.Scan.PollInterval <= 0 {
		if err := runPass(ctx, orchestrator, logger); err != nil {
			os.Exit(1)
		}
		return
	}

	logger.Info("Starting poll loop", "interval", cfg.Scan.PollInterval)
	ticker := time.NewTicker(cfg.Scan.PollInterval)
	defer ticker.Stop()

	// First pass immediately, then on the ticker.
	_ = runPass(ctx, orchestrator, logger)
	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutting down")
			return
		case <-ticker.C:
			_ = runPass(ctx, orchestrator, logger)
		}
	}
}

func runPass(ctx context.Context, orchestrator *scan.Orchestrator, logger *slog.Logger) error {
	_, err := orchestrator.RunPass(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, scan.ErrAlreadyRunning):
		logger.Warn("Previous pass still running, skipping cycle")
		return nil
	case errors.Is(err, context.Canceled):
		return nil
	default:
		logger.Error("Pass failed", "error", err)
		return err
	}
}
