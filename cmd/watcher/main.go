package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/mailsight/mailsight/internal/alert"
	"github.com/mailsight/mailsight/internal/analysis"
	"github.com/mailsight/mailsight/internal/config"
	"github.com/mailsight/mailsight/internal/database"
	"github.com/mailsight/mailsight/internal/email"
	"github.com/mailsight/mailsight/internal/extract"
	"github.com/mailsight/mailsight/internal/metrics"
	"github.com/mailsight/mailsight/internal/observe"
	"github.com/mailsight/mailsight/internal/owner"
	"github.com/mailsight/mailsight/internal/queue"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting sent-folder image watcher", "backend", string(cfg.AIBackend))

	// Connect to database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Run migrations
	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations completed")

	// Create components
	extractor := extract.New(logger)
	resolver := owner.New(db, logger)
	observers := observe.NewRegistry(logger)
	dispatcher := analysis.NewDispatcher(cfg, logger)

	notifiers, err := buildNotifiers(cfg, logger)
	if err != nil {
		logger.Error("failed to set up alert channels", "error", err)
		os.Exit(1)
	}
	engine := alert.NewEngine(db, notifiers, logger)

	service := analysis.NewService(dispatcher, db, observers, engine, logger)
	drain := queue.New(db, service, func(err error) bool {
		return errors.Is(err, database.ErrNotFound)
	}, cfg.QueuePollInterval, logger)

	session := email.NewClient(cfg, logger)
	poller := email.NewPoller(cfg, logger, session, db, extractor, resolver, service, drain, func(err error) bool {
		return errors.Is(err, database.ErrAlreadyExists)
	})

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		logger.Info("received shutdown signal", "signal", sig)
		logger.Info("shutting down...")
		cancel()
	}()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := drain.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("re-dispatch queue stopped", "error", err)
		}
	}()

	if cfg.MetricsAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := metrics.Serve(ctx, cfg.MetricsAddr, logger); err != nil {
				logger.Error("metrics listener stopped", "error", err)
			}
		}()
	}

	// Start watching
	logger.Info("watcher is running, press Ctrl+C to stop")
	if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("poller stopped", "error", err)
	}

	wg.Wait()
	logger.Info("watcher stopped")
}

// buildNotifiers wires the alert channels that configuration enables
func buildNotifiers(cfg *config.Config, logger *slog.Logger) ([]alert.Notifier, error) {
	var notifiers []alert.Notifier

	if cfg.EmailAlertsEnabled() {
		notifiers = append(notifiers, alert.NewEmailNotifier(cfg, logger))
		logger.Info("email alert channel enabled", "smtp", cfg.SMTPHost)
	}
	if cfg.SMSAlertsEnabled() {
		client := &http.Client{Timeout: 30 * time.Second}
		notifiers = append(notifiers, alert.NewSMSNotifier(cfg.SMSGatewayURL, client, logger))
		logger.Info("sms alert channel enabled")
	}
	if cfg.TelegramAlertsEnabled() {
		tg, err := alert.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID, logger)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, tg)
		logger.Info("telegram alert channel enabled")
	}

	if len(notifiers) == 0 {
		logger.Warn("no alert channels configured, matched rules will only be logged")
	}
	return notifiers, nil
}

func setupLogger(level, format string) *slog.Logger {
	var handler slog.Handler
	logLevel := parseLevel(level)

	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		})
	} else {
		// Pretty colored output for console
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.DateTime,
			NoColor:    false,
		})
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
