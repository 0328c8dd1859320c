// Package cli provides common CLI initialization utilities and the
// budgetcast-cli command tree.
// This package consolidates the startup steps shared by cmd/budgetcast,
// cmd/budgetcast-worker and cmd/budgetcast-cli.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"budgetcast/internal/amqp"
	"budgetcast/internal/config"
	"budgetcast/internal/log"
	"budgetcast/internal/services"
	"budgetcast/internal/storage"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile(filenames ...string) {
	_ = godotenv.Load(filenames...)
}

// SetupLogger initializes structured logging from the LOG_LEVEL and LOG_FORMAT
// settings and installs it as the default logger. Invalid settings fall back
// to info level text output; Validate reports them afterwards.
func SetupLogger(cfg *config.Config, component string) *log.Logger {
	return log.Setup(loggerConfig(cfg, component, os.Stdout))
}

func loggerConfig(cfg *config.Config, component string, out io.Writer) log.Config {
	logCfg := log.DefaultConfig()
	logCfg.Component = component
	logCfg.Output = out
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		logCfg.Level = level
	}
	if isJSON, err := log.ParseFormat(cfg.LogFormat); err == nil {
		logCfg.JSON = isJSON
	}
	return logCfg
}

// LoadAndValidateConfig loads configuration and validates it.
func LoadAndValidateConfig(logger *log.Logger) (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err.Error())
		return nil, err
	}
	return cfg, nil
}

// InitSQLite initializes a SQLite repository with the given path.
func InitSQLite(logger *log.Logger, dbPath string) (*storage.SQLiteRepository, error) {
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", log.FieldError, err.Error(), "path", dbPath)
		return nil, err
	}
	logger.Info("SQLite journal ready", "path", dbPath)
	return repo, nil
}

// NewRecorder builds the run journal selected by JOURNAL_BACKEND. It returns
// a nil recorder when journaling is disabled.
func NewRecorder(ctx context.Context, cfg *config.Config, logger *log.Logger) (services.RunRecorder, error) {
	switch cfg.JournalBackend {
	case config.JournalNone, "":
		return nil, nil
	case config.JournalSQLite:
		repo, err := InitSQLite(logger, cfg.SQLiteDBPath)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case config.JournalAMQP:
		client, err := amqp.NewClient(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to connect to AMQP broker", log.FieldError, err.Error(), "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
			return nil, fmt.Errorf("connect amqp journal: %w", err)
		}
		logger.Info("AMQP journal ready", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		return client, nil
	default:
		return nil, fmt.Errorf("unknown journal backend %q", cfg.JournalBackend)
	}
}

// NewForecastService builds the forecast service for cfg around recorder.
func NewForecastService(cfg *config.Config, recorder services.RunRecorder) *services.ForecastService {
	seed, seeded := cfg.Seed()
	return services.NewForecastService(services.Options{
		DefaultMonths: cfg.DefaultForecastMonths,
		MaxMonths:     cfg.MaxForecastMonths,
		Seed:          seed,
		Seeded:        seeded,
	}, recorder)
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
