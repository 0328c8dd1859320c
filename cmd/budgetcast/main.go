package main

import (
	"context"
	"errors"
	"net/http"
	"os"

	"golang.org/x/sync/errgroup"

	"budgetcast/internal/cli"
	"budgetcast/internal/config"
	apphttp "budgetcast/internal/http"
	"budgetcast/internal/log"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(config.Load(), log.ComponentApp)

	cfg, err := cli.LoadAndValidateConfig(logger)
	if err != nil {
		os.Exit(1)
	}

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	recorder, err := cli.NewRecorder(ctx, cfg, logger)
	if err != nil {
		os.Exit(1)
	}
	svc := cli.NewForecastService(cfg, recorder)
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Error("Failed to close run journal", log.FieldError, err.Error())
		}
	}()

	srv, err := apphttp.NewServer(apphttp.OptionsFromConfig(cfg), svc, logger)
	if err != nil {
		logger.Error("Failed to build HTTP server", log.FieldError, err.Error())
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting budgetcast server",
			"port", cfg.Port,
			"journal_backend", cfg.JournalBackend,
			"seeded", cfg.RandomSeed != "",
			"max_forecast_months", cfg.MaxForecastMonths)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", log.FieldError, err.Error(), "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
