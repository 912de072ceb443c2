package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"remesas/internal/backend"
	"remesas/internal/cli"
	apphttp "remesas/internal/http"
	applog "remesas/internal/log"
	"remesas/internal/middleware/ratelimit"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger).CreateBackend(context.Background(), bcfg)
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	app := backend.NewApp(res, backend.AppOptions{
		BudgetCacheTTL: cfg.BudgetCacheTTL,
		BaseSuffix:     cfg.BaseSuffix,
	})
	app.Caches.StartCleanup(time.Minute)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Services{
		Catalog: app.Catalog,
		Budget:  app.Budget,
		Remesas: app.Remesas,
		Import:  app.Import,
		Export:  app.Export,
	}, apphttp.Options{
		MaxUploadBytes: cfg.MaxUploadBytes,
		RateLimit:      ratelimit.DefaultConfig(),
		Logger:         logger,
		Ready:          res.Ready,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		app.Caches.Stop()
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", applog.FieldError, err)
		}
	})

	logger.Info("Starting remesas server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"amqp_enabled", res.Publisher != nil,
		"ledger_enabled", res.Ledger != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
