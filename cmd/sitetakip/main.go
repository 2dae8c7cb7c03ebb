package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"sitetakip/internal/backend"
	"sitetakip/internal/cli"
	apphttp "sitetakip/internal/http"
	applog "sitetakip/internal/log"
	"sitetakip/internal/session"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	if cfg.JWTSecret == "" {
		logger.Error("JWT_SECRET is required to issue session tokens")
		os.Exit(1)
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger.Logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	sessions, err := session.NewManager(res.Store, cfg.JWTSecret, cfg.SessionTTL)
	if err != nil {
		logger.Error("Failed to initialize session manager", applog.FieldError, err)
		os.Exit(1)
	}

	srv, err := apphttp.NewServer(apphttp.Options{
		Addr:            ":" + cfg.Port,
		Store:           res.Store,
		Sessions:        sessions,
		Events:          res.Publisher(),
		Logger:          logger.WithComponent(applog.ComponentHTTP),
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		TrustedProxies:  cfg.TrustedProxies,
		WritesPerMinute: cfg.RateLimitPerMinute,
	})
	if err != nil {
		logger.Error("Failed to create HTTP server", applog.FieldError, err)
		os.Exit(1)
	}
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", applog.FieldError, err)
		}
	})

	logger.Info("Starting sitetakip server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"events", res.Events != nil,
		applog.FieldOperation, applog.OpStartup)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
