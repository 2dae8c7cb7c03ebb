package main

import (
	"context"
	"os"
	"time"

	"sitetakip/internal/backend"
	"sitetakip/internal/cli"
	applog "sitetakip/internal/log"
	"sitetakip/internal/services"
	"sitetakip/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentBilling)
	logger.Info("Starting billing-worker")
	cfg := cli.LoadAndValidateConfig(logger)

	if cfg.DataBackend != string(backend.SQLiteBackend) {
		logger.Error("billing-worker needs the sqlite backend", "backend", cfg.DataBackend)
		os.Exit(1)
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger.Logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err)
		os.Exit(1)
	}

	// Dues created here publish ledger events like API writes do, so
	// sitetakip-worker exports them.
	dues := services.NewDuesService(res.Store, services.WithEvents(res.Publisher()))
	processor := services.NewBillingProcessor(res.Store, dues, cfg.BillingDueDay)

	scheduler, err := worker.NewBillingScheduler(processor, cfg.BillingSchedule, logger.Logger)
	if err != nil {
		logger.Error("Failed to schedule billing", applog.FieldError, err)
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := scheduler.Stop(ctx); err != nil {
			logger.Warn("Billing job still running at shutdown", applog.FieldError, err)
		}
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", applog.FieldError, err)
		}
	})

	// Catch up on a month whose scheduled run was missed; already billed
	// organizations are skipped.
	logger.Info("Running initial billing check...")
	if n, err := scheduler.RunNow(ctx); err != nil {
		logger.Error("Initial billing failed", applog.FieldError, err)
	} else {
		logger.Info("Initial billing complete", "dues_created", n)
	}

	scheduler.Start()
	logger.Info("Billing scheduled",
		"schedule", cfg.BillingSchedule,
		"due_day", cfg.BillingDueDay,
		"next_run", scheduler.Next().Format(time.RFC3339),
		"events", res.Events != nil)

	cli.WaitForShutdown(ctx, done)
	logger.Info("Billing worker stopped")
}
