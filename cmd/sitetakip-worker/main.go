package main

import (
	"context"
	"errors"
	"os"
	"time"

	"sitetakip/internal/backend"
	"sitetakip/internal/cli"
	applog "sitetakip/internal/log"
	gsheet "sitetakip/internal/sheets/google"
	"sitetakip/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker)
	logger.Info("Starting sitetakip-worker")
	cfg := cli.LoadAndValidateConfig(logger)

	// the memory backend lives inside the API process; there is nothing to read here
	if cfg.DataBackend != string(backend.SQLiteBackend) {
		logger.Error("sitetakip-worker needs the sqlite backend", "backend", cfg.DataBackend)
		os.Exit(1)
	}
	if !cfg.SheetsConfigured() {
		logger.Error("Google Sheets export is not configured (set GOOGLE_SPREADSHEET_ID and service account credentials)")
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

	sheetsClient, err := gsheet.New(context.Background(), gsheet.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	syncWorker := worker.NewSyncWorker(res.Store, sheetsClient, cfg.SyncBatchSize)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", applog.FieldError, err)
		}
	})

	if err := sheetsClient.EnsureHeaders(ctx); err != nil {
		// Don't exit - appends still work without headers
		logger.Warn("Failed to write sheet headers", applog.FieldError, err)
	}

	logger.Info("Performing startup sync check...")
	if err := syncWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Failed startup sync check", applog.FieldError, err)
	}

	if res.Events != nil {
		go func() {
			err := res.Events.ConsumeLedgerEvents(ctx, syncWorker.HandleLedgerEvent)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", applog.FieldError, err)
			}
		}()
	} else {
		logger.Warn("AMQP unavailable - exporting from periodic sweeps only", "interval", cfg.SyncInterval)
	}

	go syncWorker.RunSweeps(ctx, cfg.SyncInterval)

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
