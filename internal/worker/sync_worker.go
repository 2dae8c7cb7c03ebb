package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"sitetakip/internal/amqp"
	"sitetakip/internal/core"
	"sitetakip/internal/ledger"
	applog "sitetakip/internal/log"
	"sitetakip/internal/sheets"
)

// SyncStore is what the worker reads from the ledger.
type SyncStore interface {
	ledger.ExportTracker
	GetDue(ctx context.Context, id string) (core.Due, error)
	GetExpense(ctx context.Context, id string) (core.Expense, error)
}

// SyncWorker copies dues and expenses from the ledger to the spreadsheet
// journal. Events drive it; ProcessPendingExports catches whatever the
// events missed.
type SyncWorker struct {
	store     SyncStore
	exporter  sheets.LedgerExporter
	batchSize int
	now       func() time.Time
}

func NewSyncWorker(store SyncStore, exporter sheets.LedgerExporter, batchSize int) *SyncWorker {
	if batchSize < 1 {
		batchSize = 10
	}
	return &SyncWorker{
		store:     store,
		exporter:  exporter,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// HandleLedgerEvent exports the records named by the event. Records that no
// longer exist or belong to another organization are skipped, so a bad
// event is acknowledged instead of requeued forever.
func (w *SyncWorker) HandleLedgerEvent(ctx context.Context, ev *amqp.LedgerEvent) error {
	slog.InfoContext(ctx, "Processing ledger event",
		"type", ev.Type,
		applog.FieldOrganizationID, ev.OrganizationID,
		"ids", len(ev.IDs),
		"version", ev.Version)

	if ev.IsDueEvent() {
		dues, err := w.loadDues(ctx, ev.IDs, ev.OrganizationID)
		if err != nil {
			return err
		}
		return w.exportDues(ctx, dues)
	}

	expenses, err := w.loadExpenses(ctx, ev.IDs, ev.OrganizationID)
	if err != nil {
		return err
	}
	return w.exportExpenses(ctx, expenses)
}

// ProcessPendingExports exports one batch of never-exported dues and one of
// expenses. This is a backup mechanism in case AMQP messages are lost.
func (w *SyncWorker) ProcessPendingExports(ctx context.Context) error {
	return w.sweep(ctx, w.batchSize)
}

// StartupSyncCheck runs a larger sweep at worker start to recover from
// downtime.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	if err := w.sweep(ctx, w.batchSize*5); err != nil {
		return fmt.Errorf("startup sync check: %w", err)
	}
	return nil
}

func (w *SyncWorker) sweep(ctx context.Context, limit int) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ids, err := w.store.PendingExports(gctx, ledger.ExportDue, limit)
		if err != nil {
			return fmt.Errorf("get pending dues: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}
		slog.InfoContext(gctx, "Processing pending dues", "count", len(ids))
		dues, err := w.loadDues(gctx, ids, "")
		if err != nil {
			return err
		}
		return w.exportDues(gctx, dues)
	})

	g.Go(func() error {
		ids, err := w.store.PendingExports(gctx, ledger.ExportExpense, limit)
		if err != nil {
			return fmt.Errorf("get pending expenses: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}
		slog.InfoContext(gctx, "Processing pending expenses", "count", len(ids))
		expenses, err := w.loadExpenses(gctx, ids, "")
		if err != nil {
			return err
		}
		return w.exportExpenses(gctx, expenses)
	})

	return g.Wait()
}

// loadDues fetches dues by id. An empty orgID accepts any organization.
func (w *SyncWorker) loadDues(ctx context.Context, ids []string, orgID string) ([]core.Due, error) {
	dues := make([]core.Due, 0, len(ids))
	for _, id := range ids {
		d, err := w.store.GetDue(ctx, id)
		if errors.Is(err, core.ErrNotFound) {
			slog.WarnContext(ctx, "Skipping missing due", applog.FieldDueID, id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get due %s: %w", id, err)
		}
		if orgID != "" && d.OrganizationID != orgID {
			slog.WarnContext(ctx, "Skipping due of another organization",
				applog.FieldDueID, id, applog.FieldOrganizationID, d.OrganizationID, "event_organization_id", orgID)
			continue
		}
		dues = append(dues, d)
	}
	return dues, nil
}

func (w *SyncWorker) loadExpenses(ctx context.Context, ids []string, orgID string) ([]core.Expense, error) {
	expenses := make([]core.Expense, 0, len(ids))
	for _, id := range ids {
		e, err := w.store.GetExpense(ctx, id)
		if errors.Is(err, core.ErrNotFound) {
			slog.WarnContext(ctx, "Skipping missing expense", applog.FieldExpenseID, id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get expense %s: %w", id, err)
		}
		if orgID != "" && e.OrganizationID != orgID {
			slog.WarnContext(ctx, "Skipping expense of another organization",
				applog.FieldExpenseID, id, applog.FieldOrganizationID, e.OrganizationID, "event_organization_id", orgID)
			continue
		}
		expenses = append(expenses, e)
	}
	return expenses, nil
}

func (w *SyncWorker) exportDues(ctx context.Context, dues []core.Due) error {
	if len(dues) == 0 {
		return nil
	}
	if err := w.exporter.ExportDues(ctx, dues); err != nil {
		return fmt.Errorf("export dues: %w", err)
	}
	ids := make([]string, len(dues))
	for i, d := range dues {
		ids[i] = d.ID
	}
	w.markExported(ctx, ledger.ExportDue, ids)
	return nil
}

func (w *SyncWorker) exportExpenses(ctx context.Context, expenses []core.Expense) error {
	if len(expenses) == 0 {
		return nil
	}
	if err := w.exporter.ExportExpenses(ctx, expenses); err != nil {
		return fmt.Errorf("export expenses: %w", err)
	}
	ids := make([]string, len(expenses))
	for i, e := range expenses {
		ids[i] = e.ID
	}
	w.markExported(ctx, ledger.ExportExpense, ids)
	return nil
}

// markExported records a successful export. Failures are only logged: the
// rows already reached the sheet, and a later sweep appends them again at
// worst.
func (w *SyncWorker) markExported(ctx context.Context, kind ledger.ExportKind, ids []string) {
	at := w.now().UTC()
	for _, id := range ids {
		if err := w.store.MarkExported(ctx, kind, id, at); err != nil {
			slog.ErrorContext(ctx, "Failed to mark as exported", "kind", kind, "id", id, applog.FieldError, err)
		}
	}
	slog.InfoContext(ctx, "Successfully exported records", "kind", kind, "count", len(ids))
}

// RunSweeps calls ProcessPendingExports every interval until ctx is done.
func (w *SyncWorker) RunSweeps(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.ProcessPendingExports(ctx); err != nil && ctx.Err() == nil {
				slog.ErrorContext(ctx, "Periodic export sweep failed", applog.FieldError, err)
			}
		}
	}
}
