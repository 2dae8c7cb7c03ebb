package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"sitetakip/internal/core"
	"sitetakip/internal/ledger"
)

type BillingStore interface {
	ledger.OrganizationStore
	ledger.DueStore
}

// BillingProcessor bills every organization its monthly due amount once per
// month.
type BillingProcessor struct {
	store  BillingStore
	dues   *DuesService
	dueDay int
}

// NewBillingProcessor creates a processor that sets due dates on dueDay of
// the billed month, clamped to the month's last day.
func NewBillingProcessor(store BillingStore, dues *DuesService, dueDay int) *BillingProcessor {
	if dueDay < 1 {
		dueDay = 1
	}
	return &BillingProcessor{store: store, dues: dues, dueDay: dueDay}
}

// RunMonthlyBilling bills the month containing now. Organizations without a
// monthly amount and organizations that already have dues in the month are
// skipped, so rerunning it for the same month creates nothing. It returns
// the number of dues created.
func (p *BillingProcessor) RunMonthlyBilling(ctx context.Context, now time.Time) (int, error) {
	if p.store == nil || p.dues == nil {
		return 0, fmt.Errorf("processor not properly initialized")
	}

	orgs, err := p.store.ListOrganizations(ctx)
	if err != nil {
		return 0, fmt.Errorf("list organizations: %w", err)
	}

	year, month := now.Year(), int(now.Month())
	dueDate := p.dueDate(year, month)

	slog.InfoContext(ctx, "Running monthly billing",
		"organizations", len(orgs),
		"due_date", dueDate.String())

	created := 0
	for _, org := range orgs {
		if !org.MonthlyDueAmount.IsPositive() {
			slog.DebugContext(ctx, "Organization has no monthly amount, skipping", "organization_id", org.ID)
			continue
		}

		existing, err := p.store.ListDues(ctx, org.ID, year, month)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to check existing dues",
				"organization_id", org.ID,
				"error", err)
			continue
		}
		if len(existing) > 0 {
			slog.InfoContext(ctx, "Organization already billed for month, skipping",
				"organization_id", org.ID,
				"existing", len(existing))
			continue
		}

		dues, err := p.dues.BulkCreateDues(ctx, org.ID, BulkDueInput{
			Amount:      org.MonthlyDueAmount,
			DueDate:     dueDate,
			Description: fmt.Sprintf("Aidat %04d-%02d", year, month),
		})
		if err != nil {
			slog.ErrorContext(ctx, "Failed to bill organization",
				"organization_id", org.ID,
				"error", err)
			continue
		}
		created += len(dues)
	}

	slog.InfoContext(ctx, "Monthly billing complete",
		"created", created,
		"organizations", len(orgs))

	return created, nil
}

func (p *BillingProcessor) dueDate(year, month int) core.Date {
	day := p.dueDay
	last := time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > last {
		day = last
	}
	return core.NewDate(year, month, day)
}
