package services

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"sitetakip/internal/core"
	"sitetakip/internal/ledger"
)

type ReportStore interface {
	ledger.OrganizationStore
	ledger.DueStore
	ledger.ExpenseStore
}

// ReportService aggregates dues and expenses per period. It only reads.
type ReportService struct {
	store ReportStore
	opts  options
}

func NewReportService(store ReportStore, opts ...Option) *ReportService {
	return &ReportService{store: store, opts: buildOptions(opts)}
}

// MonthlySummary totals the period's dues by effective status and its
// expenses. Balance is collected dues minus expenses.
func (s *ReportService) MonthlySummary(ctx context.Context, orgID string, year, month int) (core.MonthlySummary, error) {
	if err := core.ValidatePeriod(year, month); err != nil {
		return core.MonthlySummary{}, err
	}
	if _, err := s.store.GetOrganization(ctx, orgID); err != nil {
		return core.MonthlySummary{}, err
	}

	var (
		dues     []core.Due
		expenses []core.Expense
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		dues, err = s.store.ListDues(gctx, orgID, year, month)
		if err != nil {
			return fmt.Errorf("load dues: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		expenses, err = s.store.ListExpenses(gctx, orgID, year, month)
		if err != nil {
			return fmt.Errorf("load expenses: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return core.MonthlySummary{}, err
	}

	return core.Summarize(orgID, year, month, dues, expenses, s.opts.now()), nil
}

// ExpenseBreakdown groups the period's expenses by category, largest
// amount first.
func (s *ReportService) ExpenseBreakdown(ctx context.Context, orgID string, year, month int) ([]core.ExpenseBreakdown, error) {
	if err := core.ValidatePeriod(year, month); err != nil {
		return nil, err
	}
	if _, err := s.store.GetOrganization(ctx, orgID); err != nil {
		return nil, err
	}
	expenses, err := s.store.ListExpenses(ctx, orgID, year, month)
	if err != nil {
		return nil, fmt.Errorf("load expenses: %w", err)
	}
	return core.Breakdown(expenses), nil
}

// Now is the clock the summaries are computed against.
func (s *ReportService) Now() core.Date {
	return core.DateOf(s.opts.now())
}
