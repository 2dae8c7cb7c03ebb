package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"sitetakip/internal/amqp"
	"sitetakip/internal/core"
	"sitetakip/internal/ledger"
)

type ExpenseStore interface {
	ledger.OrganizationStore
	ledger.ExpenseStore
}

// ExpenseService records organization expenses. Expenses are immutable once
// created.
type ExpenseService struct {
	store ExpenseStore
	opts  options
}

func NewExpenseService(store ExpenseStore, opts ...Option) *ExpenseService {
	return &ExpenseService{store: store, opts: buildOptions(opts)}
}

type CreateExpenseInput struct {
	Category    string
	Amount      core.Money
	Date        core.Date
	Description string
	ReceiptURL  string
}

// CreateExpense saves an expense for the organization and publishes an
// expense.created event.
func (s *ExpenseService) CreateExpense(ctx context.Context, orgID string, in CreateExpenseInput) (core.Expense, error) {
	cat, err := core.ParseCategory(in.Category)
	if err != nil {
		return core.Expense{}, err
	}
	e := core.Expense{
		OrganizationID: strings.TrimSpace(orgID),
		Category:       cat,
		Amount:         in.Amount,
		Date:           in.Date,
		Description:    strings.TrimSpace(in.Description),
		ReceiptURL:     strings.TrimSpace(in.ReceiptURL),
		CreatedAt:      s.opts.now().UTC(),
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	if e.ReceiptURL != "" {
		if u, err := url.Parse(e.ReceiptURL); err != nil || u.Scheme == "" || u.Host == "" {
			return core.Expense{}, core.Invalid("receipt_url", "must be an absolute URL")
		}
	}
	if _, err := s.store.GetOrganization(ctx, e.OrganizationID); err != nil {
		return core.Expense{}, err
	}

	created, err := s.store.CreateExpense(ctx, e)
	if err != nil {
		return core.Expense{}, fmt.Errorf("save expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense created",
		"id", created.ID,
		"organization_id", created.OrganizationID,
		"category", created.Category,
		"amount", created.Amount.String())

	s.opts.publish(ctx, amqp.NewLedgerEvent(amqp.EventExpenseCreated, created.OrganizationID, created.ID))
	return created, nil
}

// ListExpenses returns the organization's expenses ordered by date.
func (s *ExpenseService) ListExpenses(ctx context.Context, orgID string, f core.ExpenseFilter) ([]core.Expense, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.store.GetOrganization(ctx, orgID); err != nil {
		return nil, err
	}
	expenses, err := s.store.ListExpenses(ctx, orgID, f.Year, f.Month)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	core.SortExpenses(expenses)
	return expenses, nil
}

func (s *ExpenseService) GetExpense(ctx context.Context, orgID, id string) (core.Expense, error) {
	e, err := s.store.GetExpense(ctx, id)
	if err != nil {
		return core.Expense{}, err
	}
	if orgID != "" && e.OrganizationID != orgID {
		return core.Expense{}, core.NotFound("expense", id)
	}
	return e, nil
}
