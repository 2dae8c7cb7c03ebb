package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"sitetakip/internal/amqp"
	"sitetakip/internal/core"
	"sitetakip/internal/ledger"
)

// DuesStore is what DuesService needs from a backend.
type DuesStore interface {
	ledger.OrganizationStore
	ledger.UnitStore
	ledger.DueStore
}

// DuesService owns the due record lifecycle: creation, bulk billing,
// listing by effective status and payment.
type DuesService struct {
	store DuesStore
	opts  options
}

func NewDuesService(store DuesStore, opts ...Option) *DuesService {
	return &DuesService{store: store, opts: buildOptions(opts)}
}

// Now is the service clock; effective statuses are derived against it.
func (s *DuesService) Now() time.Time {
	return s.opts.now()
}

type CreateDueInput struct {
	UnitID      string
	Amount      core.Money
	DueDate     core.Date
	Description string
}

// CreateDue bills a single unit. When orgID is set the unit must belong to
// that organization.
func (s *DuesService) CreateDue(ctx context.Context, orgID string, in CreateDueInput) (core.Due, error) {
	d := core.Due{
		UnitID:      strings.TrimSpace(in.UnitID),
		Amount:      in.Amount,
		DueDate:     in.DueDate,
		Description: strings.TrimSpace(in.Description),
		Status:      core.StatusPending,
		CreatedAt:   s.opts.now().UTC(),
	}
	if err := d.Validate(); err != nil {
		return core.Due{}, err
	}

	if orgID != "" {
		unit, err := s.store.GetUnit(ctx, d.UnitID)
		if err != nil {
			return core.Due{}, err
		}
		if unit.OrganizationID != orgID {
			return core.Due{}, core.NotFound("unit", d.UnitID)
		}
	}

	created, err := s.store.CreateDue(ctx, d)
	if err != nil {
		return core.Due{}, fmt.Errorf("create due: %w", err)
	}

	s.opts.publish(ctx, amqp.NewLedgerEvent(amqp.EventDueCreated, created.OrganizationID, created.ID))
	return created, nil
}

type BulkDueInput struct {
	Amount      core.Money
	DueDate     core.Date
	Description string
}

// BulkCreateDues bills every unit of the organization once. It is not
// idempotent: a second call for the same period bills every unit again.
func (s *DuesService) BulkCreateDues(ctx context.Context, orgID string, in BulkDueInput) ([]core.Due, error) {
	tmpl := core.Due{
		UnitID:      "bulk", // placeholder so Validate checks the rest
		Amount:      in.Amount,
		DueDate:     in.DueDate,
		Description: strings.TrimSpace(in.Description),
		Status:      core.StatusPending,
		CreatedAt:   s.opts.now().UTC(),
	}
	if err := tmpl.Validate(); err != nil {
		return nil, err
	}
	tmpl.UnitID = ""

	dues, err := s.store.CreateDuesForUnits(ctx, orgID, tmpl)
	if err != nil {
		return nil, fmt.Errorf("bulk create dues: %w", err)
	}

	slog.InfoContext(ctx, "Bulk dues created",
		"organization_id", orgID,
		"count", len(dues),
		"amount", in.Amount.String(),
		"due_date", in.DueDate.String())

	if len(dues) > 0 {
		ids := make([]string, len(dues))
		for i, d := range dues {
			ids[i] = d.ID
		}
		s.opts.publish(ctx, amqp.NewLedgerEvent(amqp.EventDuesBulkCreated, orgID, ids...))
	}
	return dues, nil
}

// ListDues returns the organization's dues ordered by due date then unit
// number. The status filter matches the effective status.
func (s *DuesService) ListDues(ctx context.Context, orgID string, f core.DueFilter) ([]core.Due, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.store.GetOrganization(ctx, orgID); err != nil {
		return nil, err
	}

	dues, err := s.store.ListDues(ctx, orgID, f.Year, f.Month)
	if err != nil {
		return nil, fmt.Errorf("list dues: %w", err)
	}

	now := s.opts.now()
	out := dues[:0]
	for _, d := range dues {
		if f.Matches(d, now) {
			out = append(out, d)
		}
	}
	core.SortDues(out)
	return out, nil
}

// ListOverdue is ListDues filtered to the overdue view.
func (s *DuesService) ListOverdue(ctx context.Context, orgID string) ([]core.Due, error) {
	return s.ListDues(ctx, orgID, core.DueFilter{Status: core.StatusOverdue})
}

func (s *DuesService) GetDue(ctx context.Context, orgID, id string) (core.Due, error) {
	d, err := s.store.GetDue(ctx, id)
	if err != nil {
		return core.Due{}, err
	}
	if orgID != "" && d.OrganizationID != orgID {
		return core.Due{}, core.NotFound("due", id)
	}
	return d, nil
}

// MarkPaid records a payment. Paying an already paid due fails with
// core.ErrAlreadyPaid and leaves the record untouched.
func (s *DuesService) MarkPaid(ctx context.Context, orgID, id, method string) (core.Due, error) {
	pm, err := core.ParsePaymentMethod(method)
	if err != nil {
		return core.Due{}, err
	}
	if orgID != "" {
		if _, err := s.GetDue(ctx, orgID, id); err != nil {
			return core.Due{}, err
		}
	}

	paid, err := s.store.MarkDuePaid(ctx, id, pm, s.opts.now().UTC())
	if err != nil {
		return core.Due{}, err
	}

	slog.InfoContext(ctx, "Due marked paid",
		"id", paid.ID,
		"organization_id", paid.OrganizationID,
		"payment_method", pm)

	s.opts.publish(ctx, amqp.NewLedgerEvent(amqp.EventDuePaid, paid.OrganizationID, paid.ID))
	return paid, nil
}
