// Package ledger declares the storage ports shared by the SQLite and
// in-memory backends.
package ledger

import (
	"context"
	"time"

	"sitetakip/internal/core"
)

// Ports for outbound adapters. Stores assign ids to records created with an
// empty ID and report missing records with core.ErrNotFound.
type (
	OrganizationStore interface {
		CreateOrganization(ctx context.Context, o core.Organization) (core.Organization, error)
		GetOrganization(ctx context.Context, id string) (core.Organization, error)
		ListOrganizations(ctx context.Context) ([]core.Organization, error)
		UpdateOrganization(ctx context.Context, o core.Organization) (core.Organization, error)
	}

	UnitStore interface {
		// CreateUnit fails with core.ErrConflict when the unit number is
		// already taken in the organization.
		CreateUnit(ctx context.Context, u core.Unit) (core.Unit, error)
		GetUnit(ctx context.Context, id string) (core.Unit, error)
		ListUnits(ctx context.Context, orgID string) ([]core.Unit, error)
		// UpdateUnit changes the unit number and floor. Changing the number
		// fails with core.ErrConflict when it is taken or dues reference
		// the unit.
		UpdateUnit(ctx context.Context, u core.Unit) (core.Unit, error)
		// AssignResident fails with core.ErrNotFound when the resident
		// belongs to another organization.
		AssignResident(ctx context.Context, unitID, residentID string) (core.Unit, error)
	}

	ResidentStore interface {
		CreateResident(ctx context.Context, r core.Resident) (core.Resident, error)
		GetResident(ctx context.Context, id string) (core.Resident, error)
		ListResidents(ctx context.Context, orgID string) ([]core.Resident, error)
		UpdateResident(ctx context.Context, r core.Resident) (core.Resident, error)
	}

	DueStore interface {
		CreateDue(ctx context.Context, d core.Due) (core.Due, error)
		// CreateDuesForUnits copies tmpl once for every unit currently in
		// the organization, atomically. Either all dues are stored or none.
		CreateDuesForUnits(ctx context.Context, orgID string, tmpl core.Due) ([]core.Due, error)
		GetDue(ctx context.Context, id string) (core.Due, error)
		// ListDues returns the organization's dues with a due date in the
		// period. Zero year or month match everything.
		ListDues(ctx context.Context, orgID string, year, month int) ([]core.Due, error)
		// MarkDuePaid flips a pending due to paid and queues it for export
		// again. It fails with core.ErrAlreadyPaid when the stored status
		// is not pending.
		MarkDuePaid(ctx context.Context, id string, method core.PaymentMethod, paidAt time.Time) (core.Due, error)
	}

	ExpenseStore interface {
		CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error)
		GetExpense(ctx context.Context, id string) (core.Expense, error)
		ListExpenses(ctx context.Context, orgID string, year, month int) ([]core.Expense, error)
	}

	UserStore interface {
		// CreateUser fails with core.ErrConflict on a duplicate email.
		CreateUser(ctx context.Context, u core.User) (core.User, error)
		GetUser(ctx context.Context, id string) (core.User, error)
		GetUserByEmail(ctx context.Context, email string) (core.User, error)
	}

	// ExportTracker records which dues and expenses reached the
	// spreadsheet export.
	ExportTracker interface {
		PendingExports(ctx context.Context, kind ExportKind, limit int) ([]string, error)
		MarkExported(ctx context.Context, kind ExportKind, id string, at time.Time) error
	}

	// Store is everything a backend provides.
	Store interface {
		OrganizationStore
		UnitStore
		ResidentStore
		DueStore
		ExpenseStore
		UserStore
		ExportTracker
		Ping(ctx context.Context) error
		Close() error
	}
)

type ExportKind string

const (
	ExportDue     ExportKind = "due"
	ExportExpense ExportKind = "expense"
)
