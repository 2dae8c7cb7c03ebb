package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"sitetakip/internal/core"
)

const dueSelect = `SELECT d.id, d.organization_id, d.unit_id, u.unit_number, d.amount_cents, d.due_date,
	d.status, d.paid_at, d.payment_method, d.description, d.created_at
	FROM dues d JOIN units u ON u.id = d.unit_id`

func scanDue(s scanner) (core.Due, error) {
	var (
		d                core.Due
		cents            int64
		dueDate, created string
		status, method   string
		paidAt           sql.NullString
	)
	err := s.Scan(&d.ID, &d.OrganizationID, &d.UnitID, &d.UnitNumber, &cents, &dueDate,
		&status, &paidAt, &method, &d.Description, &created)
	if err != nil {
		return core.Due{}, err
	}
	d.Amount = core.NewMoney(cents)
	d.Status = core.DueStatus(status)
	d.PaymentMethod = core.PaymentMethod(method)
	if d.DueDate, err = parseDate(dueDate); err != nil {
		return core.Due{}, err
	}
	if d.PaidAt, err = parseNullTime(paidAt); err != nil {
		return core.Due{}, err
	}
	if d.CreatedAt, err = parseTime(created); err != nil {
		return core.Due{}, err
	}
	return d, nil
}

func insertDue(ctx context.Context, q queryer, d core.Due) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO dues (id, organization_id, unit_id, amount_cents, due_date, status, description, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.OrganizationID, d.UnitID, d.Amount.Cents, d.DueDate.String(), string(core.StatusPending),
		d.Description, formatTime(d.CreatedAt))
	return err
}

func (r *SQLiteRepository) CreateDue(ctx context.Context, d core.Due) (core.Due, error) {
	u, err := r.GetUnit(ctx, d.UnitID)
	if err != nil {
		return core.Due{}, err
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.OrganizationID = u.OrganizationID
	d.UnitNumber = u.UnitNumber
	d.Status = core.StatusPending

	if err := insertDue(ctx, r.db, d); err != nil {
		return core.Due{}, fmt.Errorf("create due: %w", err)
	}

	slog.InfoContext(ctx, "Due saved to SQLite",
		"id", d.ID,
		"unit", d.UnitNumber,
		"amount", d.Amount.String(),
		"due_date", d.DueDate.String())
	return d, nil
}

// CreateDuesForUnits inserts one due per unit inside a single transaction.
func (r *SQLiteRepository) CreateDuesForUnits(ctx context.Context, orgID string, tmpl core.Due) ([]core.Due, error) {
	var out []core.Due
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := r.getOrganization(ctx, tx, orgID); err != nil {
			return err
		}
		units, err := r.listUnits(ctx, tx, orgID)
		if err != nil {
			return err
		}
		out = make([]core.Due, 0, len(units))
		for _, u := range units {
			d := tmpl
			d.ID = uuid.NewString()
			d.OrganizationID = orgID
			d.UnitID = u.ID
			d.UnitNumber = u.UnitNumber
			d.Status = core.StatusPending
			if err := d.Validate(); err != nil {
				return fmt.Errorf("unit %s: %w", u.UnitNumber, err)
			}
			if err := insertDue(ctx, tx, d); err != nil {
				return fmt.Errorf("create due for unit %s: %w", u.UnitNumber, err)
			}
			out = append(out, d)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Bulk dues saved to SQLite",
		"organization_id", orgID,
		"count", len(out),
		"due_date", tmpl.DueDate.String())
	return out, nil
}

func (r *SQLiteRepository) GetDue(ctx context.Context, id string) (core.Due, error) {
	d, err := scanDue(r.db.QueryRowContext(ctx, dueSelect+` WHERE d.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Due{}, core.NotFound("due", id)
	}
	if err != nil {
		return core.Due{}, fmt.Errorf("get due: %w", err)
	}
	return d, nil
}

func (r *SQLiteRepository) ListDues(ctx context.Context, orgID string, year, month int) ([]core.Due, error) {
	clause, args := periodClause("d.due_date", year, month)
	rows, err := r.db.QueryContext(ctx,
		dueSelect+` WHERE d.organization_id = ?`+clause+` ORDER BY d.due_date, d.id`,
		append([]any{orgID}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("list dues: %w", err)
	}
	defer rows.Close()

	var out []core.Due
	for rows.Next() {
		d, err := scanDue(rows)
		if err != nil {
			return nil, fmt.Errorf("scan due: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// unit numbers sort naturally, which SQL cannot do
	core.SortDues(out)
	return out, nil
}

// MarkDuePaid is a compare-and-set on status: of two concurrent callers only
// one sees a row affected. Clearing exported_at queues the payment for the
// next export sweep.
func (r *SQLiteRepository) MarkDuePaid(ctx context.Context, id string, method core.PaymentMethod, paidAt time.Time) (core.Due, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE dues SET status = 'paid', paid_at = ?, payment_method = ?, exported_at = NULL
		 WHERE id = ? AND status = 'pending'`,
		formatTime(paidAt), string(method), id)
	if err != nil {
		return core.Due{}, fmt.Errorf("mark due paid: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return core.Due{}, fmt.Errorf("mark due paid: %w", err)
	}
	if n == 0 {
		if _, err := r.GetDue(ctx, id); err != nil {
			return core.Due{}, err
		}
		return core.Due{}, fmt.Errorf("due %s: %w", id, core.ErrAlreadyPaid)
	}

	slog.InfoContext(ctx, "Due marked paid in SQLite", "id", id, "payment_method", method)
	return r.GetDue(ctx, id)
}
