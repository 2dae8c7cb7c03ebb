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
	"sitetakip/internal/ledger"
)

const expenseColumns = `id, organization_id, category, amount_cents, date, description, receipt_url, created_at`

func scanExpense(s scanner) (core.Expense, error) {
	var (
		e                 core.Expense
		category          string
		cents             int64
		date, createdText string
	)
	err := s.Scan(&e.ID, &e.OrganizationID, &category, &cents, &date, &e.Description, &e.ReceiptURL, &createdText)
	if err != nil {
		return core.Expense{}, err
	}
	e.Category = core.Category(category)
	e.Amount = core.NewMoney(cents)
	if e.Date, err = parseDate(date); err != nil {
		return core.Expense{}, err
	}
	if e.CreatedAt, err = parseTime(createdText); err != nil {
		return core.Expense{}, err
	}
	return e, nil
}

func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if _, err := r.GetOrganization(ctx, e.OrganizationID); err != nil {
		return core.Expense{}, err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO expenses (`+expenseColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.OrganizationID, string(e.Category), e.Amount.Cents, e.Date.String(),
		e.Description, e.ReceiptURL, formatTime(e.CreatedAt))
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved to SQLite",
		"id", e.ID,
		"category", e.Category,
		"amount", e.Amount.String(),
		"date", e.Date.String())
	return e, nil
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, id string) (core.Expense, error) {
	e, err := scanExpense(r.db.QueryRowContext(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, core.NotFound("expense", id)
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense: %w", err)
	}
	return e, nil
}

func (r *SQLiteRepository) ListExpenses(ctx context.Context, orgID string, year, month int) ([]core.Expense, error) {
	clause, args := periodClause("date", year, month)
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE organization_id = ?`+clause+
			` ORDER BY date, created_at, rowid`,
		append([]any{orgID}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func exportTable(kind ledger.ExportKind) (string, error) {
	switch kind {
	case ledger.ExportDue:
		return "dues", nil
	case ledger.ExportExpense:
		return "expenses", nil
	}
	return "", fmt.Errorf("unknown export kind %q", kind)
}

// PendingExports lists ids not yet written to the spreadsheet, oldest first.
func (r *SQLiteRepository) PendingExports(ctx context.Context, kind ledger.ExportKind, limit int) ([]string, error) {
	table, err := exportTable(kind)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM `+table+` WHERE exported_at IS NULL ORDER BY created_at, rowid LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("pending %s exports: %w", kind, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *SQLiteRepository) MarkExported(ctx context.Context, kind ledger.ExportKind, id string, at time.Time) error {
	table, err := exportTable(kind)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, `UPDATE `+table+` SET exported_at = ? WHERE id = ?`, formatTime(at), id); err != nil {
		return fmt.Errorf("mark %s %s exported: %w", kind, id, err)
	}
	return nil
}
