package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"sitetakip/internal/core"
)

const orgColumns = `id, name, address, total_units, monthly_due_cents, manager_id, created_at, updated_at`

func scanOrganization(s scanner) (core.Organization, error) {
	var (
		o                core.Organization
		cents            int64
		created, updated string
	)
	if err := s.Scan(&o.ID, &o.Name, &o.Address, &o.TotalUnits, &cents, &o.ManagerID, &created, &updated); err != nil {
		return core.Organization{}, err
	}
	o.MonthlyDueAmount = core.NewMoney(cents)
	var err error
	if o.CreatedAt, err = parseTime(created); err != nil {
		return core.Organization{}, err
	}
	if o.UpdatedAt, err = parseTime(updated); err != nil {
		return core.Organization{}, err
	}
	return o, nil
}

func (r *SQLiteRepository) CreateOrganization(ctx context.Context, o core.Organization) (core.Organization, error) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = o.CreatedAt
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO organizations (`+orgColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.Name, o.Address, o.TotalUnits, o.MonthlyDueAmount.Cents, o.ManagerID,
		formatTime(o.CreatedAt), formatTime(o.UpdatedAt))
	if err != nil {
		return core.Organization{}, fmt.Errorf("create organization: %w", err)
	}

	slog.InfoContext(ctx, "Organization saved to SQLite", "id", o.ID, "name", o.Name)
	return o, nil
}

func (r *SQLiteRepository) GetOrganization(ctx context.Context, id string) (core.Organization, error) {
	return r.getOrganization(ctx, r.db, id)
}

func (r *SQLiteRepository) getOrganization(ctx context.Context, q queryer, id string) (core.Organization, error) {
	row := q.QueryRowContext(ctx, `SELECT `+orgColumns+` FROM organizations WHERE id = ?`, id)
	o, err := scanOrganization(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Organization{}, core.NotFound("organization", id)
	}
	if err != nil {
		return core.Organization{}, fmt.Errorf("get organization: %w", err)
	}
	return o, nil
}

func (r *SQLiteRepository) ListOrganizations(ctx context.Context) ([]core.Organization, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+orgColumns+` FROM organizations ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()

	var out []core.Organization
	for rows.Next() {
		o, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("scan organization: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) UpdateOrganization(ctx context.Context, o core.Organization) (core.Organization, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE organizations SET name = ?, address = ?, total_units = ?, monthly_due_cents = ?, updated_at = ?
		 WHERE id = ?`,
		o.Name, o.Address, o.TotalUnits, o.MonthlyDueAmount.Cents, formatTime(o.UpdatedAt), o.ID)
	if err != nil {
		return core.Organization{}, fmt.Errorf("update organization: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.Organization{}, core.NotFound("organization", o.ID)
	}
	return r.GetOrganization(ctx, o.ID)
}

const unitColumns = `id, organization_id, unit_number, floor, resident_id, created_at`

func scanUnit(s scanner) (core.Unit, error) {
	var (
		u        core.Unit
		resident sql.NullString
		created  string
	)
	if err := s.Scan(&u.ID, &u.OrganizationID, &u.UnitNumber, &u.Floor, &resident, &created); err != nil {
		return core.Unit{}, err
	}
	u.ResidentID = resident.String
	var err error
	if u.CreatedAt, err = parseTime(created); err != nil {
		return core.Unit{}, err
	}
	return u, nil
}

func (r *SQLiteRepository) CreateUnit(ctx context.Context, u core.Unit) (core.Unit, error) {
	if _, err := r.GetOrganization(ctx, u.OrganizationID); err != nil {
		return core.Unit{}, err
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO units (`+unitColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.OrganizationID, u.UnitNumber, u.Floor, nullString(u.ResidentID), formatTime(u.CreatedAt))
	if isUniqueViolation(err) {
		return core.Unit{}, fmt.Errorf("unit %s: %w", u.UnitNumber, core.ErrConflict)
	}
	if err != nil {
		return core.Unit{}, fmt.Errorf("create unit: %w", err)
	}
	return u, nil
}

func (r *SQLiteRepository) GetUnit(ctx context.Context, id string) (core.Unit, error) {
	return r.getUnit(ctx, r.db, id)
}

func (r *SQLiteRepository) getUnit(ctx context.Context, q queryer, id string) (core.Unit, error) {
	u, err := scanUnit(q.QueryRowContext(ctx, `SELECT `+unitColumns+` FROM units WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Unit{}, core.NotFound("unit", id)
	}
	if err != nil {
		return core.Unit{}, fmt.Errorf("get unit: %w", err)
	}
	return u, nil
}

func (r *SQLiteRepository) ListUnits(ctx context.Context, orgID string) ([]core.Unit, error) {
	return r.listUnits(ctx, r.db, orgID)
}

func (r *SQLiteRepository) listUnits(ctx context.Context, q queryer, orgID string) ([]core.Unit, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+unitColumns+` FROM units WHERE organization_id = ?`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}
	defer rows.Close()

	var out []core.Unit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	core.SortUnits(out)
	return out, nil
}

func (r *SQLiteRepository) AssignResident(ctx context.Context, unitID, residentID string) (core.Unit, error) {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		u, err := r.getUnit(ctx, tx, unitID)
		if err != nil {
			return err
		}
		if residentID != "" {
			res, err := r.getResident(ctx, tx, residentID)
			if err != nil {
				return err
			}
			if res.OrganizationID != u.OrganizationID {
				return core.NotFound("resident", residentID)
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE units SET resident_id = NULL WHERE resident_id = ? AND id <> ?`, residentID, unitID); err != nil {
				return fmt.Errorf("release previous unit: %w", err)
			}
		}
		_, err = tx.ExecContext(ctx, `UPDATE units SET resident_id = ? WHERE id = ?`, nullString(residentID), unitID)
		if err != nil {
			return fmt.Errorf("assign resident: %w", err)
		}
		return nil
	})
	if err != nil {
		return core.Unit{}, err
	}
	return r.GetUnit(ctx, unitID)
}

// UpdateUnit rewrites the unit number and floor. The number cannot change
// once dues reference the unit.
func (r *SQLiteRepository) UpdateUnit(ctx context.Context, u core.Unit) (core.Unit, error) {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := r.getUnit(ctx, tx, u.ID)
		if err != nil {
			return err
		}
		if cur.UnitNumber != u.UnitNumber {
			var dues int
			if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM dues WHERE unit_id = ?`, u.ID).Scan(&dues); err != nil {
				return fmt.Errorf("count unit dues: %w", err)
			}
			if dues > 0 {
				return fmt.Errorf("unit %s has dues: %w", cur.UnitNumber, core.ErrConflict)
			}
		}
		_, err = tx.ExecContext(ctx, `UPDATE units SET unit_number = ?, floor = ? WHERE id = ?`, u.UnitNumber, u.Floor, u.ID)
		if isUniqueViolation(err) {
			return fmt.Errorf("unit %s: %w", u.UnitNumber, core.ErrConflict)
		}
		if err != nil {
			return fmt.Errorf("update unit: %w", err)
		}
		return nil
	})
	if err != nil {
		return core.Unit{}, err
	}
	return r.GetUnit(ctx, u.ID)
}

const residentColumns = `id, organization_id, full_name, phone, email, created_at`

func scanResident(s scanner) (core.Resident, error) {
	var (
		res     core.Resident
		created string
	)
	if err := s.Scan(&res.ID, &res.OrganizationID, &res.FullName, &res.Phone, &res.Email, &created); err != nil {
		return core.Resident{}, err
	}
	var err error
	if res.CreatedAt, err = parseTime(created); err != nil {
		return core.Resident{}, err
	}
	return res, nil
}

func (r *SQLiteRepository) CreateResident(ctx context.Context, res core.Resident) (core.Resident, error) {
	if _, err := r.GetOrganization(ctx, res.OrganizationID); err != nil {
		return core.Resident{}, err
	}
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO residents (`+residentColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		res.ID, res.OrganizationID, res.FullName, res.Phone, res.Email, formatTime(res.CreatedAt))
	if err != nil {
		return core.Resident{}, fmt.Errorf("create resident: %w", err)
	}
	return res, nil
}

func (r *SQLiteRepository) GetResident(ctx context.Context, id string) (core.Resident, error) {
	return r.getResident(ctx, r.db, id)
}

func (r *SQLiteRepository) getResident(ctx context.Context, q queryer, id string) (core.Resident, error) {
	res, err := scanResident(q.QueryRowContext(ctx, `SELECT `+residentColumns+` FROM residents WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Resident{}, core.NotFound("resident", id)
	}
	if err != nil {
		return core.Resident{}, fmt.Errorf("get resident: %w", err)
	}
	return res, nil
}

func (r *SQLiteRepository) ListResidents(ctx context.Context, orgID string) ([]core.Resident, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+residentColumns+` FROM residents WHERE organization_id = ? ORDER BY full_name, id`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list residents: %w", err)
	}
	defer rows.Close()

	var out []core.Resident
	for rows.Next() {
		res, err := scanResident(rows)
		if err != nil {
			return nil, fmt.Errorf("scan resident: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) UpdateResident(ctx context.Context, res core.Resident) (core.Resident, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE residents SET full_name = ?, phone = ?, email = ? WHERE id = ?`,
		res.FullName, res.Phone, res.Email, res.ID)
	if err != nil {
		return core.Resident{}, fmt.Errorf("update resident: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return core.Resident{}, core.NotFound("resident", res.ID)
	}
	return r.GetResident(ctx, res.ID)
}
