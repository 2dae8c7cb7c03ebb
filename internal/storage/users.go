package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"sitetakip/internal/core"
)

const userColumns = `id, email, phone, full_name, role, password_hash, created_at`

func scanUser(s scanner) (core.User, error) {
	var (
		u             core.User
		role, created string
	)
	if err := s.Scan(&u.ID, &u.Email, &u.Phone, &u.FullName, &role, &u.PasswordHash, &created); err != nil {
		return core.User{}, err
	}
	u.Role = core.Role(role)
	var err error
	if u.CreatedAt, err = parseTime(created); err != nil {
		return core.User{}, err
	}
	return u, nil
}

func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.Phone, u.FullName, string(u.Role), u.PasswordHash, formatTime(u.CreatedAt))
	if isUniqueViolation(err) {
		return core.User{}, fmt.Errorf("user %s: %w", u.Email, core.ErrConflict)
	}
	if err != nil {
		return core.User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id string) (core.User, error) {
	return r.getUserBy(ctx, "id", id)
}

func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	return r.getUserBy(ctx, "email", email)
}

func (r *SQLiteRepository) getUserBy(ctx context.Context, column, value string) (core.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+column+` = ?`, value))
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, core.NotFound("user", value)
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}
