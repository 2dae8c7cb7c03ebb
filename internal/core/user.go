package core

import (
	"net/mail"
	"strings"
	"time"
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleResident Role = "resident"
)

// User is an account that can open sessions.
type User struct {
	ID           string
	Email        string
	Phone        string
	FullName     string
	Role         Role
	PasswordHash string
	CreatedAt    time.Time
}

func (u User) Validate() error {
	if _, err := mail.ParseAddress(u.Email); err != nil {
		return Invalid("email", "not a valid address")
	}
	if strings.TrimSpace(u.FullName) == "" {
		return Invalid("full_name", "is required")
	}
	switch u.Role {
	case RoleAdmin, RoleManager, RoleResident:
	default:
		return Invalid("role", "unknown role %q", u.Role)
	}
	return nil
}
