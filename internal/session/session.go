// Package session handles accounts and login sessions. Sessions are
// explicit records held by a Manager; the bearer token is an HS256 JWT that
// names its session, so logging out invalidates the token immediately.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"sitetakip/internal/core"
	"sitetakip/internal/ledger"
)

const (
	tokenIssuer       = "sitetakip"
	minPasswordLength = 8
	// bcrypt rejects longer inputs
	maxPasswordLength = 72
)

var (
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// Session is one logged-in client.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Role      core.Role `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CanManage reports whether the session may act on the organization.
func (s *Session) CanManage(o core.Organization) bool {
	return s.Role == core.RoleAdmin || (o.ManagerID != "" && o.ManagerID == s.UserID)
}

func (s *Session) expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

type claims struct {
	Role      core.Role `json:"role"`
	SessionID string    `json:"sid"`
	jwt.RegisteredClaims
}

type Manager struct {
	users  ledger.UserStore
	secret []byte
	ttl    time.Duration
	cost   int
	now    func() time.Time

	mu   sync.Mutex
	live map[string]*Session
}

type Option func(*Manager)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithBcryptCost sets the hashing cost; tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(m *Manager) { m.cost = cost }
}

func NewManager(users ledger.UserStore, secret string, ttl time.Duration, opts ...Option) (*Manager, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("session secret must be at least 16 bytes")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("session ttl must be positive, got %s", ttl)
	}
	m := &Manager{
		users:  users,
		secret: []byte(secret),
		ttl:    ttl,
		cost:   bcrypt.DefaultCost,
		now:    time.Now,
		live:   make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

type RegisterInput struct {
	Email    string
	Password string
	FullName string
	Phone    string
}

// Register creates a manager account.
func (m *Manager) Register(ctx context.Context, in RegisterInput) (core.User, error) {
	if n := len(in.Password); n < minPasswordLength || n > maxPasswordLength {
		return core.User{}, core.Invalid("password", "must be between %d and %d characters", minPasswordLength, maxPasswordLength)
	}
	u := core.User{
		Email:     strings.ToLower(strings.TrimSpace(in.Email)),
		Phone:     strings.TrimSpace(in.Phone),
		FullName:  strings.TrimSpace(in.FullName),
		Role:      core.RoleManager,
		CreatedAt: m.now().UTC(),
	}
	if err := u.Validate(); err != nil {
		return core.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), m.cost)
	if err != nil {
		return core.User{}, fmt.Errorf("hash password: %w", err)
	}
	u.PasswordHash = string(hash)

	created, err := m.users.CreateUser(ctx, u)
	if err != nil {
		return core.User{}, err
	}
	slog.InfoContext(ctx, "User registered", "user_id", created.ID, "role", created.Role)
	return created, nil
}

// Login checks the credentials, opens a session and returns its token.
func (m *Manager) Login(ctx context.Context, email, password string) (string, *Session, error) {
	u, err := m.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		slog.WarnContext(ctx, "Login failed", "user_id", u.ID)
		return "", nil, ErrInvalidCredentials
	}

	now := m.now().UTC()
	sess := &Session{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		Role:      u.Role,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	token, err := m.sign(sess)
	if err != nil {
		return "", nil, err
	}

	m.mu.Lock()
	m.live[sess.ID] = sess
	m.mu.Unlock()

	slog.InfoContext(ctx, "Session opened", "user_id", u.ID, "session_id", sess.ID)
	return token, sess, nil
}

func (m *Manager) sign(sess *Session) (string, error) {
	c := claims{
		Role:      sess.Role,
		SessionID: sess.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   sess.UserID,
			IssuedAt:  jwt.NewNumericDate(sess.CreatedAt),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate resolves a token to its live session.
func (m *Manager) Validate(ctx context.Context, token string) (*Session, error) {
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		slog.DebugContext(ctx, "Rejected token", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.live[c.SessionID]
	if !ok || sess.UserID != c.Subject {
		return nil, fmt.Errorf("%w: session closed", ErrUnauthenticated)
	}
	if sess.expired(m.now()) {
		delete(m.live, sess.ID)
		return nil, fmt.Errorf("%w: session expired", ErrUnauthenticated)
	}
	return sess, nil
}

// Logout destroys the session. Closing an unknown session is not an error.
func (m *Manager) Logout(ctx context.Context, sess *Session) {
	if sess == nil {
		return
	}
	m.mu.Lock()
	delete(m.live, sess.ID)
	m.mu.Unlock()
	slog.InfoContext(ctx, "Session closed", "user_id", sess.UserID, "session_id", sess.ID)
}

// Me returns the account behind a session.
func (m *Manager) Me(ctx context.Context, sess *Session) (core.User, error) {
	if sess == nil {
		return core.User{}, ErrUnauthenticated
	}
	return m.users.GetUser(ctx, sess.UserID)
}

// Sweep drops expired sessions and reports how many were removed.
func (m *Manager) Sweep() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.live {
		if s.expired(now) {
			delete(m.live, id)
			n++
		}
	}
	return n
}

type ctxKey struct{}

func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session stored by the auth middleware.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Session)
	return s, ok && s != nil
}
