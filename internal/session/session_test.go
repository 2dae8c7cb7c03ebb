package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"sitetakip/internal/core"
	"sitetakip/internal/ledger/memory"
)

const testSecret = "0123456789abcdef-test-secret"

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestManager(t *testing.T) (*Manager, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	m, err := NewManager(memory.New(), testSecret, time.Hour, WithClock(c.now), WithBcryptCost(bcrypt.MinCost))
	require.NoError(t, err)
	return m, c
}

func register(t *testing.T, m *Manager) core.User {
	t.Helper()
	u, err := m.Register(t.Context(), RegisterInput{
		Email:    " Yonetici@Example.com ",
		Password: "correct horse",
		FullName: "Mehmet Demir",
	})
	require.NoError(t, err)
	return u
}

func TestNewManagerRejectsWeakConfig(t *testing.T) {
	_, err := NewManager(memory.New(), "short", time.Hour)
	assert.Error(t, err)
	_, err = NewManager(memory.New(), testSecret, 0)
	assert.Error(t, err)
}

func TestRegister(t *testing.T) {
	m, _ := newTestManager(t)
	u := register(t, m)

	assert.Equal(t, "yonetici@example.com", u.Email)
	assert.Equal(t, core.RoleManager, u.Role)
	assert.NotEqual(t, "correct horse", u.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("correct horse")))

	_, err := m.Register(t.Context(), RegisterInput{Email: "yonetici@example.com", Password: "another one", FullName: "X"})
	assert.ErrorIs(t, err, core.ErrConflict)

	_, err = m.Register(t.Context(), RegisterInput{Email: "a@b.co", Password: "short", FullName: "X"})
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = m.Register(t.Context(), RegisterInput{Email: "not-an-email", Password: "long enough", FullName: "X"})
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestLoginValidateLogout(t *testing.T) {
	m, _ := newTestManager(t)
	u := register(t, m)
	ctx := t.Context()

	token, sess, err := m.Login(ctx, "YONETICI@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, u.ID, sess.UserID)
	assert.Equal(t, core.RoleManager, sess.Role)
	assert.Equal(t, time.Hour, sess.ExpiresAt.Sub(sess.CreatedAt))

	got, err := m.Validate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)

	me, err := m.Me(ctx, got)
	require.NoError(t, err)
	assert.Equal(t, "Mehmet Demir", me.FullName)

	m.Logout(ctx, got)
	_, err = m.Validate(ctx, token)
	assert.ErrorIs(t, err, ErrUnauthenticated, "token of a closed session is rejected")

	// second logout is a no-op
	m.Logout(ctx, got)
}

func TestLoginFailures(t *testing.T) {
	m, _ := newTestManager(t)
	register(t, m)

	_, _, err := m.Login(t.Context(), "yonetici@example.com", "wrong password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = m.Login(t.Context(), "nobody@example.com", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestValidateRejects(t *testing.T) {
	m, c := newTestManager(t)
	register(t, m)
	ctx := t.Context()

	token, _, err := m.Login(ctx, "yonetici@example.com", "correct horse")
	require.NoError(t, err)

	tests := []struct {
		name  string
		token func() string
	}{
		{"garbage", func() string { return "not.a.token" }},
		{"tampered", func() string { return token[:len(token)-2] + "xx" }},
		{"other secret", func() string {
			other, err := NewManager(memory.New(), "another-secret-0123456789", time.Hour, WithClock(c.now))
			require.NoError(t, err)
			s, err := other.sign(&Session{ID: "x", UserID: "y", CreatedAt: c.t, ExpiresAt: c.t.Add(time.Hour)})
			require.NoError(t, err)
			return s
		}},
		{"unknown session", func() string {
			s, err := m.sign(&Session{ID: "never-opened", UserID: "y", CreatedAt: c.t, ExpiresAt: c.t.Add(time.Hour)})
			require.NoError(t, err)
			return s
		}},
		{"none algorithm", func() string {
			s, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "y", "sid": "x"}).
				SignedString(jwt.UnsafeAllowNoneSignatureType)
			require.NoError(t, err)
			return s
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Validate(ctx, tt.token())
			assert.ErrorIs(t, err, ErrUnauthenticated)
		})
	}

	// still valid before expiry
	_, err = m.Validate(ctx, token)
	require.NoError(t, err)

	c.t = c.t.Add(2 * time.Hour)
	_, err = m.Validate(ctx, token)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestSweep(t *testing.T) {
	m, c := newTestManager(t)
	register(t, m)
	for range 3 {
		_, _, err := m.Login(t.Context(), "yonetici@example.com", "correct horse")
		require.NoError(t, err)
	}
	assert.Equal(t, 0, m.Sweep())
	c.t = c.t.Add(time.Hour)
	assert.Equal(t, 3, m.Sweep())
}

func TestContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	s := &Session{ID: "s1"}
	got, ok := FromContext(NewContext(context.Background(), s))
	require.True(t, ok)
	assert.Same(t, s, got)

	_, err := (&Manager{}).Me(context.Background(), nil)
	assert.True(t, errors.Is(err, ErrUnauthenticated))
}

func TestCanManage(t *testing.T) {
	org := core.Organization{ID: "o1", ManagerID: "u1"}
	tests := []struct {
		name string
		sess Session
		want bool
	}{
		{"manager of org", Session{UserID: "u1", Role: core.RoleManager}, true},
		{"other manager", Session{UserID: "u2", Role: core.RoleManager}, false},
		{"admin", Session{UserID: "u9", Role: core.RoleAdmin}, true},
		{"resident", Session{UserID: "u1x", Role: core.RoleResident}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sess.CanManage(org))
		})
	}
	assert.False(t, (&Session{UserID: ""}).CanManage(core.Organization{}), "unowned org needs admin")
}
