package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"sitetakip/internal/amqp"
	"sitetakip/internal/core"
	"sitetakip/internal/ledger/memory"
	applog "sitetakip/internal/log"
	"sitetakip/internal/session"
)

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*amqp.LedgerEvent
}

func (p *recordingPublisher) PublishLedgerEvent(_ context.Context, ev *amqp.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) count(t amqp.EventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ev := range p.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

type testEnv struct {
	t      *testing.T
	srv    *Server
	store  *memory.Store
	events *recordingPublisher
}

func newTestEnv(t *testing.T, mutate ...func(*Options)) *testEnv {
	t.Helper()
	store := memory.New()
	clock := func() time.Time { return testNow }
	sessions, err := session.NewManager(store, "test-secret-0123456789", time.Hour,
		session.WithClock(clock), session.WithBcryptCost(bcrypt.MinCost))
	require.NoError(t, err)

	events := &recordingPublisher{}
	opts := Options{
		Store:    store,
		Sessions: sessions,
		Events:   events,
		Clock:    clock,
		Logger:   applog.New(applog.Config{Level: slog.LevelError, Output: io.Discard}),
	}
	for _, m := range mutate {
		m(&opts)
	}
	srv, err := NewServer(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	return &testEnv{t: t, srv: srv, store: store, events: events}
}

func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(e.t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

// login registers a manager account and returns its bearer token.
func (e *testEnv) login(email string) string {
	e.t.Helper()
	rr := e.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email": email, "password": "correct horse", "full_name": "Test Yönetici",
	})
	require.Equal(e.t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = e.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": email, "password": "correct horse",
	})
	require.Equal(e.t, http.StatusOK, rr.Code, rr.Body.String())
	var resp loginResponse
	decode(e.t, rr, &resp)
	require.NotEmpty(e.t, resp.Token)
	return resp.Token
}

func (e *testEnv) createOrg(token string, units ...string) string {
	e.t.Helper()
	rr := e.do(http.MethodPost, "/api/v1/organizations", token, map[string]any{
		"name": "Çınar Sitesi", "address": "Ankara", "total_units": len(units), "monthly_due_amount": "1200.00",
	})
	require.Equal(e.t, http.StatusCreated, rr.Code, rr.Body.String())
	var org organizationResponse
	decode(e.t, rr, &org)

	for _, n := range units {
		rr := e.do(http.MethodPost, "/api/v1/organizations/"+org.ID+"/units", token, map[string]any{"unit_number": n})
		require.Equal(e.t, http.StatusCreated, rr.Code, rr.Body.String())
	}
	return org.ID
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), dst), rr.Body.String())
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	decode(t, rr, &resp)
	return resp
}

func TestNewServerRequiresDependencies(t *testing.T) {
	_, err := NewServer(Options{})
	assert.Error(t, err)
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		rr := env.do(http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusOK, rr.Code, path)
		assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	}
}

func TestMiddlewareChain(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(http.MethodGet, "/healthz", "", nil)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))

	rr = env.do(http.MethodGet, "/no/such/route", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, ErrCodeNotFound, errorCode(t, rr).Code)

	rr = env.do(http.MethodDelete, "/api/v1/auth/login", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)

	rr = env.do("TRACE", "/healthz", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t)
	token := env.login("yonetici@example.com")

	rr := env.do(http.MethodGet, "/api/v1/auth/me", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var me userResponse
	decode(t, rr, &me)
	assert.Equal(t, "yonetici@example.com", me.Email)
	assert.Equal(t, core.RoleManager, me.Role)

	rr = env.do(http.MethodPost, "/api/v1/auth/logout", token, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = env.do(http.MethodGet, "/api/v1/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code, "logged out token is rejected")
}

func TestAuthFailures(t *testing.T) {
	env := newTestEnv(t)
	env.login("yonetici@example.com")

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		status int
		code   string
	}{
		{"no token", http.MethodGet, "/api/v1/organizations", "", nil, http.StatusUnauthorized, ErrCodeUnauthorized},
		{"garbage token", http.MethodGet, "/api/v1/organizations", "abc.def.ghi", nil, http.StatusUnauthorized, ErrCodeUnauthorized},
		{"wrong password", http.MethodPost, "/api/v1/auth/login", "",
			map[string]string{"email": "yonetici@example.com", "password": "nope nope"}, http.StatusUnauthorized, ErrCodeInvalidCredentials},
		{"duplicate email", http.MethodPost, "/api/v1/auth/register", "",
			map[string]string{"email": "yonetici@example.com", "password": "long enough", "full_name": "X"}, http.StatusConflict, ErrCodeConflict},
		{"short password", http.MethodPost, "/api/v1/auth/register", "",
			map[string]string{"email": "b@example.com", "password": "short", "full_name": "X"}, http.StatusBadRequest, ErrCodeValidation},
		{"unknown field", http.MethodPost, "/api/v1/auth/login", "",
			`{"email":"a@b.co","password":"x","admin":true}`, http.StatusBadRequest, ErrCodeInvalidPayload},
		{"malformed json", http.MethodPost, "/api/v1/auth/login", "", `{"email":`, http.StatusBadRequest, ErrCodeInvalidPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.status, rr.Code, rr.Body.String())
			assert.Equal(t, tt.code, errorCode(t, rr).Code)
		})
	}
}

func TestValidationDetails(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{"email": "not-an-email", "password": "long enough"})
	require.Equal(t, http.StatusBadRequest, rr.Code)

	var resp struct {
		Code    string       `json:"code"`
		Details []FieldError `json:"details"`
	}
	decode(t, rr, &resp)
	fields := map[string]string{}
	for _, d := range resp.Details {
		fields[d.Field] = d.Message
	}
	assert.Equal(t, "must be a valid email address", fields["email"])
	assert.Equal(t, "is required", fields["full_name"])
}

func TestOrganizationScoping(t *testing.T) {
	env := newTestEnv(t)
	alice := env.login("alice@example.com")
	bob := env.login("bob@example.com")

	orgID := env.createOrg(alice, "A1")

	rr := env.do(http.MethodGet, "/api/v1/organizations", bob, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var list []organizationResponse
	decode(t, rr, &list)
	assert.Empty(t, list, "bob sees no organizations")

	for _, path := range []string{"", "/units", "/dues", "/reports/monthly"} {
		rr := env.do(http.MethodGet, "/api/v1/organizations/"+orgID+path, bob, nil)
		assert.Equal(t, http.StatusNotFound, rr.Code, "bob cannot reach "+path)
	}

	rr = env.do(http.MethodGet, "/api/v1/organizations", alice, nil)
	decode(t, rr, &list)
	require.Len(t, list, 1)
	assert.Equal(t, orgID, list[0].ID)

	rr = env.do(http.MethodGet, "/api/v1/organizations/missing", alice, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestOrganizationUpdate(t *testing.T) {
	env := newTestEnv(t)
	token := env.login("yonetici@example.com")
	orgID := env.createOrg(token)

	rr := env.do(http.MethodPut, "/api/v1/organizations/"+orgID, token, map[string]any{
		"name": "Çınar Evleri", "total_units": 12, "monthly_due_amount": "1500,50",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var org organizationResponse
	decode(t, rr, &org)
	assert.Equal(t, "Çınar Evleri", org.Name)
	assert.Equal(t, int64(150050), org.MonthlyDueAmount.Cents)
	assert.NotEmpty(t, org.ManagerID)

	rr = env.do(http.MethodPut, "/api/v1/organizations/"+orgID, token, map[string]any{
		"name": "X", "monthly_due_amount": "12.345",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUnitsAndResidents(t *testing.T) {
	env := newTestEnv(t)
	token := env.login("yonetici@example.com")
	orgID := env.createOrg(token, "B2", "B10", "A1")
	base := "/api/v1/organizations/" + orgID

	rr := env.do(http.MethodPost, base+"/units", token, map[string]any{"unit_number": "a1"})
	assert.Equal(t, http.StatusConflict, rr.Code, "unit numbers are unique per organization")

	rr = env.do(http.MethodGet, base+"/units", token, nil)
	var units []unitResponse
	decode(t, rr, &units)
	require.Len(t, units, 3)
	assert.Equal(t, []string{"A1", "B2", "B10"}, []string{units[0].UnitNumber, units[1].UnitNumber, units[2].UnitNumber})

	rr = env.do(http.MethodPost, base+"/residents", token, map[string]any{"full_name": "Ayşe Kaya", "phone": "+90 555 111 2233"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var res residentResponse
	decode(t, rr, &res)
	assert.Nil(t, res.UnitID)

	rr = env.do(http.MethodPut, base+"/units/"+units[1].ID+"/resident", token, map[string]any{"resident_id": res.ID})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = env.do(http.MethodGet, base+"/residents", token, nil)
	var residents []residentResponse
	decode(t, rr, &residents)
	require.Len(t, residents, 1)
	require.NotNil(t, residents[0].UnitID)
	assert.Equal(t, units[1].ID, *residents[0].UnitID)
	assert.Equal(t, "B2", residents[0].UnitNumber)

	rr = env.do(http.MethodPut, base+"/units/"+units[1].ID+"/resident", token, map[string]any{"resident_id": ""})
	require.Equal(t, http.StatusOK, rr.Code)
	var vacated unitResponse
	decode(t, rr, &vacated)
	assert.Nil(t, vacated.ResidentID)

	rr = env.do(http.MethodPost, base+"/residents", token, map[string]any{"full_name": "Kimse"})
	assert.Equal(t, http.StatusBadRequest, rr.Code, "phone or email is required")
}

func TestUnitAndResidentUpdates(t *testing.T) {
	env := newTestEnv(t)
	token := env.login("yonetici@example.com")
	orgID := env.createOrg(token, "1", "2")
	base := "/api/v1/organizations/" + orgID

	rr := env.do(http.MethodGet, base+"/units", token, nil)
	var units []unitResponse
	decode(t, rr, &units)
	require.Len(t, units, 2)

	rr = env.do(http.MethodGet, base+"/units/"+units[0].ID, token, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = env.do(http.MethodPut, base+"/units/"+units[0].ID, token, map[string]any{"unit_number": "1A", "floor": 2})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var unit unitResponse
	decode(t, rr, &unit)
	assert.Equal(t, "1A", unit.UnitNumber)
	assert.Equal(t, 2, unit.Floor)

	rr = env.do(http.MethodPut, base+"/units/"+units[0].ID, token, map[string]any{"unit_number": "2"})
	assert.Equal(t, http.StatusConflict, rr.Code, "unit number taken")

	rr = env.do(http.MethodPost, base+"/dues", token, map[string]any{
		"unit_id": units[1].ID, "amount": "250", "due_date": "2026-03-20",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	rr = env.do(http.MethodPut, base+"/units/"+units[1].ID, token, map[string]any{"unit_number": "2B"})
	assert.Equal(t, http.StatusConflict, rr.Code, "unit with dues keeps its number")
	rr = env.do(http.MethodPut, base+"/units/"+units[1].ID, token, map[string]any{"unit_number": "2", "floor": 4})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = env.do(http.MethodPut, base+"/units/"+units[1].ID, token, map[string]any{"unit_number": ""})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(http.MethodPost, base+"/residents", token, map[string]any{"full_name": "Ayşe Kaya", "phone": "+90 555 111 2233"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var res residentResponse
	decode(t, rr, &res)
	rr = env.do(http.MethodPut, base+"/units/"+units[0].ID+"/resident", token, map[string]any{"resident_id": res.ID})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = env.do(http.MethodPut, base+"/residents/"+res.ID, token, map[string]any{
		"full_name": "Ayşe Kaya Demir", "phone": "+90 555 999 8877", "email": "ayse@example.com",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = env.do(http.MethodGet, base+"/residents/"+res.ID, token, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var got residentResponse
	decode(t, rr, &got)
	assert.Equal(t, "Ayşe Kaya Demir", got.FullName)
	assert.Equal(t, "ayse@example.com", got.Email)
	require.NotNil(t, got.UnitID)
	assert.Equal(t, "1A", got.UnitNumber)

	rr = env.do(http.MethodPut, base+"/residents/"+res.ID, token, map[string]any{"full_name": "Ayşe", "email": "nope"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// Records of another organization are invisible.
	otherID := env.createOrg(token, "9")
	other := "/api/v1/organizations/" + otherID
	rr = env.do(http.MethodGet, other+"/residents/"+res.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = env.do(http.MethodGet, other+"/units/"+units[0].ID, token, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = env.do(http.MethodPut, other+"/units/"+units[0].ID, token, map[string]any{"unit_number": "7"})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestReportPeriodRejectsExplicitZero(t *testing.T) {
	env := newTestEnv(t)
	token := env.login("yonetici@example.com")
	base := "/api/v1/organizations/" + env.createOrg(token, "1")

	for _, q := range []string{"?month=0", "?year=0", "?year=2026&month=0", "?month=-1"} {
		rr := env.do(http.MethodGet, base+"/reports/monthly"+q, token, nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code, q)
		assert.Equal(t, ErrCodeValidation, errorCode(t, rr).Code, q)
	}

	rr := env.do(http.MethodGet, base+"/reports/monthly?month=", token, nil)
	assert.Equal(t, http.StatusOK, rr.Code, "blank month defaults to the current one")
}

func TestDuesLifecycle(t *testing.T) {
	env := newTestEnv(t)
	token := env.login("yonetici@example.com")
	orgID := env.createOrg(token, "1", "2", "3")
	base := "/api/v1/organizations/" + orgID

	rr := env.do(http.MethodPost, base+"/dues/bulk", token, map[string]any{
		"amount": "1200.00", "due_date": "2026-03-05", "description": "Mart aidatı",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var bulk []dueResponse
	decode(t, rr, &bulk)
	require.Len(t, bulk, 3)
	assert.Equal(t, core.StatusOverdue, bulk[0].Status, "due date already passed")
	assert.Equal(t, 1, env.events.count(amqp.EventDuesBulkCreated))

	rr = env.do(http.MethodPatch, base+"/dues/"+bulk[0].ID+"/pay", token, map[string]any{"payment_method": "transfer"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var paid dueResponse
	decode(t, rr, &paid)
	assert.Equal(t, core.StatusPaid, paid.Status)
	assert.Equal(t, core.PaymentTransfer, paid.PaymentMethod)
	require.NotNil(t, paid.PaidAt)

	rr = env.do(http.MethodPatch, base+"/dues/"+bulk[0].ID+"/pay", token, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, ErrCodeAlreadyPaid, errorCode(t, rr).Code)

	rr = env.do(http.MethodPatch, base+"/dues/"+bulk[1].ID+"/pay", token, nil)
	require.Equal(t, http.StatusOK, rr.Code, "empty body pays in cash")
	decode(t, rr, &paid)
	assert.Equal(t, core.PaymentCash, paid.PaymentMethod)

	rr = env.do(http.MethodPatch, base+"/dues/"+bulk[2].ID+"/pay", token, map[string]any{"payment_method": "cheque"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(http.MethodPatch, base+"/dues/unknown/pay", token, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = env.do(http.MethodPost, base+"/dues", token, map[string]any{
		"unit_id": bulk[2].UnitID, "amount": "250", "due_date": "2026-03-20",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var single dueResponse
	decode(t, rr, &single)
	assert.Equal(t, core.StatusPending, single.Status)
	assert.Equal(t, "250.00", single.Amount.String())

	rr = env.do(http.MethodGet, base+"/dues/overdue", token, nil)
	var overdue []dueResponse
	decode(t, rr, &overdue)
	require.Len(t, overdue, 1)
	assert.Equal(t, bulk[2].ID, overdue[0].ID)

	rr = env.do(http.MethodGet, base+"/dues?status=paid&year=2026&month=3", token, nil)
	var paidList []dueResponse
	decode(t, rr, &paidList)
	assert.Len(t, paidList, 2)

	rr = env.do(http.MethodGet, base+"/dues?status=pending", token, nil)
	var pending []dueResponse
	decode(t, rr, &pending)
	require.Len(t, pending, 1)
	assert.Equal(t, single.ID, pending[0].ID)

	rr = env.do(http.MethodGet, base+"/dues/"+single.ID, token, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	for _, q := range []string{"?status=late", "?month=13", "?year=abc"} {
		rr := env.do(http.MethodGet, base+"/dues"+q, token, nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code, q)
	}
}

func TestCreateDueRejects(t *testing.T) {
	env := newTestEnv(t)
	token := env.login("yonetici@example.com")
	orgID := env.createOrg(token, "1")
	base := "/api/v1/organizations/" + orgID

	rr := env.do(http.MethodGet, base+"/units", token, nil)
	var units []unitResponse
	decode(t, rr, &units)

	tests := []struct {
		name   string
		body   map[string]any
		status int
		code   string
	}{
		{"zero amount", map[string]any{"unit_id": units[0].ID, "amount": "0", "due_date": "2026-04-01"}, http.StatusBadRequest, ErrCodeValidation},
		{"negative amount", map[string]any{"unit_id": units[0].ID, "amount": "-10", "due_date": "2026-04-01"}, http.StatusBadRequest, ErrCodeValidation},
		{"three decimals", map[string]any{"unit_id": units[0].ID, "amount": "1.005", "due_date": "2026-04-01"}, http.StatusBadRequest, ErrCodeInvalidAmount},
		{"bad date", map[string]any{"unit_id": units[0].ID, "amount": "10", "due_date": "2026-02-30"}, http.StatusBadRequest, ErrCodeValidation},
		{"unknown unit", map[string]any{"unit_id": "nope", "amount": "10", "due_date": "2026-04-01"}, http.StatusNotFound, ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(http.MethodPost, base+"/dues", token, tt.body)
			assert.Equal(t, tt.status, rr.Code, rr.Body.String())
			assert.Equal(t, tt.code, errorCode(t, rr).Code)
		})
	}
	assert.Zero(t, env.events.count(amqp.EventDueCreated))
}

func TestExpenses(t *testing.T) {
	env := newTestEnv(t)
	token := env.login("yonetici@example.com")
	orgID := env.createOrg(token)
	base := "/api/v1/organizations/" + orgID

	rr := env.do(http.MethodPost, base+"/expenses", token, map[string]any{
		"category": "electricity", "amount": "300", "date": "2026-03-02",
		"description": "Ortak alan", "receipt_url": "https://example.com/r/1.pdf",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var e expenseResponse
	decode(t, rr, &e)
	assert.Equal(t, core.CategoryElectricity, e.Category)

	rr = env.do(http.MethodGet, base+"/expenses/"+e.ID, token, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(http.MethodPost, base+"/expenses", token, map[string]any{"category": "parking", "amount": "10", "date": "2026-03-02"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = env.do(http.MethodPost, base+"/expenses", token, map[string]any{"category": "water", "amount": "10", "date": "2026-03-02", "receipt_url": "receipt.pdf"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(http.MethodGet, base+"/expenses?year=2026&month=4", token, nil)
	var list []expenseResponse
	decode(t, rr, &list)
	assert.Empty(t, list)

	assert.Equal(t, 1, env.events.count(amqp.EventExpenseCreated))
}

func TestReportsAndCacheInvalidation(t *testing.T) {
	env := newTestEnv(t)
	token := env.login("yonetici@example.com")
	orgID := env.createOrg(token, "1", "2", "3")
	base := "/api/v1/organizations/" + orgID

	// 2026-03-05 dues: one paid in cash, one overdue, one for later
	rr := env.do(http.MethodPost, base+"/dues/bulk", token, map[string]any{"amount": "1000", "due_date": "2026-03-05"})
	require.Equal(t, http.StatusCreated, rr.Code)
	var dues []dueResponse
	decode(t, rr, &dues)
	rr = env.do(http.MethodPatch, base+"/dues/"+dues[0].ID+"/pay", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	for _, e := range []map[string]any{
		{"category": "maintenance", "amount": "500", "date": "2026-03-01"},
		{"category": "electricity", "amount": "300", "date": "2026-03-03"},
		{"category": "electricity", "amount": "200", "date": "2026-03-04"},
	} {
		rr := env.do(http.MethodPost, base+"/expenses", token, e)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	}

	rr = env.do(http.MethodGet, base+"/reports/monthly?year=2026&month=3", token, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var sum summaryResponse
	decode(t, rr, &sum)
	assert.Equal(t, "3000.00", sum.TotalDues.String())
	assert.Equal(t, "1000.00", sum.TotalPaid.String())
	assert.Equal(t, "2000.00", sum.TotalOverdue.String())
	assert.Equal(t, "1000.00", sum.TotalExpenses.String())
	assert.Equal(t, "0.00", sum.Balance.String())
	assert.Equal(t, 1, sum.PaidCount)
	assert.Equal(t, 2, sum.OverdueCount)

	// cached
	rr = env.do(http.MethodGet, base+"/reports/monthly?year=2026&month=3", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	hits, _ := env.srv.summaryCache.Stats()
	assert.Equal(t, int64(1), hits)

	// a payment invalidates the cached summary
	rr = env.do(http.MethodPatch, base+"/dues/"+dues[1].ID+"/pay", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = env.do(http.MethodGet, base+"/reports/monthly?year=2026&month=3", token, nil)
	decode(t, rr, &sum)
	assert.Equal(t, "2000.00", sum.TotalPaid.String())
	assert.Equal(t, "1000.00", sum.Balance.String())

	rr = env.do(http.MethodGet, base+"/reports/expenses", token, nil)
	require.Equal(t, http.StatusOK, rr.Code, "period defaults to the current month")
	var bd breakdownResponse
	decode(t, rr, &bd)
	require.Len(t, bd.Categories, 2)
	assert.Equal(t, core.CategoryElectricity, bd.Categories[0].Category)
	assert.Equal(t, "500.00", bd.Categories[0].Amount.String())
	assert.Equal(t, 2, bd.Categories[0].Count)
	assert.Equal(t, "50.00", bd.Categories[0].Share)
	assert.Equal(t, core.CategoryMaintenance, bd.Categories[1].Category)
	assert.Equal(t, "1000.00", bd.Total.String())

	rr = env.do(http.MethodGet, base+"/reports/monthly?month=0&year=1900", token, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(http.MethodGet, base+"/reports/monthly?year=2025&month=1", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	decode(t, rr, &sum)
	assert.True(t, sum.TotalDues.IsZero())
	assert.True(t, sum.Balance.IsZero())
}

func TestWriteRateLimit(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.WritesPerMinute = 2 })

	body := map[string]string{"email": "x@example.com", "password": "wrong one"}
	for range 2 {
		rr := env.do(http.MethodPost, "/api/v1/auth/login", "", body)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	}
	rr := env.do(http.MethodPost, "/api/v1/auth/login", "", body)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, ErrCodeRateLimitExceeded, errorCode(t, rr).Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	rr = env.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code, "reads are not limited")
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.AllowedOrigins = []string{"https://panel.example.com"} })

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/auth/login", nil)
	req.Header.Set("Origin", "https://panel.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	env.srv.Handler.ServeHTTP(rr, req)
	assert.Equal(t, "https://panel.example.com", rr.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rr = httptest.NewRecorder()
	env.srv.Handler.ServeHTTP(rr, req)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestConcurrentPayments(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.WritesPerMinute = 1000 })
	token := env.login("yonetici@example.com")
	orgID := env.createOrg(token, "1")
	base := "/api/v1/organizations/" + orgID

	rr := env.do(http.MethodPost, base+"/dues/bulk", token, map[string]any{"amount": "100", "due_date": "2026-03-20"})
	require.Equal(t, http.StatusCreated, rr.Code)
	var dues []dueResponse
	decode(t, rr, &dues)

	const workers = 8
	codes := make(chan int, workers)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes <- env.do(http.MethodPatch, base+"/dues/"+dues[0].ID+"/pay", token, nil).Code
		}()
	}
	wg.Wait()
	close(codes)

	ok, conflict := 0, 0
	for c := range codes {
		switch c {
		case http.StatusOK:
			ok++
		case http.StatusConflict:
			conflict++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, conflict)
}
