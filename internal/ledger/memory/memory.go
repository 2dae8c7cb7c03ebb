// Package memory is a process-local ledger backend for development and
// tests. All state lives behind a single mutex.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"sitetakip/internal/core"
	"sitetakip/internal/ledger"
)

var _ ledger.Store = (*Store)(nil)

type Store struct {
	mu        sync.Mutex
	orgs      map[string]core.Organization
	units     map[string]core.Unit
	residents map[string]core.Resident
	dues      map[string]core.Due
	expenses  map[string]core.Expense
	users     map[string]core.User
	exported  map[ledger.ExportKind]map[string]time.Time
	// insertion order, for stable listings
	dueOrder     []string
	expenseOrder []string
}

func New() *Store {
	return &Store{
		orgs:      make(map[string]core.Organization),
		units:     make(map[string]core.Unit),
		residents: make(map[string]core.Resident),
		dues:      make(map[string]core.Due),
		expenses:  make(map[string]core.Expense),
		users:     make(map[string]core.User),
		exported: map[ledger.ExportKind]map[string]time.Time{
			ledger.ExportDue:     {},
			ledger.ExportExpense: {},
		},
	}
}

// seedFile is the on-disk shape accepted by NewFromFile.
type seedFile struct {
	Organizations []struct {
		Name             string   `json:"name"`
		Address          string   `json:"address"`
		MonthlyDueAmount string   `json:"monthly_due_amount"`
		Units            []string `json:"units"`
	} `json:"organizations"`
}

// NewFromFile builds a store seeded with organizations and units from a
// JSON file. A missing file yields an empty store.
func NewFromFile(path string) (*Store, error) {
	s := New()
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	var seed seedFile
	if err := json.Unmarshal(b, &seed); err != nil {
		return nil, fmt.Errorf("decode seed %s: %w", path, err)
	}

	ctx := context.Background()
	for _, so := range seed.Organizations {
		var amount core.Money
		if so.MonthlyDueAmount != "" {
			if amount, err = core.ParseMoney(so.MonthlyDueAmount); err != nil {
				return nil, fmt.Errorf("seed %q: %w", so.Name, err)
			}
		}
		org, err := s.CreateOrganization(ctx, core.Organization{
			Name:             so.Name,
			Address:          so.Address,
			TotalUnits:       len(so.Units),
			MonthlyDueAmount: amount,
			CreatedAt:        time.Now().UTC(),
		})
		if err != nil {
			return nil, err
		}
		for _, n := range so.Units {
			if _, err := s.CreateUnit(ctx, core.Unit{OrganizationID: org.ID, UnitNumber: n}); err != nil {
				return nil, fmt.Errorf("seed %q unit %s: %w", so.Name, n, err)
			}
		}
	}
	return s, nil
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

// Organizations

func (s *Store) CreateOrganization(_ context.Context, o core.Organization) (core.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o.ID = newID(o.ID)
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = o.CreatedAt
	}
	s.orgs[o.ID] = o
	return o, nil
}

func (s *Store) GetOrganization(_ context.Context, id string) (core.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orgs[id]
	if !ok {
		return core.Organization{}, core.NotFound("organization", id)
	}
	return o, nil
}

func (s *Store) ListOrganizations(context.Context) ([]core.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Organization, 0, len(s.orgs))
	for _, o := range s.orgs {
		out = append(out, o)
	}
	sortOrganizations(out)
	return out, nil
}

func (s *Store) UpdateOrganization(_ context.Context, o core.Organization) (core.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.orgs[o.ID]
	if !ok {
		return core.Organization{}, core.NotFound("organization", o.ID)
	}
	o.CreatedAt = cur.CreatedAt
	o.ManagerID = cur.ManagerID
	s.orgs[o.ID] = o
	return o, nil
}

// Units

func (s *Store) CreateUnit(_ context.Context, u core.Unit) (core.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orgs[u.OrganizationID]; !ok {
		return core.Unit{}, core.NotFound("organization", u.OrganizationID)
	}
	for _, other := range s.units {
		if other.OrganizationID == u.OrganizationID && strings.EqualFold(other.UnitNumber, u.UnitNumber) {
			return core.Unit{}, fmt.Errorf("unit %s: %w", u.UnitNumber, core.ErrConflict)
		}
	}
	u.ID = newID(u.ID)
	s.units[u.ID] = u
	return u, nil
}

func (s *Store) GetUnit(_ context.Context, id string) (core.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.units[id]
	if !ok {
		return core.Unit{}, core.NotFound("unit", id)
	}
	return u, nil
}

func (s *Store) ListUnits(_ context.Context, orgID string) ([]core.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unitsOf(orgID), nil
}

func (s *Store) unitsOf(orgID string) []core.Unit {
	var out []core.Unit
	for _, u := range s.units {
		if u.OrganizationID == orgID {
			out = append(out, u)
		}
	}
	core.SortUnits(out)
	return out
}

func (s *Store) AssignResident(_ context.Context, unitID, residentID string) (core.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.units[unitID]
	if !ok {
		return core.Unit{}, core.NotFound("unit", unitID)
	}
	if residentID != "" {
		r, ok := s.residents[residentID]
		if !ok || r.OrganizationID != u.OrganizationID {
			return core.Unit{}, core.NotFound("resident", residentID)
		}
		// a resident lives in one unit at a time
		for id, other := range s.units {
			if id != unitID && other.ResidentID == residentID {
				other.ResidentID = ""
				s.units[id] = other
			}
		}
	}
	u.ResidentID = residentID
	s.units[unitID] = u
	return u, nil
}

// UpdateUnit rewrites the unit number and floor. The number cannot change
// once dues reference the unit.
func (s *Store) UpdateUnit(_ context.Context, u core.Unit) (core.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.units[u.ID]
	if !ok {
		return core.Unit{}, core.NotFound("unit", u.ID)
	}
	if cur.UnitNumber != u.UnitNumber {
		for id, other := range s.units {
			if id != u.ID && other.OrganizationID == cur.OrganizationID && strings.EqualFold(other.UnitNumber, u.UnitNumber) {
				return core.Unit{}, fmt.Errorf("unit %s: %w", u.UnitNumber, core.ErrConflict)
			}
		}
		for _, d := range s.dues {
			if d.UnitID == u.ID {
				return core.Unit{}, fmt.Errorf("unit %s has dues: %w", cur.UnitNumber, core.ErrConflict)
			}
		}
	}
	cur.UnitNumber = u.UnitNumber
	cur.Floor = u.Floor
	s.units[u.ID] = cur
	return cur, nil
}

// Residents

func (s *Store) CreateResident(_ context.Context, r core.Resident) (core.Resident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orgs[r.OrganizationID]; !ok {
		return core.Resident{}, core.NotFound("organization", r.OrganizationID)
	}
	r.ID = newID(r.ID)
	s.residents[r.ID] = r
	return r, nil
}

func (s *Store) GetResident(_ context.Context, id string) (core.Resident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.residents[id]
	if !ok {
		return core.Resident{}, core.NotFound("resident", id)
	}
	return r, nil
}

func (s *Store) UpdateResident(_ context.Context, r core.Resident) (core.Resident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.residents[r.ID]
	if !ok {
		return core.Resident{}, core.NotFound("resident", r.ID)
	}
	cur.FullName = r.FullName
	cur.Phone = r.Phone
	cur.Email = r.Email
	s.residents[r.ID] = cur
	return cur, nil
}

func (s *Store) ListResidents(_ context.Context, orgID string) ([]core.Resident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Resident
	for _, r := range s.residents {
		if r.OrganizationID == orgID {
			out = append(out, r)
		}
	}
	sortResidents(out)
	return out, nil
}

// Dues

func (s *Store) CreateDue(_ context.Context, d core.Due) (core.Due, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.units[d.UnitID]
	if !ok {
		return core.Due{}, core.NotFound("unit", d.UnitID)
	}
	d = s.insertDue(d, u)
	return d, nil
}

func (s *Store) insertDue(d core.Due, u core.Unit) core.Due {
	d.ID = newID(d.ID)
	d.OrganizationID = u.OrganizationID
	d.UnitNumber = u.UnitNumber
	if d.Status == "" {
		d.Status = core.StatusPending
	}
	s.dues[d.ID] = d
	s.dueOrder = append(s.dueOrder, d.ID)
	return d
}

func (s *Store) CreateDuesForUnits(_ context.Context, orgID string, tmpl core.Due) ([]core.Due, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orgs[orgID]; !ok {
		return nil, core.NotFound("organization", orgID)
	}
	units := s.unitsOf(orgID)
	// Validate the whole batch before touching the maps.
	for _, u := range units {
		d := tmpl
		d.UnitID = u.ID
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("unit %s: %w", u.UnitNumber, err)
		}
	}
	out := make([]core.Due, 0, len(units))
	for _, u := range units {
		d := tmpl
		d.ID = ""
		d.UnitID = u.ID
		out = append(out, s.insertDue(d, u))
	}
	return out, nil
}

func (s *Store) GetDue(_ context.Context, id string) (core.Due, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.dues[id]
	if !ok {
		return core.Due{}, core.NotFound("due", id)
	}
	return d, nil
}

func (s *Store) ListDues(_ context.Context, orgID string, year, month int) ([]core.Due, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Due
	for _, id := range s.dueOrder {
		d := s.dues[id]
		if d.OrganizationID == orgID && d.DueDate.InPeriod(year, month) {
			out = append(out, d)
		}
	}
	core.SortDues(out)
	return out, nil
}

func (s *Store) MarkDuePaid(_ context.Context, id string, method core.PaymentMethod, paidAt time.Time) (core.Due, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.dues[id]
	if !ok {
		return core.Due{}, core.NotFound("due", id)
	}
	if d.Status != core.StatusPending {
		return core.Due{}, fmt.Errorf("due %s: %w", id, core.ErrAlreadyPaid)
	}
	d.Status = core.StatusPaid
	d.PaidAt = &paidAt
	d.PaymentMethod = method
	s.dues[id] = d
	delete(s.exported[ledger.ExportDue], id)
	return d, nil
}

// Expenses

func (s *Store) CreateExpense(_ context.Context, e core.Expense) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orgs[e.OrganizationID]; !ok {
		return core.Expense{}, core.NotFound("organization", e.OrganizationID)
	}
	e.ID = newID(e.ID)
	s.expenses[e.ID] = e
	s.expenseOrder = append(s.expenseOrder, e.ID)
	return e, nil
}

func (s *Store) GetExpense(_ context.Context, id string) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[id]
	if !ok {
		return core.Expense{}, core.NotFound("expense", id)
	}
	return e, nil
}

func (s *Store) ListExpenses(_ context.Context, orgID string, year, month int) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Expense
	for _, id := range s.expenseOrder {
		e := s.expenses[id]
		if e.OrganizationID == orgID && e.Date.InPeriod(year, month) {
			out = append(out, e)
		}
	}
	core.SortExpenses(out)
	return out, nil
}

// Users

func (s *Store) CreateUser(_ context.Context, u core.User) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.users {
		if strings.EqualFold(other.Email, u.Email) {
			return core.User{}, fmt.Errorf("user %s: %w", u.Email, core.ErrConflict)
		}
	}
	u.ID = newID(u.ID)
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, core.NotFound("user", id)
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return core.User{}, core.NotFound("user", email)
}

// Export tracking

func (s *Store) PendingExports(_ context.Context, kind ledger.ExportKind, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var order []string
	switch kind {
	case ledger.ExportDue:
		order = s.dueOrder
	case ledger.ExportExpense:
		order = s.expenseOrder
	default:
		return nil, fmt.Errorf("unknown export kind %q", kind)
	}
	var out []string
	for _, id := range order {
		if _, done := s.exported[kind][id]; done {
			continue
		}
		out = append(out, id)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) MarkExported(_ context.Context, kind ledger.ExportKind, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.exported[kind]
	if !ok {
		return fmt.Errorf("unknown export kind %q", kind)
	}
	m[id] = at
	return nil
}

func sortOrganizations(orgs []core.Organization) {
	sort.Slice(orgs, func(i, j int) bool {
		if orgs[i].Name != orgs[j].Name {
			return orgs[i].Name < orgs[j].Name
		}
		return orgs[i].ID < orgs[j].ID
	})
}

func sortResidents(rs []core.Resident) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].FullName != rs[j].FullName {
			return rs[i].FullName < rs[j].FullName
		}
		return rs[i].ID < rs[j].ID
	})
}
