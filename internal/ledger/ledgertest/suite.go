// Package ledgertest holds the behaviour every ledger.Store must share.
// Backends call Run from their own tests.
package ledgertest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitetakip/internal/core"
	"sitetakip/internal/ledger"
)

// Run exercises s against the store contract. newStore must return an
// empty store for each call.
func Run(t *testing.T, newStore func(t *testing.T) ledger.Store) {
	t.Run("organizations", func(t *testing.T) { testOrganizations(t, newStore(t)) })
	t.Run("units", func(t *testing.T) { testUnits(t, newStore(t)) })
	t.Run("update units", func(t *testing.T) { testUpdateUnits(t, newStore(t)) })
	t.Run("residents", func(t *testing.T) { testResidents(t, newStore(t)) })
	t.Run("dues", func(t *testing.T) { testDues(t, newStore(t)) })
	t.Run("bulk dues", func(t *testing.T) { testBulkDues(t, newStore(t)) })
	t.Run("mark paid race", func(t *testing.T) { testMarkPaidRace(t, newStore(t)) })
	t.Run("expenses", func(t *testing.T) { testExpenses(t, newStore(t)) })
	t.Run("users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("exports", func(t *testing.T) { testExports(t, newStore(t)) })
}

var created = time.Date(2026, 2, 20, 9, 0, 0, 0, time.UTC)

// SeedOrganization creates an organization with the given unit numbers.
func SeedOrganization(t *testing.T, s ledger.Store, name string, units ...string) (core.Organization, []core.Unit) {
	t.Helper()
	ctx := context.Background()
	org, err := s.CreateOrganization(ctx, core.Organization{
		Name:             name,
		Address:          "Kadıköy, İstanbul",
		TotalUnits:       len(units),
		MonthlyDueAmount: core.NewMoney(120000),
		CreatedAt:        created,
	})
	require.NoError(t, err)

	var out []core.Unit
	for i, n := range units {
		u, err := s.CreateUnit(ctx, core.Unit{OrganizationID: org.ID, UnitNumber: n, Floor: i / 2, CreatedAt: created})
		require.NoError(t, err)
		out = append(out, u)
	}
	return org, out
}

func testOrganizations(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	org, _ := SeedOrganization(t, s, "Çamlık Sitesi")
	require.NotEmpty(t, org.ID)

	got, err := s.GetOrganization(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, "Çamlık Sitesi", got.Name)
	assert.Equal(t, int64(120000), got.MonthlyDueAmount.Cents)

	got.Name = "Çamlık Evleri"
	got.MonthlyDueAmount = core.NewMoney(150000)
	got.UpdatedAt = created.Add(time.Hour)
	updated, err := s.UpdateOrganization(ctx, got)
	require.NoError(t, err)
	assert.Equal(t, "Çamlık Evleri", updated.Name)
	assert.Equal(t, int64(150000), updated.MonthlyDueAmount.Cents)

	_, err = s.GetOrganization(ctx, "missing")
	assert.True(t, errors.Is(err, core.ErrNotFound), "got %v", err)
	_, err = s.UpdateOrganization(ctx, core.Organization{ID: "missing", Name: "x"})
	assert.True(t, errors.Is(err, core.ErrNotFound), "got %v", err)

	SeedOrganization(t, s, "Akasya")
	all, err := s.ListOrganizations(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Akasya", all[0].Name)
}

func testUnits(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	org, units := SeedOrganization(t, s, "Site", "10", "2", "1")

	_, err := s.CreateUnit(ctx, core.Unit{OrganizationID: org.ID, UnitNumber: "2", CreatedAt: created})
	assert.True(t, errors.Is(err, core.ErrConflict), "duplicate unit number: %v", err)

	_, err = s.CreateUnit(ctx, core.Unit{OrganizationID: "missing", UnitNumber: "1", CreatedAt: created})
	assert.True(t, errors.Is(err, core.ErrNotFound), "got %v", err)

	listed, err := s.ListUnits(ctx, org.ID)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.Equal(t, []string{"1", "2", "10"}, []string{listed[0].UnitNumber, listed[1].UnitNumber, listed[2].UnitNumber})

	res, err := s.CreateResident(ctx, core.Resident{OrganizationID: org.ID, FullName: "Ayşe Yılmaz", Phone: "+905551112233", CreatedAt: created})
	require.NoError(t, err)

	u, err := s.AssignResident(ctx, units[0].ID, res.ID)
	require.NoError(t, err)
	assert.Equal(t, res.ID, u.ResidentID)

	// Moving the resident releases the previous unit.
	_, err = s.AssignResident(ctx, units[1].ID, res.ID)
	require.NoError(t, err)
	prev, err := s.GetUnit(ctx, units[0].ID)
	require.NoError(t, err)
	assert.Empty(t, prev.ResidentID)

	_, err = s.AssignResident(ctx, units[1].ID, "missing")
	assert.True(t, errors.Is(err, core.ErrNotFound), "got %v", err)

	residents, err := s.ListResidents(ctx, org.ID)
	require.NoError(t, err)
	require.Len(t, residents, 1)
	assert.Equal(t, "Ayşe Yılmaz", residents[0].FullName)

	// A resident of another organization cannot move in.
	other, _ := SeedOrganization(t, s, "Other")
	stranger, err := s.CreateResident(ctx, core.Resident{OrganizationID: other.ID, FullName: "Mehmet Kaya", CreatedAt: created})
	require.NoError(t, err)
	_, err = s.AssignResident(ctx, units[2].ID, stranger.ID)
	assert.True(t, errors.Is(err, core.ErrNotFound), "got %v", err)
	vacant, err := s.GetUnit(ctx, units[2].ID)
	require.NoError(t, err)
	assert.Empty(t, vacant.ResidentID)
}

func testUpdateUnits(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	_, units := SeedOrganization(t, s, "Site", "1", "2")

	u := units[0]
	u.UnitNumber = "1A"
	u.Floor = 3
	updated, err := s.UpdateUnit(ctx, u)
	require.NoError(t, err)
	assert.Equal(t, "1A", updated.UnitNumber)
	assert.Equal(t, 3, updated.Floor)
	assert.Equal(t, units[0].OrganizationID, updated.OrganizationID)

	u.UnitNumber = "2"
	_, err = s.UpdateUnit(ctx, u)
	assert.True(t, errors.Is(err, core.ErrConflict), "taken unit number: %v", err)

	_, err = s.CreateDue(ctx, newDue(units[1].ID, 100, core.NewDate(2026, 3, 5)))
	require.NoError(t, err)
	withDues := units[1]
	withDues.UnitNumber = "2B"
	_, err = s.UpdateUnit(ctx, withDues)
	assert.True(t, errors.Is(err, core.ErrConflict), "renumbering a unit with dues: %v", err)

	// The floor may still change.
	withDues.UnitNumber = "2"
	withDues.Floor = 5
	updated, err = s.UpdateUnit(ctx, withDues)
	require.NoError(t, err)
	assert.Equal(t, 5, updated.Floor)

	_, err = s.UpdateUnit(ctx, core.Unit{ID: "missing", UnitNumber: "9"})
	assert.True(t, errors.Is(err, core.ErrNotFound), "got %v", err)
}

func testResidents(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	org, _ := SeedOrganization(t, s, "Site")
	res, err := s.CreateResident(ctx, core.Resident{OrganizationID: org.ID, FullName: "Ayşe Yılmaz", Phone: "+905551112233", CreatedAt: created})
	require.NoError(t, err)

	got, err := s.GetResident(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, "+905551112233", got.Phone)

	got.Phone = "+905559998877"
	got.Email = "ayse@example.com"
	updated, err := s.UpdateResident(ctx, got)
	require.NoError(t, err)
	assert.Equal(t, "+905559998877", updated.Phone)
	assert.Equal(t, "ayse@example.com", updated.Email)
	assert.Equal(t, org.ID, updated.OrganizationID)
	assert.True(t, updated.CreatedAt.Equal(created))

	_, err = s.UpdateResident(ctx, core.Resident{ID: "missing", FullName: "x"})
	assert.True(t, errors.Is(err, core.ErrNotFound), "got %v", err)
}

func newDue(unitID string, cents int64, due core.Date) core.Due {
	return core.Due{
		UnitID:    unitID,
		Amount:    core.NewMoney(cents),
		DueDate:   due,
		Status:    core.StatusPending,
		CreatedAt: created,
	}
}

func testDues(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	org, units := SeedOrganization(t, s, "Site", "3", "1", "2")

	for _, u := range units {
		_, err := s.CreateDue(ctx, newDue(u.ID, 120000, core.NewDate(2026, 3, 5)))
		require.NoError(t, err)
	}
	_, err := s.CreateDue(ctx, newDue(units[0].ID, 120000, core.NewDate(2026, 2, 5)))
	require.NoError(t, err)

	_, err = s.CreateDue(ctx, newDue("missing", 100, core.NewDate(2026, 3, 5)))
	assert.True(t, errors.Is(err, core.ErrNotFound), "got %v", err)

	march, err := s.ListDues(ctx, org.ID, 2026, 3)
	require.NoError(t, err)
	require.Len(t, march, 3)
	for i, want := range []string{"1", "2", "3"} {
		assert.Equal(t, want, march[i].UnitNumber)
		assert.Equal(t, org.ID, march[i].OrganizationID)
		assert.Equal(t, core.StatusPending, march[i].Status)
	}

	all, err := s.ListDues(ctx, org.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, 2, all[0].DueDate.Month())

	paidAt := time.Date(2026, 3, 6, 10, 0, 0, 0, time.UTC)
	paid, err := s.MarkDuePaid(ctx, march[0].ID, core.PaymentTransfer, paidAt)
	require.NoError(t, err)
	assert.Equal(t, core.StatusPaid, paid.Status)
	assert.Equal(t, core.PaymentTransfer, paid.PaymentMethod)
	require.NotNil(t, paid.PaidAt)
	assert.True(t, paid.PaidAt.Equal(paidAt))

	_, err = s.MarkDuePaid(ctx, march[0].ID, core.PaymentCash, paidAt.Add(time.Hour))
	assert.True(t, errors.Is(err, core.ErrAlreadyPaid), "got %v", err)

	again, err := s.GetDue(ctx, march[0].ID)
	require.NoError(t, err)
	assert.Equal(t, core.PaymentTransfer, again.PaymentMethod, "second payment must not overwrite")
	assert.True(t, again.PaidAt.Equal(paidAt))

	_, err = s.MarkDuePaid(ctx, "missing", core.PaymentCash, paidAt)
	assert.True(t, errors.Is(err, core.ErrNotFound), "got %v", err)
}

func testBulkDues(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	org, units := SeedOrganization(t, s, "Site", "1", "2", "3")
	other, _ := SeedOrganization(t, s, "Other", "1")

	tmpl := core.Due{
		Amount:      core.NewMoney(120000),
		DueDate:     core.NewDate(2026, 3, 5),
		Description: "Mart aidatı",
		Status:      core.StatusPending,
		CreatedAt:   created,
	}
	dues, err := s.CreateDuesForUnits(ctx, org.ID, tmpl)
	require.NoError(t, err)
	require.Len(t, dues, len(units))

	seen := map[string]bool{}
	for _, d := range dues {
		assert.False(t, seen[d.UnitID], "unit billed twice in one call")
		seen[d.UnitID] = true
		assert.Equal(t, tmpl.Amount, d.Amount)
		assert.Equal(t, tmpl.Description, d.Description)
		assert.True(t, d.DueDate.Equal(tmpl.DueDate.Time))
	}

	// Not idempotent: a second call bills every unit again.
	_, err = s.CreateDuesForUnits(ctx, org.ID, tmpl)
	require.NoError(t, err)
	all, err := s.ListDues(ctx, org.ID, 2026, 3)
	require.NoError(t, err)
	assert.Len(t, all, 2*len(units))

	otherDues, err := s.ListDues(ctx, other.ID, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, otherDues)

	// An invalid template leaves nothing behind.
	bad := tmpl
	bad.Amount = core.NewMoney(0)
	_, err = s.CreateDuesForUnits(ctx, other.ID, bad)
	require.Error(t, err)
	otherDues, err = s.ListDues(ctx, other.ID, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, otherDues)

	_, err = s.CreateDuesForUnits(ctx, "missing", tmpl)
	assert.True(t, errors.Is(err, core.ErrNotFound), "got %v", err)

	empty, _ := SeedOrganization(t, s, "Empty")
	none, err := s.CreateDuesForUnits(ctx, empty.ID, tmpl)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testMarkPaidRace(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	_, units := SeedOrganization(t, s, "Site", "1")
	d, err := s.CreateDue(ctx, newDue(units[0].ID, 5000, core.NewDate(2026, 3, 5)))
	require.NoError(t, err)

	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		already   int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.MarkDuePaid(ctx, d.ID, core.PaymentCash, time.Now())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, core.ErrAlreadyPaid):
				already++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, successes)
	assert.Equal(t, callers-1, already)
}

func testExpenses(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	org, _ := SeedOrganization(t, s, "Site")

	mk := func(cat core.Category, cents int64, day int) core.Expense {
		e, err := s.CreateExpense(ctx, core.Expense{
			OrganizationID: org.ID,
			Category:       cat,
			Amount:         core.NewMoney(cents),
			Date:           core.NewDate(2026, 3, day),
			Description:    string(cat),
			CreatedAt:      created.Add(time.Duration(day) * time.Minute),
		})
		require.NoError(t, err)
		return e
	}
	late := mk(core.CategoryWater, 300, 20)
	early := mk(core.CategoryCleaning, 100, 2)
	mk(core.CategoryElevator, 100, 11)

	_, err := s.CreateExpense(ctx, core.Expense{OrganizationID: "missing", Category: core.CategoryOther, Amount: core.NewMoney(1), Date: core.NewDate(2026, 3, 1), CreatedAt: created})
	assert.True(t, errors.Is(err, core.ErrNotFound), "got %v", err)

	list, err := s.ListExpenses(ctx, org.ID, 2026, 3)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, early.ID, list[0].ID)
	assert.Equal(t, late.ID, list[2].ID)

	none, err := s.ListExpenses(ctx, org.ID, 2026, 4)
	require.NoError(t, err)
	assert.Empty(t, none)

	got, err := s.GetExpense(ctx, late.ID)
	require.NoError(t, err)
	assert.Equal(t, core.CategoryWater, got.Category)
	assert.Equal(t, int64(300), got.Amount.Cents)
}

func testUsers(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	u, err := s.CreateUser(ctx, core.User{
		Email:        "yonetici@example.com",
		FullName:     "Mehmet Kaya",
		Role:         core.RoleManager,
		PasswordHash: "hash",
		CreatedAt:    created,
	})
	require.NoError(t, err)

	_, err = s.CreateUser(ctx, core.User{Email: "Yonetici@Example.com", FullName: "x", Role: core.RoleManager, PasswordHash: "h", CreatedAt: created})
	assert.True(t, errors.Is(err, core.ErrConflict), "got %v", err)

	byEmail, err := s.GetUserByEmail(ctx, "YONETICI@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	_, err = s.GetUser(ctx, "missing")
	assert.True(t, errors.Is(err, core.ErrNotFound), "got %v", err)
}

func testExports(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	org, units := SeedOrganization(t, s, "Site", "1", "2")
	for _, u := range units {
		_, err := s.CreateDue(ctx, newDue(u.ID, 100, core.NewDate(2026, 3, 5)))
		require.NoError(t, err)
	}
	_, err := s.CreateExpense(ctx, core.Expense{OrganizationID: org.ID, Category: core.CategoryOther, Amount: core.NewMoney(1), Date: core.NewDate(2026, 3, 1), CreatedAt: created})
	require.NoError(t, err)

	pending, err := s.PendingExports(ctx, ledger.ExportDue, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	require.NoError(t, s.MarkExported(ctx, ledger.ExportDue, pending[0], time.Now()))
	pending, err = s.PendingExports(ctx, ledger.ExportDue, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	limited, err := s.PendingExports(ctx, ledger.ExportExpense, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	// Paying an exported due queues it again.
	require.NoError(t, s.MarkExported(ctx, ledger.ExportDue, pending[0], time.Now()))
	pending, err = s.PendingExports(ctx, ledger.ExportDue, 10)
	require.NoError(t, err)
	require.Empty(t, pending)

	dues, err := s.ListDues(ctx, org.ID, 0, 0)
	require.NoError(t, err)
	_, err = s.MarkDuePaid(ctx, dues[0].ID, core.PaymentCash, created.Add(time.Hour))
	require.NoError(t, err)
	pending, err = s.PendingExports(ctx, ledger.ExportDue, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{dues[0].ID}, pending)
}
