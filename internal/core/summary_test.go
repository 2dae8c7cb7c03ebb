package core

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var summaryNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func paidAt(t time.Time) *time.Time { return &t }

func TestSummarizeThreeUnitExample(t *testing.T) {
	amount := NewMoney(120000)
	dues := []Due{
		{ID: "1", UnitNumber: "1", Amount: amount, DueDate: NewDate(2026, 3, 5), Status: StatusPaid, PaidAt: paidAt(summaryNow), PaymentMethod: PaymentCash},
		{ID: "2", UnitNumber: "2", Amount: amount, DueDate: NewDate(2026, 3, 5), Status: StatusPending},
		{ID: "3", UnitNumber: "3", Amount: amount, DueDate: NewDate(2026, 3, 31), Status: StatusPending},
	}
	expenses := []Expense{
		{Category: CategoryMaintenance, Amount: NewMoney(50000), Date: NewDate(2026, 3, 10)},
	}

	// Review the period as of 2026-03-20: due 2 is overdue, due 3 is not yet.
	asOf := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	s := Summarize("org", 2026, 3, dues, expenses, asOf)

	assert.Equal(t, int64(360000), s.TotalDues.Cents)
	assert.Equal(t, int64(120000), s.TotalPaid.Cents)
	assert.Equal(t, int64(120000), s.TotalOverdue.Cents)
	assert.Equal(t, 1, s.PaidCount)
	assert.Equal(t, 1, s.PendingCount)
	assert.Equal(t, 1, s.OverdueCount)
	assert.Equal(t, int64(50000), s.TotalExpenses.Cents)
	assert.Equal(t, int64(120000-50000), s.Balance.Cents)
	assert.Equal(t, int64(120000), s.TotalPending().Cents)
}

func TestSummarizeEmptyPeriod(t *testing.T) {
	s := Summarize("org", 2026, 5, nil, nil, summaryNow)
	assert.Equal(t, MonthlySummary{OrganizationID: "org", Year: 2026, Month: 5}, s)
}

func TestSummarizeIgnoresOtherPeriods(t *testing.T) {
	dues := []Due{
		{Amount: NewMoney(100), DueDate: NewDate(2026, 4, 1), Status: StatusPending},
		{Amount: NewMoney(100), DueDate: NewDate(2025, 3, 1), Status: StatusPending},
	}
	expenses := []Expense{{Category: CategoryWater, Amount: NewMoney(100), Date: NewDate(2026, 2, 28)}}
	s := Summarize("org", 2026, 3, dues, expenses, summaryNow)
	assert.True(t, s.TotalDues.IsZero())
	assert.True(t, s.TotalExpenses.IsZero())
}

func TestSummarizeAdditiveUnderPermutation(t *testing.T) {
	var dues []Due
	for i := 0; i < 40; i++ {
		d := Due{
			ID:      string(rune('a' + i%26)),
			Amount:  NewMoney(int64(1000 + i*37)),
			DueDate: NewDate(2026, 9, 1+i%30),
			Status:  StatusPending,
		}
		if i%3 == 0 {
			d.Status = StatusPaid
			d.PaidAt = paidAt(summaryNow)
		}
		dues = append(dues, d)
	}
	now := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)
	base := Summarize("org", 2026, 9, dues, nil, now)
	require.Equal(t, base.TotalDues, SumMoney(base.TotalPaid, base.TotalOverdue, base.TotalPending()))

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 10; i++ {
		shuffled := append([]Due(nil), dues...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, base, Summarize("org", 2026, 9, shuffled, nil, now))
	}
}

func TestBreakdownTieOrdersByName(t *testing.T) {
	expenses := []Expense{
		{Category: CategoryMaintenance, Amount: NewMoney(500)},
		{Category: CategoryElectricity, Amount: NewMoney(300)},
		{Category: CategoryElectricity, Amount: NewMoney(200)},
	}
	got := Breakdown(expenses)
	assert.Equal(t, []ExpenseBreakdown{
		{Category: CategoryElectricity, Amount: NewMoney(500), Count: 2},
		{Category: CategoryMaintenance, Amount: NewMoney(500), Count: 1},
	}, got)
}

func TestBreakdownSumsToTotal(t *testing.T) {
	expenses := []Expense{
		{Category: CategoryWater, Amount: NewMoney(1250), Date: NewDate(2026, 3, 1)},
		{Category: CategoryCleaning, Amount: NewMoney(9000), Date: NewDate(2026, 3, 2)},
		{Category: CategoryWater, Amount: NewMoney(50), Date: NewDate(2026, 3, 3)},
		{Category: CategoryOther, Amount: NewMoney(1), Date: NewDate(2026, 3, 4)},
	}
	got := Breakdown(expenses)
	require.Len(t, got, 3)

	var sum Money
	for i, b := range got {
		sum = sum.Add(b.Amount)
		if i > 0 {
			assert.True(t, got[i-1].Amount.Cmp(b.Amount) >= 0, "not descending at %d", i)
		}
	}
	s := Summarize("org", 2026, 3, nil, expenses, summaryNow)
	assert.Equal(t, s.TotalExpenses, sum)
	assert.Equal(t, CategoryCleaning, got[0].Category)
}

func TestBreakdownEmpty(t *testing.T) {
	assert.Empty(t, Breakdown(nil))
}
