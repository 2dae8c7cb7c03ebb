package core

import (
	"sort"
	"time"
)

// MonthlySummary is the cash-basis reconciliation of one organization for
// one billing period. It is always recomputed, never stored.
type MonthlySummary struct {
	OrganizationID string
	Year           int
	Month          int // 1-12
	TotalDues      Money
	TotalPaid      Money
	TotalOverdue   Money
	TotalExpenses  Money
	Balance        Money
	PaidCount      int
	PendingCount   int
	OverdueCount   int
}

// ExpenseBreakdown is the total spent in one category.
type ExpenseBreakdown struct {
	Category Category
	Amount   Money
	Count    int
}

// TotalPending is the receivable not yet overdue.
func (s MonthlySummary) TotalPending() Money {
	return s.TotalDues.Sub(s.TotalPaid).Sub(s.TotalOverdue)
}

// Summarize reconciles dues against expenses for (year, month). Records
// outside the period are ignored. Pending and overdue amounts are
// receivables and stay out of the balance.
func Summarize(orgID string, year, month int, dues []Due, expenses []Expense, now time.Time) MonthlySummary {
	s := MonthlySummary{OrganizationID: orgID, Year: year, Month: month}
	for _, d := range dues {
		if !d.DueDate.InPeriod(year, month) {
			continue
		}
		s.TotalDues = s.TotalDues.Add(d.Amount)
		switch d.EffectiveStatus(now) {
		case StatusPaid:
			s.TotalPaid = s.TotalPaid.Add(d.Amount)
			s.PaidCount++
		case StatusOverdue:
			s.TotalOverdue = s.TotalOverdue.Add(d.Amount)
			s.OverdueCount++
		default:
			s.PendingCount++
		}
	}
	for _, e := range expenses {
		if e.Date.InPeriod(year, month) {
			s.TotalExpenses = s.TotalExpenses.Add(e.Amount)
		}
	}
	s.Balance = s.TotalPaid.Sub(s.TotalExpenses)
	return s
}

// Breakdown groups expenses by category. Only categories that occur are
// returned, largest amount first, ties by category name.
func Breakdown(expenses []Expense) []ExpenseBreakdown {
	byCategory := make(map[Category]*ExpenseBreakdown)
	for _, e := range expenses {
		b, ok := byCategory[e.Category]
		if !ok {
			b = &ExpenseBreakdown{Category: e.Category}
			byCategory[e.Category] = b
		}
		b.Amount = b.Amount.Add(e.Amount)
		b.Count++
	}

	out := make([]ExpenseBreakdown, 0, len(byCategory))
	for _, b := range byCategory {
		out = append(out, *b)
	}
	SortBreakdown(out)
	return out
}

// SortBreakdown orders by amount descending, then category ascending.
func SortBreakdown(items []ExpenseBreakdown) {
	sort.Slice(items, func(i, j int) bool {
		if c := items[i].Amount.Cmp(items[j].Amount); c != 0 {
			return c > 0
		}
		return items[i].Category < items[j].Category
	})
}
