package core

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

type DueStatus string

const (
	StatusPending DueStatus = "pending"
	StatusPaid    DueStatus = "paid"
	// StatusOverdue is never stored; see EffectiveStatus.
	StatusOverdue DueStatus = "overdue"
)

type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentTransfer PaymentMethod = "transfer"
	PaymentOnline   PaymentMethod = "online"
)

type Category string

const (
	CategoryMaintenance Category = "maintenance"
	CategoryCleaning    Category = "cleaning"
	CategoryElectricity Category = "electricity"
	CategoryWater       Category = "water"
	CategoryElevator    Category = "elevator"
	CategoryOther       Category = "other"
)

type (
	Date struct {
		time.Time
	}

	Organization struct {
		ID               string
		Name             string
		Address          string
		TotalUnits       int
		MonthlyDueAmount Money
		ManagerID        string
		CreatedAt        time.Time
		UpdatedAt        time.Time
	}

	// Unit holds the reference to its current resident. The reverse
	// direction is a lookup over units.
	Unit struct {
		ID             string
		OrganizationID string
		UnitNumber     string
		Floor          int
		ResidentID     string // empty when vacant
		CreatedAt      time.Time
	}

	Resident struct {
		ID             string
		OrganizationID string
		FullName       string
		Phone          string
		Email          string
		CreatedAt      time.Time
	}

	Due struct {
		ID             string
		OrganizationID string
		UnitID         string
		UnitNumber     string
		Amount         Money
		DueDate        Date
		Status         DueStatus // stored: pending or paid
		PaidAt         *time.Time
		PaymentMethod  PaymentMethod
		Description    string
		CreatedAt      time.Time
	}

	Expense struct {
		ID             string
		OrganizationID string
		Category       Category
		Amount         Money
		Date           Date
		Description    string
		ReceiptURL     string
		CreatedAt      time.Time
	}

	// DueFilter narrows listDues. Zero fields match everything.
	DueFilter struct {
		Status DueStatus
		Year   int
		Month  int
	}

	ExpenseFilter struct {
		Year  int
		Month int
	}
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its UTC calendar day.
func DateOf(t time.Time) Date {
	t = t.UTC()
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses a YYYY-MM-DD string. Overflowing dates such as
// 2026-02-30 are rejected.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, Invalid("date", "expected YYYY-MM-DD, got %q", s)
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return Invalid("date", "cannot be empty")
	}
	return nil
}

func (d Date) Day() int   { return d.Time.Day() }
func (d Date) Month() int { return int(d.Time.Month()) }
func (d Date) Year() int  { return d.Time.Year() }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// Before compares calendar days only.
func (d Date) Before(o Date) bool {
	return d.Time.Before(o.Time)
}

// InPeriod reports whether d falls in the given year and month. A zero
// year or month matches any value.
func (d Date) InPeriod(year, month int) bool {
	if year != 0 && d.Year() != year {
		return false
	}
	if month != 0 && d.Month() != month {
		return false
	}
	return true
}

// MarshalJSON encodes the date as "YYYY-MM-DD", overriding time.Time.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return Invalid("date", "expected a YYYY-MM-DD string")
	}
	v, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// ValidatePeriod checks a (year, month) billing period.
func ValidatePeriod(year, month int) error {
	if year < 1970 || year > 9999 {
		return Invalid("year", "out of range: %d", year)
	}
	if month < 1 || month > 12 {
		return Invalid("month", "must be between 1 and 12, got %d", month)
	}
	return nil
}

// EffectiveStatus derives the status shown to readers. A pending due whose
// date is strictly before today's date reads as overdue. Nothing is
// written back.
func EffectiveStatus(stored DueStatus, dueDate Date, now time.Time) DueStatus {
	if stored != StatusPending {
		return stored
	}
	if dueDate.Before(DateOf(now)) {
		return StatusOverdue
	}
	return StatusPending
}

func (d Due) EffectiveStatus(now time.Time) DueStatus {
	return EffectiveStatus(d.Status, d.DueDate, now)
}

func (d Due) IsPaid() bool {
	return d.Status == StatusPaid && d.PaidAt != nil
}

func (d Due) Validate() error {
	if strings.TrimSpace(d.UnitID) == "" {
		return Invalid("unit_id", "is required")
	}
	if err := d.Amount.Validate(); err != nil {
		return err
	}
	if d.DueDate.IsZero() {
		return Invalid("due_date", "is required")
	}
	if len(d.Description) > 500 {
		return Invalid("description", "too long (max 500 characters)")
	}
	return nil
}

func ParseDueStatus(s string) (DueStatus, error) {
	switch st := DueStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPending, StatusPaid, StatusOverdue:
		return st, nil
	case "":
		return "", nil
	}
	return "", Invalid("status", "must be one of pending, paid, overdue")
}

// ParsePaymentMethod defaults an empty method to cash.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch pm := PaymentMethod(strings.ToLower(strings.TrimSpace(s))); pm {
	case "":
		return PaymentCash, nil
	case PaymentCash, PaymentTransfer, PaymentOnline:
		return pm, nil
	}
	return "", Invalid("payment_method", "must be one of cash, transfer, online")
}

// Categories lists the expense categories in name order.
func Categories() []Category {
	return []Category{
		CategoryCleaning,
		CategoryElectricity,
		CategoryElevator,
		CategoryMaintenance,
		CategoryOther,
		CategoryWater,
	}
}

func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories() {
		if c == known {
			return c, nil
		}
	}
	return "", Invalid("category", "unknown category %q", s)
}

func (e Expense) Validate() error {
	if strings.TrimSpace(e.OrganizationID) == "" {
		return Invalid("organization_id", "is required")
	}
	if _, err := ParseCategory(string(e.Category)); err != nil {
		return err
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if e.Date.IsZero() {
		return Invalid("date", "is required")
	}
	if len(e.Description) > 500 {
		return Invalid("description", "too long (max 500 characters)")
	}
	return nil
}

func (o Organization) Validate() error {
	if strings.TrimSpace(o.Name) == "" {
		return Invalid("name", "is required")
	}
	if o.TotalUnits < 0 {
		return Invalid("total_units", "cannot be negative")
	}
	if o.MonthlyDueAmount.Cents < 0 {
		return Invalid("monthly_due_amount", "cannot be negative")
	}
	return nil
}

func (u Unit) Validate() error {
	if strings.TrimSpace(u.OrganizationID) == "" {
		return Invalid("organization_id", "is required")
	}
	if strings.TrimSpace(u.UnitNumber) == "" {
		return Invalid("unit_number", "is required")
	}
	return nil
}

func (r Resident) Validate() error {
	if strings.TrimSpace(r.FullName) == "" {
		return Invalid("full_name", "is required")
	}
	if strings.TrimSpace(r.Phone) == "" && strings.TrimSpace(r.Email) == "" {
		return Invalid("phone", "phone or email is required")
	}
	return nil
}

func (f DueFilter) Validate() error {
	if _, err := ParseDueStatus(string(f.Status)); err != nil {
		return err
	}
	return validateOptionalPeriod(f.Year, f.Month)
}

// Matches applies the filter using the effective status at now.
func (f DueFilter) Matches(d Due, now time.Time) bool {
	if f.Status != "" && d.EffectiveStatus(now) != f.Status {
		return false
	}
	return d.DueDate.InPeriod(f.Year, f.Month)
}

func (f ExpenseFilter) Validate() error {
	return validateOptionalPeriod(f.Year, f.Month)
}

func (f ExpenseFilter) Matches(e Expense) bool {
	return e.Date.InPeriod(f.Year, f.Month)
}

func validateOptionalPeriod(year, month int) error {
	if year != 0 && (year < 1970 || year > 9999) {
		return Invalid("year", "out of range: %d", year)
	}
	if month != 0 && (month < 1 || month > 12) {
		return Invalid("month", "must be between 1 and 12, got %d", month)
	}
	return nil
}

// CompareUnitNumbers orders unit numbers naturally: purely numeric numbers
// come first in numeric order ("2" before "10"), the rest follow in plain
// string order. Equal numeric values fall back to string order so "02" and
// "2" still compare consistently.
func CompareUnitNumbers(a, b string) int {
	ai, aerr := strconv.Atoi(a)
	bi, berr := strconv.Atoi(b)
	switch {
	case aerr == nil && berr == nil:
		if ai != bi {
			if ai < bi {
				return -1
			}
			return 1
		}
	case aerr == nil:
		return -1
	case berr == nil:
		return 1
	}
	return strings.Compare(a, b)
}

// SortDues orders dues by due date, then unit number, then id.
func SortDues(dues []Due) {
	sort.SliceStable(dues, func(i, j int) bool {
		a, b := dues[i], dues[j]
		if !a.DueDate.Equal(b.DueDate.Time) {
			return a.DueDate.Before(b.DueDate)
		}
		if c := CompareUnitNumbers(a.UnitNumber, b.UnitNumber); c != 0 {
			return c < 0
		}
		return a.ID < b.ID
	})
}

// SortExpenses orders expenses by date, keeping creation order for ties.
func SortExpenses(expenses []Expense) {
	sort.SliceStable(expenses, func(i, j int) bool {
		a, b := expenses[i], expenses[j]
		if !a.Date.Equal(b.Date.Time) {
			return a.Date.Before(b.Date)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}

// SortUnits orders units by unit number.
func SortUnits(units []Unit) {
	sort.SliceStable(units, func(i, j int) bool {
		return CompareUnitNumbers(units[i].UnitNumber, units[j].UnitNumber) < 0
	})
}
