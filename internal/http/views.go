package http

import (
	"time"

	"sitetakip/internal/core"
)

type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Phone     string    `json:"phone,omitempty"`
	Role      core.Role `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type loginResponse struct {
	Token     string       `json:"token"`
	TokenType string       `json:"token_type"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      userResponse `json:"user"`
}

type organizationResponse struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Address          string     `json:"address"`
	TotalUnits       int        `json:"total_units"`
	MonthlyDueAmount core.Money `json:"monthly_due_amount"`
	ManagerID        string     `json:"manager_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type unitResponse struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	UnitNumber     string    `json:"unit_number"`
	Floor          int       `json:"floor"`
	ResidentID     *string   `json:"resident_id"`
	CreatedAt      time.Time `json:"created_at"`
}

type residentResponse struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	FullName       string    `json:"full_name"`
	Phone          string    `json:"phone,omitempty"`
	Email          string    `json:"email,omitempty"`
	UnitID         *string   `json:"unit_id"`
	UnitNumber     string    `json:"unit_number,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type dueResponse struct {
	ID             string             `json:"id"`
	OrganizationID string             `json:"organization_id"`
	UnitID         string             `json:"unit_id"`
	UnitNumber     string             `json:"unit_number"`
	Amount         core.Money         `json:"amount"`
	DueDate        core.Date          `json:"due_date"`
	Status         core.DueStatus     `json:"status"`
	PaidAt         *time.Time         `json:"paid_at"`
	PaymentMethod  core.PaymentMethod `json:"payment_method,omitempty"`
	Description    string             `json:"description"`
	CreatedAt      time.Time          `json:"created_at"`
}

type expenseResponse struct {
	ID             string        `json:"id"`
	OrganizationID string        `json:"organization_id"`
	Category       core.Category `json:"category"`
	Amount         core.Money    `json:"amount"`
	Date           core.Date     `json:"date"`
	Description    string        `json:"description"`
	ReceiptURL     string        `json:"receipt_url,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

type summaryResponse struct {
	OrganizationID string     `json:"organization_id"`
	Year           int        `json:"year"`
	Month          int        `json:"month"`
	TotalDues      core.Money `json:"total_dues"`
	TotalPaid      core.Money `json:"total_paid"`
	TotalPending   core.Money `json:"total_pending"`
	TotalOverdue   core.Money `json:"total_overdue"`
	TotalExpenses  core.Money `json:"total_expenses"`
	Balance        core.Money `json:"balance"`
	PaidCount      int        `json:"paid_count"`
	PendingCount   int        `json:"pending_count"`
	OverdueCount   int        `json:"overdue_count"`
}

type breakdownItem struct {
	Category core.Category `json:"category"`
	Amount   core.Money    `json:"amount"`
	Count    int           `json:"count"`
	Share    string        `json:"share"`
}

type breakdownResponse struct {
	OrganizationID string          `json:"organization_id"`
	Year           int             `json:"year"`
	Month          int             `json:"month"`
	Total          core.Money      `json:"total"`
	Categories     []breakdownItem `json:"categories"`
}

func newUserResponse(u core.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		FullName:  u.FullName,
		Phone:     u.Phone,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

func newOrganizationResponse(o core.Organization) organizationResponse {
	return organizationResponse{
		ID:               o.ID,
		Name:             o.Name,
		Address:          o.Address,
		TotalUnits:       o.TotalUnits,
		MonthlyDueAmount: o.MonthlyDueAmount,
		ManagerID:        o.ManagerID,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	}
}

func newUnitResponse(u core.Unit) unitResponse {
	return unitResponse{
		ID:             u.ID,
		OrganizationID: u.OrganizationID,
		UnitNumber:     u.UnitNumber,
		Floor:          u.Floor,
		ResidentID:     optional(u.ResidentID),
		CreatedAt:      u.CreatedAt,
	}
}

// newResidentResponses attaches each resident's unit, found by scanning
// the organization's units.
func newResidentResponses(residents []core.Resident, units []core.Unit) []residentResponse {
	unitOf := make(map[string]core.Unit, len(units))
	for _, u := range units {
		if u.ResidentID != "" {
			unitOf[u.ResidentID] = u
		}
	}
	out := make([]residentResponse, 0, len(residents))
	for _, r := range residents {
		rr := residentResponse{
			ID:             r.ID,
			OrganizationID: r.OrganizationID,
			FullName:       r.FullName,
			Phone:          r.Phone,
			Email:          r.Email,
			CreatedAt:      r.CreatedAt,
		}
		if u, ok := unitOf[r.ID]; ok {
			rr.UnitID = optional(u.ID)
			rr.UnitNumber = u.UnitNumber
		}
		out = append(out, rr)
	}
	return out
}

// newDueResponse reports the effective status at now.
func newDueResponse(d core.Due, now time.Time) dueResponse {
	return dueResponse{
		ID:             d.ID,
		OrganizationID: d.OrganizationID,
		UnitID:         d.UnitID,
		UnitNumber:     d.UnitNumber,
		Amount:         d.Amount,
		DueDate:        d.DueDate,
		Status:         d.EffectiveStatus(now),
		PaidAt:         d.PaidAt,
		PaymentMethod:  d.PaymentMethod,
		Description:    d.Description,
		CreatedAt:      d.CreatedAt,
	}
}

func newDueResponses(dues []core.Due, now time.Time) []dueResponse {
	out := make([]dueResponse, 0, len(dues))
	for _, d := range dues {
		out = append(out, newDueResponse(d, now))
	}
	return out
}

func newExpenseResponse(e core.Expense) expenseResponse {
	return expenseResponse{
		ID:             e.ID,
		OrganizationID: e.OrganizationID,
		Category:       e.Category,
		Amount:         e.Amount,
		Date:           e.Date,
		Description:    e.Description,
		ReceiptURL:     e.ReceiptURL,
		CreatedAt:      e.CreatedAt,
	}
}

func newSummaryResponse(s core.MonthlySummary) summaryResponse {
	return summaryResponse{
		OrganizationID: s.OrganizationID,
		Year:           s.Year,
		Month:          s.Month,
		TotalDues:      s.TotalDues,
		TotalPaid:      s.TotalPaid,
		TotalPending:   s.TotalPending(),
		TotalOverdue:   s.TotalOverdue,
		TotalExpenses:  s.TotalExpenses,
		Balance:        s.Balance,
		PaidCount:      s.PaidCount,
		PendingCount:   s.PendingCount,
		OverdueCount:   s.OverdueCount,
	}
}

func newBreakdownResponse(orgID string, year, month int, items []core.ExpenseBreakdown) breakdownResponse {
	var total core.Money
	for _, b := range items {
		total = total.Add(b.Amount)
	}
	resp := breakdownResponse{
		OrganizationID: orgID,
		Year:           year,
		Month:          month,
		Total:          total,
		Categories:     make([]breakdownItem, 0, len(items)),
	}
	for _, b := range items {
		resp.Categories = append(resp.Categories, breakdownItem{
			Category: b.Category,
			Amount:   b.Amount,
			Count:    b.Count,
			Share:    b.Amount.ShareOf(total).StringFixed(2),
		})
	}
	return resp
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
