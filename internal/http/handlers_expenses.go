package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"sitetakip/internal/core"
	"sitetakip/internal/services"
)

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	year, err := queryInt(r, "year")
	if err != nil {
		respondError(w, r, err)
		return
	}
	month, err := queryInt(r, "month")
	if err != nil {
		respondError(w, r, err)
		return
	}

	expenses, err := s.expenses.ListExpenses(r.Context(), mux.Vars(r)["orgId"], core.ExpenseFilter{Year: year, Month: month})
	if err != nil {
		respondError(w, r, err)
		return
	}
	out := make([]expenseResponse, 0, len(expenses))
	for _, e := range expenses {
		out = append(out, newExpenseResponse(e))
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	e, err := s.expenses.GetExpense(r.Context(), vars["orgId"], vars["expenseId"])
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newExpenseResponse(e))
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	orgID := mux.Vars(r)["orgId"]

	var req expenseRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondError(w, r, err)
		return
	}
	amount, err := core.ParseMoney(req.Amount)
	if err != nil {
		respondError(w, r, err)
		return
	}
	date, err := core.ParseDate(req.Date)
	if err != nil {
		respondError(w, r, err)
		return
	}

	e, err := s.expenses.CreateExpense(r.Context(), orgID, services.CreateExpenseInput{
		Category:    req.Category,
		Amount:      amount,
		Date:        date,
		Description: sanitizeInput(req.Description),
		ReceiptURL:  req.ReceiptURL,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	s.invalidateReports(orgID)
	respondJSON(w, http.StatusCreated, newExpenseResponse(e))
}
