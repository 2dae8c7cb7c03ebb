package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"sitetakip/internal/core"
	"sitetakip/internal/services"
)

func (s *Server) handleListDues(w http.ResponseWriter, r *http.Request) {
	status, err := core.ParseDueStatus(r.URL.Query().Get("status"))
	if err != nil {
		respondError(w, r, err)
		return
	}
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

	dues, err := s.dues.ListDues(r.Context(), mux.Vars(r)["orgId"], core.DueFilter{
		Status: status,
		Year:   year,
		Month:  month,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newDueResponses(dues, s.dues.Now()))
}

func (s *Server) handleListOverdue(w http.ResponseWriter, r *http.Request) {
	dues, err := s.dues.ListOverdue(r.Context(), mux.Vars(r)["orgId"])
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newDueResponses(dues, s.dues.Now()))
}

func (s *Server) handleGetDue(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	d, err := s.dues.GetDue(r.Context(), vars["orgId"], vars["dueId"])
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newDueResponse(d, s.dues.Now()))
}

func (s *Server) handleCreateDue(w http.ResponseWriter, r *http.Request) {
	orgID := mux.Vars(r)["orgId"]

	var req createDueRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondError(w, r, err)
		return
	}
	amount, err := core.ParseMoney(req.Amount)
	if err != nil {
		respondError(w, r, err)
		return
	}
	dueDate, err := core.ParseDate(req.DueDate)
	if err != nil {
		respondError(w, r, err)
		return
	}

	d, err := s.dues.CreateDue(r.Context(), orgID, services.CreateDueInput{
		UnitID:      req.UnitID,
		Amount:      amount,
		DueDate:     dueDate,
		Description: sanitizeInput(req.Description),
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	s.invalidateReports(orgID)
	respondJSON(w, http.StatusCreated, newDueResponse(d, s.dues.Now()))
}

func (s *Server) handleBulkCreateDues(w http.ResponseWriter, r *http.Request) {
	orgID := mux.Vars(r)["orgId"]

	var req bulkDueRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondError(w, r, err)
		return
	}
	amount, err := core.ParseMoney(req.Amount)
	if err != nil {
		respondError(w, r, err)
		return
	}
	dueDate, err := core.ParseDate(req.DueDate)
	if err != nil {
		respondError(w, r, err)
		return
	}

	dues, err := s.dues.BulkCreateDues(r.Context(), orgID, services.BulkDueInput{
		Amount:      amount,
		DueDate:     dueDate,
		Description: sanitizeInput(req.Description),
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	s.invalidateReports(orgID)
	respondJSON(w, http.StatusCreated, newDueResponses(dues, s.dues.Now()))
}

func (s *Server) handlePayDue(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req payDueRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		respondError(w, r, err)
		return
	}

	d, err := s.dues.MarkPaid(r.Context(), vars["orgId"], vars["dueId"], req.PaymentMethod)
	if err != nil {
		respondError(w, r, err)
		return
	}
	s.invalidateReports(vars["orgId"])
	respondJSON(w, http.StatusOK, newDueResponse(d, s.dues.Now()))
}
