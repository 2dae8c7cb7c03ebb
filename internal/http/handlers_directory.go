package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"sitetakip/internal/core"
	"sitetakip/internal/session"
)

func (s *Server) handleListOrganizations(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())

	var (
		orgs []core.Organization
		err  error
	)
	if sess.Role == core.RoleAdmin {
		orgs, err = s.directory.ListOrganizations(r.Context())
	} else {
		orgs, err = s.directory.ListManagedOrganizations(r.Context(), sess.UserID)
	}
	if err != nil {
		respondError(w, r, err)
		return
	}

	out := make([]organizationResponse, 0, len(orgs))
	for _, o := range orgs {
		out = append(out, newOrganizationResponse(o))
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateOrganization(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())

	var req organizationRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondError(w, r, err)
		return
	}
	amount, err := parseOptionalAmount("monthly_due_amount", req.MonthlyDueAmount)
	if err != nil {
		respondError(w, r, err)
		return
	}

	org, err := s.directory.CreateOrganization(r.Context(), core.Organization{
		Name:             sanitizeInput(req.Name),
		Address:          sanitizeInput(req.Address),
		TotalUnits:       req.TotalUnits,
		MonthlyDueAmount: amount,
		ManagerID:        sess.UserID,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, newOrganizationResponse(org))
}

func (s *Server) handleGetOrganization(w http.ResponseWriter, r *http.Request) {
	org, err := s.directory.GetOrganization(r.Context(), mux.Vars(r)["orgId"])
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newOrganizationResponse(org))
}

func (s *Server) handleUpdateOrganization(w http.ResponseWriter, r *http.Request) {
	var req organizationRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondError(w, r, err)
		return
	}
	amount, err := parseOptionalAmount("monthly_due_amount", req.MonthlyDueAmount)
	if err != nil {
		respondError(w, r, err)
		return
	}

	org, err := s.directory.UpdateOrganization(r.Context(), core.Organization{
		ID:               mux.Vars(r)["orgId"],
		Name:             sanitizeInput(req.Name),
		Address:          sanitizeInput(req.Address),
		TotalUnits:       req.TotalUnits,
		MonthlyDueAmount: amount,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newOrganizationResponse(org))
}

func (s *Server) handleListUnits(w http.ResponseWriter, r *http.Request) {
	units, err := s.directory.ListUnits(r.Context(), mux.Vars(r)["orgId"])
	if err != nil {
		respondError(w, r, err)
		return
	}
	out := make([]unitResponse, 0, len(units))
	for _, u := range units {
		out = append(out, newUnitResponse(u))
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateUnit(w http.ResponseWriter, r *http.Request) {
	var req unitRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondError(w, r, err)
		return
	}
	u, err := s.directory.CreateUnit(r.Context(), mux.Vars(r)["orgId"], core.Unit{
		UnitNumber: sanitizeInput(req.UnitNumber),
		Floor:      req.Floor,
		ResidentID: req.ResidentID,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, newUnitResponse(u))
}

func (s *Server) handleGetUnit(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	u, err := s.directory.GetUnit(r.Context(), vars["orgId"], vars["unitId"])
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newUnitResponse(u))
}

func (s *Server) handleUpdateUnit(w http.ResponseWriter, r *http.Request) {
	var req updateUnitRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondError(w, r, err)
		return
	}
	vars := mux.Vars(r)
	u, err := s.directory.UpdateUnit(r.Context(), vars["orgId"], core.Unit{
		ID:         vars["unitId"],
		UnitNumber: sanitizeInput(req.UnitNumber),
		Floor:      req.Floor,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newUnitResponse(u))
}

func (s *Server) handleAssignResident(w http.ResponseWriter, r *http.Request) {
	var req assignResidentRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondError(w, r, err)
		return
	}
	vars := mux.Vars(r)
	u, err := s.directory.AssignResident(r.Context(), vars["orgId"], vars["unitId"], req.ResidentID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newUnitResponse(u))
}

func (s *Server) handleListResidents(w http.ResponseWriter, r *http.Request) {
	orgID := mux.Vars(r)["orgId"]
	residents, err := s.directory.ListResidents(r.Context(), orgID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	units, err := s.directory.ListUnits(r.Context(), orgID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newResidentResponses(residents, units))
}

func (s *Server) handleCreateResident(w http.ResponseWriter, r *http.Request) {
	var req residentRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondError(w, r, err)
		return
	}
	res, err := s.directory.CreateResident(r.Context(), mux.Vars(r)["orgId"], core.Resident{
		FullName: sanitizeInput(req.FullName),
		Phone:    sanitizeInput(req.Phone),
		Email:    sanitizeInput(req.Email),
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, newResidentResponses([]core.Resident{res}, nil)[0])
}

func (s *Server) handleGetResident(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	res, err := s.directory.GetResident(r.Context(), vars["orgId"], vars["residentId"])
	if err != nil {
		respondError(w, r, err)
		return
	}
	s.respondResident(w, r, http.StatusOK, res)
}

func (s *Server) handleUpdateResident(w http.ResponseWriter, r *http.Request) {
	var req residentRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondError(w, r, err)
		return
	}
	vars := mux.Vars(r)
	res, err := s.directory.UpdateResident(r.Context(), vars["orgId"], core.Resident{
		ID:       vars["residentId"],
		FullName: sanitizeInput(req.FullName),
		Phone:    sanitizeInput(req.Phone),
		Email:    sanitizeInput(req.Email),
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	s.respondResident(w, r, http.StatusOK, res)
}

// respondResident writes a single resident with its current unit.
func (s *Server) respondResident(w http.ResponseWriter, r *http.Request, status int, res core.Resident) {
	units, err := s.directory.ListUnits(r.Context(), res.OrganizationID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, status, newResidentResponses([]core.Resident{res}, units)[0])
}
