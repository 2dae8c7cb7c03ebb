package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"sitetakip/internal/core"
)

func (s *Server) handleMonthlyReport(w http.ResponseWriter, r *http.Request) {
	orgID := mux.Vars(r)["orgId"]
	year, month, err := parseYearMonth(r, s.reports.Now().Time)
	if err != nil {
		respondError(w, r, err)
		return
	}
	summary, err := s.getSummary(r.Context(), orgID, year, month)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newSummaryResponse(summary))
}

func (s *Server) handleExpenseReport(w http.ResponseWriter, r *http.Request) {
	orgID := mux.Vars(r)["orgId"]
	year, month, err := parseYearMonth(r, s.reports.Now().Time)
	if err != nil {
		respondError(w, r, err)
		return
	}
	items, err := s.getBreakdown(r.Context(), orgID, year, month)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newBreakdownResponse(orgID, year, month, items))
}

func periodKey(orgID string, year, month int) string {
	return fmt.Sprintf("%s|%04d-%02d", orgID, year, month)
}

func (s *Server) getSummary(ctx context.Context, orgID string, year, month int) (core.MonthlySummary, error) {
	key := periodKey(orgID, year, month) + "|" + s.reports.Now().String()

	if data, found := s.summaryCache.Get(key); found {
		slog.DebugContext(ctx, "Summary cache hit", "organization_id", orgID, "year", year, "month", month)
		return data, nil
	}

	data, err := s.reports.MonthlySummary(ctx, orgID, year, month)
	if err != nil {
		return core.MonthlySummary{}, err
	}
	s.summaryCache.Set(key, data)
	slog.DebugContext(ctx, "Summary cached", "organization_id", orgID, "year", year, "month", month, "balance", data.Balance.String())
	return data, nil
}

func (s *Server) getBreakdown(ctx context.Context, orgID string, year, month int) ([]core.ExpenseBreakdown, error) {
	key := periodKey(orgID, year, month)

	if items, found := s.breakdownCache.Get(key); found {
		slog.DebugContext(ctx, "Breakdown cache hit", "organization_id", orgID, "year", year, "month", month)
		// copy so callers cannot mutate the cached slice
		result := make([]core.ExpenseBreakdown, len(items))
		copy(result, items)
		return result, nil
	}

	items, err := s.reports.ExpenseBreakdown(ctx, orgID, year, month)
	if err != nil {
		return nil, err
	}
	s.breakdownCache.Set(key, items)
	return items, nil
}

// invalidateReports drops every cached report of the organization.
func (s *Server) invalidateReports(orgID string) {
	prefix := orgID + "|"
	n := s.summaryCache.DeletePrefix(prefix) + s.breakdownCache.DeletePrefix(prefix)
	if n > 0 {
		slog.Debug("Report cache invalidated", "organization_id", orgID, "entries", n)
	}
}
