package http

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	applog "sitetakip/internal/log"
	"sitetakip/internal/session"
)

// requireSession resolves the bearer token to a live session and stores it
// in the request context.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			respondErrorWithCode(w, http.StatusUnauthorized, ErrCodeUnauthorized, "Authentication required", nil)
			return
		}
		sess, err := s.sessions.Validate(r.Context(), token)
		if err != nil {
			respondError(w, r, err)
			return
		}

		ctx := session.NewContext(r.Context(), sess)
		logger := applog.FromContext(ctx).With(applog.FieldUserID, sess.UserID)
		ctx = applog.NewContext(ctx, logger)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireOrganization lets the request through when the session may manage
// the organization in the path. Organizations the caller cannot see are
// reported as missing.
func (s *Server) requireOrganization(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, _ := session.FromContext(r.Context())
		orgID := mux.Vars(r)["orgId"]

		org, err := s.directory.GetOrganization(r.Context(), orgID)
		if err != nil {
			respondError(w, r, err)
			return
		}
		if sess == nil || !sess.CanManage(org) {
			applog.FromContext(r.Context()).InfoContext(r.Context(), "Organization access denied",
				applog.FieldOrganizationID, orgID)
			respondErrorWithCode(w, http.StatusNotFound, ErrCodeNotFound, "Resource not found", nil)
			return
		}

		logger := applog.FromContext(r.Context()).With(applog.FieldOrganizationID, orgID)
		next.ServeHTTP(w, r.WithContext(applog.NewContext(r.Context(), logger)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
