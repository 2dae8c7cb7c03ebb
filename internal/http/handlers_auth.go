package http

import (
	"net/http"

	"sitetakip/internal/session"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondError(w, r, err)
		return
	}
	u, err := s.sessions.Register(r.Context(), session.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		FullName: sanitizeInput(req.FullName),
		Phone:    sanitizeInput(req.Phone),
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, newUserResponse(u))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondError(w, r, err)
		return
	}
	token, sess, err := s.sessions.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}
	u, err := s.sessions.Me(r.Context(), sess)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: sess.ExpiresAt,
		User:      newUserResponse(u),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())
	s.sessions.Logout(r.Context(), sess)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())
	u, err := s.sessions.Me(r.Context(), sess)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newUserResponse(u))
}
