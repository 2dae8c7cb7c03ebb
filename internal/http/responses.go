package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"sitetakip/internal/core"
	applog "sitetakip/internal/log"
	"sitetakip/internal/session"
)

const (
	ErrCodeInvalidPayload     = "invalid_payload"
	ErrCodeValidation         = "validation_error"
	ErrCodeInvalidAmount      = "invalid_amount"
	ErrCodeUnauthorized       = "unauthorized"
	ErrCodeInvalidCredentials = "invalid_credentials"
	ErrCodeNotFound           = "not_found"
	ErrCodeMethodNotAllowed   = "method_not_allowed"
	ErrCodeAlreadyPaid        = "already_paid"
	ErrCodeConflict           = "conflict"
	ErrCodeRateLimitExceeded  = "rate_limit_exceeded"
	ErrCodeUnavailable        = "service_unavailable"
	ErrCodeInternal           = "internal_server_error"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// FieldError names one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func respondErrorWithCode(w http.ResponseWriter, status int, code, message string, details any) {
	respondJSON(w, status, ErrorResponse{Code: code, Message: message, Details: details})
}

// respondError maps a service error onto a status code and error body.
// Server-side failures are logged with the request logger; their message
// never reaches the client.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := classify(err)

	logger := applog.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Request failed",
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path,
			applog.FieldError, err.Error())
	} else {
		logger.DebugContext(r.Context(), "Request rejected",
			applog.FieldStatusCode, status,
			applog.FieldError, err.Error())
	}
	respondErrorWithCode(w, status, code, message, details)
}

func classify(err error) (status int, code, message string, details any) {
	var fieldErr *core.ValidationError
	var validationErrs validator.ValidationErrors

	switch {
	case errors.As(err, &validationErrs):
		return http.StatusBadRequest, ErrCodeValidation, "Request validation failed", fieldErrors(validationErrs)
	case errors.As(err, &fieldErr):
		var d []FieldError
		if fieldErr.Field != "" {
			d = []FieldError{{Field: fieldErr.Field, Message: fieldErr.Message}}
		}
		return http.StatusBadRequest, ErrCodeValidation, fieldErr.Error(), d
	case errors.Is(err, core.ErrInvalidAmount):
		return http.StatusBadRequest, ErrCodeInvalidAmount, "Amount must be a decimal with at most two fraction digits",
			[]FieldError{{Field: "amount", Message: "invalid amount"}}
	case errors.Is(err, errInvalidPayload):
		return http.StatusBadRequest, ErrCodeInvalidPayload, err.Error(), nil
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, ErrCodeNotFound, "Resource not found", nil
	case errors.Is(err, core.ErrAlreadyPaid):
		return http.StatusConflict, ErrCodeAlreadyPaid, "Due is already paid", nil
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict, ErrCodeConflict, err.Error(), nil
	case errors.Is(err, session.ErrInvalidCredentials):
		return http.StatusUnauthorized, ErrCodeInvalidCredentials, "Invalid email or password", nil
	case errors.Is(err, session.ErrUnauthenticated):
		return http.StatusUnauthorized, ErrCodeUnauthorized, "Authentication required", nil
	}
	return http.StatusInternalServerError, ErrCodeInternal, "An unexpected error occurred", nil
}

func fieldErrors(errs validator.ValidationErrors) []FieldError {
	out := make([]FieldError, 0, len(errs))
	for _, fe := range errs {
		out = append(out, FieldError{Field: fe.Field(), Message: ruleMessage(fe)})
	}
	return out
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "oneof":
		return "must be one of " + fe.Param()
	case "datetime":
		return "must be a date in YYYY-MM-DD format"
	case "url":
		return "must be an absolute URL"
	case "gte":
		return "must be " + fe.Param() + " or more"
	}
	return "failed the " + fe.Tag() + " check"
}

func notFoundHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondErrorWithCode(w, http.StatusNotFound, ErrCodeNotFound, "Route not found", nil)
	})
}

func methodNotAllowedHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slog.DebugContext(r.Context(), "Method not allowed", applog.FieldMethod, r.Method, applog.FieldPath, r.URL.Path)
		respondErrorWithCode(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "Method not allowed", nil)
	})
}
