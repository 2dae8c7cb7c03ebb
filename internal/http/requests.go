package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"sitetakip/internal/core"
)

const maxBodyBytes = 1 << 20

var errInvalidPayload = errors.New("invalid JSON payload")

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	FullName string `json:"full_name" validate:"required,max=200"`
	Phone    string `json:"phone" validate:"omitempty,max=32"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type organizationRequest struct {
	Name             string `json:"name" validate:"required,max=200"`
	Address          string `json:"address" validate:"omitempty,max=500"`
	TotalUnits       int    `json:"total_units" validate:"gte=0"`
	MonthlyDueAmount string `json:"monthly_due_amount"`
}

type unitRequest struct {
	UnitNumber string `json:"unit_number" validate:"required,max=20"`
	Floor      int    `json:"floor"`
	ResidentID string `json:"resident_id"`
}

type updateUnitRequest struct {
	UnitNumber string `json:"unit_number" validate:"required,max=20"`
	Floor      int    `json:"floor"`
}

type assignResidentRequest struct {
	// empty marks the unit vacant
	ResidentID string `json:"resident_id"`
}

type residentRequest struct {
	FullName string `json:"full_name" validate:"required,max=200"`
	Phone    string `json:"phone" validate:"omitempty,max=32"`
	Email    string `json:"email" validate:"omitempty,email"`
}

type createDueRequest struct {
	UnitID      string `json:"unit_id" validate:"required"`
	Amount      string `json:"amount" validate:"required"`
	DueDate     string `json:"due_date" validate:"required,datetime=2006-01-02"`
	Description string `json:"description" validate:"omitempty,max=500"`
}

type bulkDueRequest struct {
	Amount      string `json:"amount" validate:"required"`
	DueDate     string `json:"due_date" validate:"required,datetime=2006-01-02"`
	Description string `json:"description" validate:"omitempty,max=500"`
}

type payDueRequest struct {
	PaymentMethod string `json:"payment_method" validate:"omitempty,oneof=cash transfer online"`
}

type expenseRequest struct {
	Category    string `json:"category" validate:"required,oneof=maintenance cleaning electricity water elevator other"`
	Amount      string `json:"amount" validate:"required"`
	Date        string `json:"date" validate:"required,datetime=2006-01-02"`
	Description string `json:"description" validate:"omitempty,max=500"`
	ReceiptURL  string `json:"receipt_url" validate:"omitempty,url"`
}

// decodeJSON reads one JSON object into dst and validates it. An empty body
// is accepted when optional is set and leaves dst untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, optional bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) && optional {
			return validate.Struct(dst)
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("%w: body exceeds %d bytes", errInvalidPayload, maxErr.Limit)
		}
		return fmt.Errorf("%w: %v", errInvalidPayload, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after object", errInvalidPayload)
	}
	return validate.Struct(dst)
}

// parseOptionalAmount treats an empty string as zero.
func parseOptionalAmount(field, s string) (core.Money, error) {
	if strings.TrimSpace(s) == "" {
		return core.Money{}, nil
	}
	m, err := core.ParseMoney(s)
	if err != nil {
		return core.Money{}, core.Invalid(field, "not a valid amount: %q", s)
	}
	return m, nil
}

// queryInt reads an optional integer query parameter. Absent values return
// zero.
func queryInt(r *http.Request, name string) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, core.Invalid(name, "must be an integer, got %q", v)
	}
	return n, nil
}

// parseYearMonth extracts year and month from the query. Each part defaults
// to the one of now when absent or blank. A present value is validated as
// given, so month=0 is rejected.
func parseYearMonth(r *http.Request, now time.Time) (year, month int, err error) {
	if year, err = queryIntOr(r, "year", now.Year()); err != nil {
		return 0, 0, err
	}
	if month, err = queryIntOr(r, "month", int(now.Month())); err != nil {
		return 0, 0, err
	}
	return year, month, core.ValidatePeriod(year, month)
}

func queryIntOr(r *http.Request, name string, def int) (int, error) {
	if strings.TrimSpace(r.URL.Query().Get(name)) == "" {
		return def, nil
	}
	return queryInt(r, name)
}

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
