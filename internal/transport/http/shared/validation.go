package shared

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"payslip/internal/transport/http/api"
)

type ValidationIssue struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

type Validator struct {
	issues []ValidationIssue
}

func NewValidator() *Validator {
	return &Validator{issues: make([]ValidationIssue, 0, 4)}
}

func (v *Validator) Add(field, reason string) {
	if v == nil {
		return
	}
	field = strings.TrimSpace(field)
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return
	}
	v.issues = append(v.issues, ValidationIssue{Field: field, Reason: reason})
}

func (v *Validator) Required(field, value, reason string) {
	if strings.TrimSpace(value) == "" {
		v.Add(field, reason)
	}
}

func (v *Validator) MinLength(field, value string, n int) {
	if value != "" && len(value) < n {
		v.Add(field, fmt.Sprintf("must be at least %d characters", n))
	}
}

// NonNegative records an issue when a number is below zero.
func (v *Validator) NonNegative(field string, value float64) {
	if value < 0 {
		v.Add(field, "must not be negative")
	}
}

func (v *Validator) HasIssues() bool {
	return v != nil && len(v.issues) > 0
}

func (v *Validator) Issues() []ValidationIssue {
	if v == nil || len(v.issues) == 0 {
		return nil
	}
	out := make([]ValidationIssue, len(v.issues))
	copy(out, v.issues)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Field == out[j].Field {
			return out[i].Reason < out[j].Reason
		}
		return out[i].Field < out[j].Field
	})
	return out
}

func (v *Validator) Reject(w http.ResponseWriter, requestID string) bool {
	if !v.HasIssues() {
		return false
	}
	FailValidation(w, requestID, v.Issues())
	return true
}

func FailValidation(w http.ResponseWriter, requestID string, issues []ValidationIssue) {
	message := "payload validation failed"
	if len(issues) > 0 {
		message = issues[0].Field + " " + issues[0].Reason
	}
	api.FailWithDetails(
		w,
		http.StatusBadRequest,
		api.CodeValidation,
		message,
		map[string]any{"fields": issues},
		requestID,
	)
}

// DecodeJSON decodes the first JSON value of the body into dst. Unknown
// fields and trailing data are ignored, and an empty body leaves dst
// untouched. Oversized bodies and malformed JSON are answered here and
// reported as false.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any, requestID string) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		api.Fail(w, http.StatusRequestEntityTooLarge, api.CodeTooLarge, "request body too large", requestID)
		return false
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		FailValidation(w, requestID, []ValidationIssue{{Field: typeErr.Field, Reason: "must be a " + typeErr.Type.String()}})
		return false
	}
	api.Fail(w, http.StatusBadRequest, api.CodeValidation, "invalid request payload", requestID)
	return false
}
