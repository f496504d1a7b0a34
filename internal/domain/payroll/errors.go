package payroll

import (
	"errors"
	"strings"
)

var ErrPayslipNotFound = errors.New("payslip not found")

// ValidationError lists the payslip fields that failed validation.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "missing required field: " + strings.Join(e.Fields, ", ")
}
