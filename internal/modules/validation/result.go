// Package validation checks every engine request before any numeric work runs.
// All violations are collected; validation never stops at the first one.
package validation

import (
	"fmt"
	"strings"
)

// Stable error codes. Calling UIs localize on these, never on messages.
const (
	CodeMalformedBody           = "MALFORMED_BODY"
	CodeUnknownRequestKind      = "UNKNOWN_REQUEST_KIND"
	CodeRequired                = "REQUIRED"
	CodeInvalidType             = "INVALID_TYPE"
	CodeInvalidDate             = "INVALID_DATE"
	CodeInvalidEnum             = "INVALID_ENUM"
	CodeOutOfRange              = "OUT_OF_RANGE"
	CodeNegativeValue           = "NEGATIVE_VALUE"
	CodeAmountNotPositive       = "AMOUNT_NOT_POSITIVE"
	CodeAmountTooLow            = "AMOUNT_TOO_LOW"
	CodeAmountTooHigh           = "AMOUNT_TOO_HIGH"
	CodeInvalidCurrency         = "INVALID_CURRENCY"
	CodeNameTooLong             = "NAME_TOO_LONG"
	CodeTooManyItems            = "TOO_MANY_ITEMS"
	CodeDateInFuture            = "DATE_IN_FUTURE"
	CodeInsufficientCashFlows   = "INSUFFICIENT_CASH_FLOWS"
	CodeInconsistentConstraints = "INCONSISTENT_CONSTRAINTS"
	CodeInvalidDateRange        = "INVALID_DATE_RANGE"
	CodeDateRangeTooLong        = "DATE_RANGE_TOO_LONG"
	CodeInvalidPagination       = "INVALID_PAGINATION"
	CodeInvalidStatusTransition = "INVALID_STATUS_TRANSITION"
)

// Error is one field-scoped violation.
type Error struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e Error) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Field, e.Message, e.Code)
}

// Result is the outcome of validating one request. IsValid holds iff Errors
// is empty.
type Result struct {
	IsValid bool    `json:"isValid"`
	Errors  []Error `json:"errors"`
}

// Valid returns an empty, valid result.
func Valid() Result {
	return Result{IsValid: true, Errors: []Error{}}
}

func (r *Result) add(field, code, format string, args ...interface{}) {
	r.Errors = append(r.Errors, Error{
		Field:   field,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	})
	r.IsValid = false
}

// Merge appends the errors of other, skipping REQUIRED errors for fields that
// already carry a type error.
func (r *Result) Merge(other Result) {
	typed := make(map[string]bool)
	for _, e := range r.Errors {
		if e.Code == CodeInvalidType || e.Code == CodeInvalidDate {
			typed[e.Field] = true
		}
	}
	for _, e := range other.Errors {
		if e.Code == CodeRequired && typed[e.Field] {
			continue
		}
		r.Errors = append(r.Errors, e)
	}
	r.IsValid = len(r.Errors) == 0
}

// HasCode reports whether any error carries code.
func (r Result) HasCode(code string) bool {
	for _, e := range r.Errors {
		if e.Code == code {
			return true
		}
	}
	return false
}

// Codes lists the error codes in order.
func (r Result) Codes() []string {
	codes := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		codes[i] = e.Code
	}
	return codes
}

// Err collapses an invalid result into a single error, nil when valid.
func (r Result) Err() error {
	if r.IsValid {
		return nil
	}
	parts := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		parts[i] = e.Error()
	}
	return fmt.Errorf("validation failed: %s", strings.Join(parts, "; "))
}

func indexed(prefix string, i int, field string) string {
	if field == "" {
		return fmt.Sprintf("%s[%d]", prefix, i)
	}
	return fmt.Sprintf("%s[%d].%s", prefix, i, field)
}
