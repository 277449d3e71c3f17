package models

import (
	"errors"
	"fmt"
	"strings"
)

// FieldError is one rejected field, identified by its dotted config or JSON path.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

func (e FieldError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

// Unwrap exposes the sentinel the field was rejected with, if any.
func (e FieldError) Unwrap() error { return e.Err }

// ValidationErrors collects every rejected field of one value so callers can
// report them together.
type ValidationErrors struct {
	Errors []FieldError `json:"errors"`
}

// Add rejects field with err. Nested ValidationErrors are flattened with
// their fields prefixed by field.
func (v *ValidationErrors) Add(field string, err error) {
	if err == nil {
		return
	}
	var nested *ValidationErrors
	if errors.As(err, &nested) {
		for _, fe := range nested.Errors {
			fe.Field = dottedPath(field, fe.Field)
			v.Errors = append(v.Errors, fe)
		}
		return
	}
	v.Errors = append(v.Errors, FieldError{Field: field, Reason: err.Error(), Err: err})
}

// Addf rejects field with a formatted reason.
func (v *ValidationErrors) Addf(field, format string, args ...any) {
	v.Errors = append(v.Errors, FieldError{Field: field, Reason: fmt.Sprintf(format, args...)})
}

// Err returns v as an error, or nil when nothing was rejected.
func (v *ValidationErrors) Err() error {
	if v == nil || len(v.Errors) == 0 {
		return nil
	}
	return v
}

func (v *ValidationErrors) Error() string {
	if v == nil || len(v.Errors) == 0 {
		return "invalid value"
	}
	parts := make([]string, len(v.Errors))
	for i, fe := range v.Errors {
		parts[i] = fe.Error()
	}
	return strings.Join(parts, "; ")
}

// Unwrap lets errors.Is and errors.As see each field's sentinel.
func (v *ValidationErrors) Unwrap() []error {
	if v == nil {
		return nil
	}
	errs := make([]error, len(v.Errors))
	for i, fe := range v.Errors {
		errs[i] = fe
	}
	return errs
}

func dottedPath(prefix, field string) string {
	if prefix == "" {
		return field
	}
	if field == "" {
		return prefix
	}
	return prefix + "." + field
}
