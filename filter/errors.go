package filter

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies failures surfaced to tool callers.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation_error"
	KindSecurity   ErrorKind = "security_error"
	// KindQuery is only produced by the executor, never by the compiler.
	KindQuery ErrorKind = "query_error"
)

// Error is the error type returned by normalization, compilation and statement
// building. It names the offending location but never carries filter values.
type Error struct {
	Kind     ErrorKind
	Path     string // location inside the filter document, e.g. "or[1].age"
	Field    string
	Operator string
	Limit    int
	Message  string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Path != "" {
		b.WriteString(" (at ")
		b.WriteString(e.Path)
		b.WriteString(")")
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the ErrorKind of err, or "" if err is not an *Error.
func KindOf(err error) ErrorKind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// QueryError wraps a database failure as a query_error. Errors that already
// carry a kind are returned unchanged.
func QueryError(err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	return &Error{Kind: KindQuery, Message: err.Error(), Err: err}
}

// Validationf builds a validation_error at path.
func Validationf(path, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Path: path, Message: fmt.Sprintf(format, args...)}
}

// Securityf builds a security_error at path.
func Securityf(path, format string, args ...any) *Error {
	return &Error{Kind: KindSecurity, Path: path, Message: fmt.Sprintf(format, args...)}
}

func limitError(path, name string, limit int) *Error {
	return &Error{
		Kind:    KindValidation,
		Path:    path,
		Limit:   limit,
		Message: fmt.Sprintf("filter exceeds %s of %d", name, limit),
	}
}

func operatorError(path, field, op string, err error) *Error {
	return &Error{
		Kind:     KindValidation,
		Path:     path,
		Field:    field,
		Operator: op,
		Message:  fmt.Sprintf("operator %q on field %q: %v", op, field, err),
		Err:      err,
	}
}

func joinPath(parent, child string) string {
	if parent == "" {
		return child
	}
	return parent + "." + child
}

func indexPath(parent string, i int) string {
	return fmt.Sprintf("%s[%d]", parent, i)
}
