package entitystore

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	ErrSchema          ErrorKind = "schema"
	ErrUninitialized   ErrorKind = "uninitialized"
	ErrEntityNotFound  ErrorKind = "entity_not_found"
	ErrFieldNotFound   ErrorKind = "field_not_found"
	ErrUnknownOperator ErrorKind = "unknown_operator"
	ErrTypeMismatch    ErrorKind = "type_mismatch"
	ErrCorruptValue    ErrorKind = "corrupt_value"
	ErrConstraint      ErrorKind = "constraint_violation"
	ErrSQL             ErrorKind = "sql"
)

// Error is the typed failure returned by every store operation. Name
// carries the offending identifier (entity, field, operator or filter
// key) when one applies.
type Error struct {
	Kind    ErrorKind
	Message string
	Name    string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	base := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Name != "" {
		base = fmt.Sprintf("%s (name=%s)", base, e.Name)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", base, e.Cause)
	}
	return base
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func NewError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Wrap(kind ErrorKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

func SchemaError(msg string) *Error {
	return &Error{Kind: ErrSchema, Message: msg}
}

func UninitializedError() *Error {
	return &Error{Kind: ErrUninitialized, Message: "store has no schema; call Load first"}
}

func EntityNotFoundError(id string) *Error {
	return &Error{Kind: ErrEntityNotFound, Message: "entity not found", Name: id}
}

func FieldNotFoundError(entity, field string) *Error {
	return &Error{Kind: ErrFieldNotFound, Message: fmt.Sprintf("field not found on entity %s", entity), Name: field}
}

func UnknownOperatorError(key string) *Error {
	return &Error{Kind: ErrUnknownOperator, Message: "no operator registered for filter key", Name: key}
}

func TypeMismatchError(field, msg string) *Error {
	return &Error{Kind: ErrTypeMismatch, Message: msg, Name: field}
}

func CorruptValueError(field, msg string) *Error {
	return &Error{Kind: ErrCorruptValue, Message: msg, Name: field}
}

func ConstraintError(entity string, cause error) *Error {
	return &Error{Kind: ErrConstraint, Message: "write rejected by backend", Name: entity, Cause: cause}
}

func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
