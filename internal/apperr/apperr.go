package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation   Kind = "validation"
	KindExpired      Kind = "expired"
	KindNotFound     Kind = "not_found"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindConflict     Kind = "conflict"
	KindIntegrity    Kind = "integrity"
	KindPersistence  Kind = "persistence"
)

// AppError is the error every layer above the stores returns. Internal is
// never exposed to clients.
type AppError struct {
	Kind     Kind
	Field    string
	Message  string
	Internal error
}

func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Internal
}

// Code is the machine-readable code sent in the error envelope.
func (e *AppError) Code() string {
	switch e.Kind {
	case KindValidation:
		return "ValidationError"
	case KindExpired:
		return "OrderExpired"
	case KindNotFound:
		return "NotFound"
	case KindUnauthorized:
		return "Unauthorized"
	case KindForbidden:
		return "Forbidden"
	case KindConflict:
		return "Conflict"
	case KindIntegrity:
		return "IntegrityError"
	default:
		return "ServerError"
	}
}

func Validation(field, msg string) *AppError {
	return &AppError{Kind: KindValidation, Field: field, Message: msg}
}

// Expired is a validation error: the reservation window closed before the
// customer confirmed.
func Expired() *AppError {
	return &AppError{Kind: KindExpired, Field: "order", Message: "order expired, cannot confirm"}
}

func NotFound(what string) *AppError {
	return &AppError{Kind: KindNotFound, Message: what + " not found"}
}

func Unauthorized(msg string) *AppError {
	return &AppError{Kind: KindUnauthorized, Message: msg}
}

func Forbidden(msg string) *AppError {
	return &AppError{Kind: KindForbidden, Message: msg}
}

func Conflict(msg string) *AppError {
	return &AppError{Kind: KindConflict, Message: msg}
}

func Integrity(msg string) *AppError {
	return &AppError{Kind: KindIntegrity, Message: msg}
}

func Persistence(err error) *AppError {
	return &AppError{Kind: KindPersistence, Message: "could not save the order, please retry", Internal: err}
}

func KindOf(err error) Kind {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindPersistence
}

func Is(err error, kind Kind) bool {
	var ae *AppError
	return errors.As(err, &ae) && ae.Kind == kind
}

// IsUserCorrectable reports whether the customer can fix the error by
// changing their input.
func IsUserCorrectable(err error) bool {
	k := KindOf(err)
	return k == KindValidation || k == KindExpired
}

func StatusCode(err error) int {
	switch KindOf(err) {
	case KindValidation, KindExpired:
		return http.StatusUnprocessableEntity
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindIntegrity:
		return http.StatusBadRequest
	default:
		return http.StatusServiceUnavailable
	}
}
