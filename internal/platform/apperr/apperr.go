// Package apperr defines the error taxonomy shared by the clinic services.
// Every failure a service returns to the HTTP layer is either one of the
// kinds below or an unexpected internal error.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel kinds. Match with errors.Is.
var (
	ErrNotFound       = errors.New("not found")
	ErrValidation     = errors.New("validation failure")
	ErrDuplicateKey   = errors.New("duplicate key")
	ErrCascadeFailure = errors.New("cascade failure")
	ErrForbidden      = errors.New("forbidden")
	ErrUnauthorized   = errors.New("unauthorized")
)

// Error carries a kind, a human message and optional field details.
type Error struct {
	Kind    error             `json:"-"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	Err     error             `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the kind of this error.
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

// NotFound reports an unknown entity id.
func NotFound(resource string, id any) *Error {
	return &Error{
		Kind:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Details: map[string]string{"resource": resource, "id": fmt.Sprint(id)},
	}
}

// Validation reports a rejected input before any write happened.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

// ValidationField is Validation with a field name recorded in Details.
func ValidationField(field, message string) *Error {
	return &Error{
		Kind:    ErrValidation,
		Message: fmt.Sprintf("%s: %s", field, message),
		Details: map[string]string{"field": field},
	}
}

// DuplicateKey reports a unique constraint violation from the store.
func DuplicateKey(what string, err error) *Error {
	return &Error{Kind: ErrDuplicateKey, Message: fmt.Sprintf("%s already exists", what), Err: err}
}

// CascadeFailure reports a dependent removal that did not complete.
// leftovers lists what could not be removed.
func CascadeFailure(what string, leftovers []string, err error) *Error {
	e := &Error{Kind: ErrCascadeFailure, Message: fmt.Sprintf("delete %s: dependent cleanup incomplete", what), Err: err}
	if len(leftovers) > 0 {
		e.Details = map[string]string{"leftovers": strings.Join(leftovers, ",")}
	}
	return e
}

func Forbidden(message string) *Error {
	return &Error{Kind: ErrForbidden, Message: message}
}

func Unauthorized(message string) *Error {
	return &Error{Kind: ErrUnauthorized, Message: message}
}

// HTTPStatus maps an error to the response status the API uses for it.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrDuplicateKey):
		return http.StatusConflict
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the text safe to show a client. Internal errors
// are collapsed to a generic message.
func PublicMessage(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	return "internal server error"
}
