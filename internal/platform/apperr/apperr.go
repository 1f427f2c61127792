// Package apperr defines the error kinds returned by the ward services and
// their mapping to HTTP responses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/labstack/echo/v4"
)

var (
	ErrValidation     = errors.New("validation failed")
	ErrNotFound       = errors.New("not found")
	ErrBedUnavailable = errors.New("bed unavailable")
	ErrConflict       = errors.New("conflict")
	ErrPersistence    = errors.New("persistence failure")
)

// ErrNotAdmitted is returned when a discharge targets a patient without a bed.
var ErrNotAdmitted = fmt.Errorf("patient is not admitted: %w", ErrNotFound)

// ValidationError lists every rejected field of a command.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Fields, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Validation returns nil when fields is empty.
func Validation(fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}

// MaxLength appends a message to fields when the trimmed value has more than
// max characters.
func MaxLength(fields []string, name, value string, max int) []string {
	if utf8.RuneCountInString(strings.TrimSpace(value)) > max {
		return append(fields, fmt.Sprintf("%s must be at most %d characters", name, max))
	}
	return fields
}

// PersistenceError wraps a storage failure with the operation that hit it.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// Persistence wraps err unless it already carries one of the domain kinds.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsDomain(err) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

func NotFound(what string, id any) error {
	return fmt.Errorf("%s %v: %w", what, id, ErrNotFound)
}

func BedUnavailable(bedNumber int, status string) error {
	return fmt.Errorf("bed %d is %s: %w", bedNumber, status, ErrBedUnavailable)
}

func Conflict(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrConflict)
}

// IsDomain reports whether err already carries a kind other than persistence.
func IsDomain(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrBedUnavailable) ||
		errors.Is(err, ErrConflict)
}

// Status maps an error kind to its HTTP status code.
func Status(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrBedUnavailable), errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// ErrorBody is the JSON body of every error response.
type ErrorBody struct {
	Error  string   `json:"error"`
	Code   string   `json:"code"`
	Fields []string `json:"fields,omitempty"`
}

func code(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotAdmitted):
		return "not_admitted"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrBedUnavailable):
		return "bed_unavailable"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	default:
		return "internal"
	}
}

// HTTP converts a service error into an echo.HTTPError. Storage details are
// not exposed to clients.
func HTTP(err error) *echo.HTTPError {
	body := ErrorBody{Error: err.Error(), Code: code(err)}
	var ve *ValidationError
	if errors.As(err, &ve) {
		body.Fields = ve.Fields
	}
	status := Status(err)
	if status == http.StatusInternalServerError {
		body.Error = "internal server error"
	}
	return echo.NewHTTPError(status, body).SetInternal(err)
}
