// Package apperr defines the error kinds shared by the catalog and the cart:
// validation failures, missing entities and store outages.
//
// Each kind has a sentinel that typed errors match through errors.Is, so the
// transport layer can classify any wrapped error without knowing which
// component produced it.
package apperr

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Error kinds.
var (
	ErrValidation  = errors.New("validation failed")
	ErrNotFound    = errors.New("not found")
	ErrUnavailable = errors.New("store unavailable")
)

// ValidationError reports caller input that was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Validation returns a *ValidationError for the given field.
func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFoundError reports that an entity referenced by the caller is absent.
type NotFoundError struct {
	Entity  string
	ID      string
	Message string
}

func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Entity)
	}
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// Is reports whether target is ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// UnavailableError wraps a persistence failure.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, ErrUnavailable, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrUnavailable.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}

// Unavailable wraps err as a store failure of operation op. A nil err yields
// nil, and errors that already carry a kind are returned unchanged.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if Classified(err) {
		return err
	}
	return &UnavailableError{Op: op, Err: err}
}

// Classified reports whether err carries one of the error kinds.
func Classified(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrUnavailable)
}
