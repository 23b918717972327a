// Package apperrors defines the error taxonomy shared by all docvault
// components. Handlers map these to HTTP status codes; services and
// repositories return them directly so callers can branch with errors.As.
package apperrors

import (
	"errors"
	"fmt"
)

// NotFoundError indicates a document, version, blob or upload session
// does not exist. Expired upload sessions also surface as NotFoundError.
type NotFoundError struct {
	Resource string // "document", "version", "blob", "upload_session"
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// NewNotFound creates a NotFoundError for the given resource and id.
func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ValidationError indicates the caller supplied invalid input or requested
// an operation the domain rules reject (bad chunk index, deleting the sole
// remaining version, completing an incomplete upload).
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// NewValidation creates a ValidationError with a formatted message.
func NewValidation(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// ConcurrencyError indicates a document lock could not be acquired within
// the configured wait bound. No state was mutated.
type ConcurrencyError struct {
	Resource string
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("lock acquisition timed out for %s", e.Resource)
}

// StorageError wraps an underlying metadata-store or blob-store failure
// with the operation and resource it occurred on.
type StorageError struct {
	Op       string
	Resource string
	Err      error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s on %s: %v", e.Op, e.Resource, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// WrapStorage wraps err as a StorageError unless it is already part of the
// domain taxonomy, in which case it propagates unchanged. A nil err returns
// nil.
func WrapStorage(op, resource string, err error) error {
	if err == nil {
		return nil
	}
	if IsDomain(err) {
		return err
	}
	return &StorageError{Op: op, Resource: resource, Err: err}
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsConcurrency reports whether err is (or wraps) a ConcurrencyError.
func IsConcurrency(err error) bool {
	var ce *ConcurrencyError
	return errors.As(err, &ce)
}

// IsDomain reports whether err belongs to the domain-meaningful part of the
// taxonomy that must propagate to callers unchanged.
func IsDomain(err error) bool {
	return IsNotFound(err) || IsValidation(err) || IsConcurrency(err)
}
