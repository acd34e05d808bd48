// Package apperrors defines the error taxonomy shared by the rewards engine.
//
// Callers discriminate with errors.As; IsRetryable tells event consumers
// whether a failed unit of work should be requeued.
package apperrors

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed input. Never retried, nothing mutated.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// NotFoundError reports a missing consumer, badge or benefit.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// ConcurrencyConflictError is returned when the per-consumer lock could not be
// acquired in time. Safe to retry.
type ConcurrencyConflictError struct {
	ConsumerID string
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("consumer %q is being updated concurrently, retry later", e.ConsumerID)
}

// ConfigurationError reports an inconsistent grade table.
type ConfigurationError struct {
	Version uint
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Version == 0 {
		return "grade table misconfigured: " + e.Message
	}
	return fmt.Sprintf("grade table v%d misconfigured: %s", e.Version, e.Message)
}

// StorageError wraps a failure of the persistence layer.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Validation builds a ValidationError.
func Validation(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a NotFoundError.
func NotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// Storage wraps err as a StorageError unless it already carries a taxonomy type.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	if Classified(err) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// Classified reports whether err already belongs to the taxonomy.
func Classified(err error) bool {
	var (
		v *ValidationError
		n *NotFoundError
		c *ConcurrencyConflictError
		g *ConfigurationError
		s *StorageError
	)
	return errors.As(err, &v) || errors.As(err, &n) || errors.As(err, &c) ||
		errors.As(err, &g) || errors.As(err, &s)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var n *NotFoundError
	return errors.As(err, &n)
}

// IsConflict reports whether err is a ConcurrencyConflictError.
func IsConflict(err error) bool {
	var c *ConcurrencyConflictError
	return errors.As(err, &c)
}

// IsConfiguration reports whether err is a ConfigurationError.
func IsConfiguration(err error) bool {
	var g *ConfigurationError
	return errors.As(err, &g)
}

// IsStorage reports whether err is a StorageError.
func IsStorage(err error) bool {
	var s *StorageError
	return errors.As(err, &s)
}

// IsRetryable reports whether the failed operation may be retried unchanged.
func IsRetryable(err error) bool {
	return IsConflict(err) || IsStorage(err)
}
