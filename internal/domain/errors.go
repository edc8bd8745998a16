// Package domain defines core types, interfaces, and errors for branch validation.
package domain

import (
	"fmt"
	"strings"
)

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ValidationError indicates invalid input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError indicates a resource already exists.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// UnknownCheckError indicates a check name with no registered query template.
type UnknownCheckError struct {
	Names []string
}

func (e *UnknownCheckError) Error() string {
	if len(e.Names) == 1 {
		return fmt.Sprintf("unknown check %q", e.Names[0])
	}
	return fmt.Sprintf("unknown checks: %s", strings.Join(e.Names, ", "))
}

// MissingParameterError indicates a template placeholder with no substitution value.
type MissingParameterError struct {
	Check string
	Key   string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("check %q: missing required parameter %q", e.Check, e.Key)
}

// CatalogLoadError indicates the check catalog could not be read or parsed.
type CatalogLoadError struct {
	Source string
	Err    error
}

func (e *CatalogLoadError) Error() string {
	return fmt.Sprintf("load check catalog %s: %v", e.Source, e.Err)
}

func (e *CatalogLoadError) Unwrap() error { return e.Err }

// EmptyCatalogError indicates the check catalog parsed to zero rows.
type EmptyCatalogError struct {
	Source string
}

func (e *EmptyCatalogError) Error() string {
	return fmt.Sprintf("check catalog %s has no rows", e.Source)
}

// InvalidDevBucketError indicates a bucket id that does not carry the branch token.
type InvalidDevBucketError struct {
	Bucket string
	Branch string
}

func (e *InvalidDevBucketError) Error() string {
	return fmt.Sprintf("bucket %q does not belong to branch %q", e.Bucket, e.Branch)
}

// FieldError indicates a malformed or missing catalog field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %s: %s", e.Field, e.Message)
}

// ConnectError indicates the warehouse connection could not be opened or closed.
// It is fatal to a run.
type ConnectError struct {
	Err error
}

func (e *ConnectError) Error() string { return fmt.Sprintf("warehouse connection: %v", e.Err) }

func (e *ConnectError) Unwrap() error { return e.Err }

// DiscoveryError indicates the branch's buckets could not be listed. It is fatal to a run.
type DiscoveryError struct {
	Branch string
	Err    error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discover buckets for branch %q: %v", e.Branch, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// ErrUnknownCheck creates an UnknownCheckError for one or more check names.
func ErrUnknownCheck(names ...string) *UnknownCheckError {
	return &UnknownCheckError{Names: names}
}

// ErrMissingParameter creates a MissingParameterError.
func ErrMissingParameter(check, key string) *MissingParameterError {
	return &MissingParameterError{Check: check, Key: key}
}

// ErrField creates a FieldError with a formatted message.
func ErrField(field, format string, args ...interface{}) *FieldError {
	return &FieldError{Field: field, Message: fmt.Sprintf(format, args...)}
}
