package domain

import (
	"errors"
	"fmt"
)

// ValidationError reports a malformed storage key, namespace, or value.
// It indicates a caller bug and is never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s - %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// StorageError wraps a storage backend failure. The storage layer
// surfaces these to the caller and never retries them itself.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError wraps a backend failure for the given operation.
func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

// FetchError reports a network or HTTP failure while retrieving a feed.
// The scheduler retries these up to its policy limit.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ParseError reports malformed feed XML. Treated identically to
// FetchError for retry purposes, since a transient server glitch can
// produce garbage XML.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse feed: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

var (
	// Feed errors
	ErrFeedNotFound = errors.New("feed not found")
	ErrInvalidFeed  = errors.New("invalid feed")

	// Item errors
	ErrItemNotFound = errors.New("item not found")

	// Storage errors
	ErrKeyNotFound = errors.New("key not found")
)
