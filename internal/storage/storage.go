// Package storage defines the namespaced key/value contract the sync
// pipeline persists through. Two backends implement it: an indexed
// document store (badger) and a relational key table (sqlite), selected
// at construction time by configuration.
package storage

import (
	"context"
	"encoding/json"
	"regexp"
	"time"

	"github.com/kupukupu/syncd/internal/domain"
)

// DefaultNamespace is used when callers do not care about partitioning.
const DefaultNamespace = "default"

// SchemaVersion tags every record with the layout it was written under.
const SchemaVersion = "1"

const (
	maxKeyLen       = 255
	maxNamespaceLen = 50
)

var (
	keyPattern       = regexp.MustCompile(`^[a-zA-Z0-9-_]+$`)
	namespacePattern = regexp.MustCompile(`^[a-z0-9-]+$`)
)

// Meta is the per-record bookkeeping kept alongside every value.
// Version starts at 1 and increments on every overwrite of the same
// key; Created is immutable after the first write.
type Meta struct {
	Version int       `json:"version"`
	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`
	Schema  string    `json:"schema"`
}

// Record is a stored value plus its metadata.
type Record struct {
	Value json.RawMessage `json:"value"`
	Meta  Meta            `json:"metadata"`
}

// Info reports best-effort backend usage. A backend that cannot
// measure itself returns the zero struct rather than an error.
type Info struct {
	Used       int64   `json:"used"`
	Quota      int64   `json:"quota"`
	Percentage float64 `json:"percentage"`
}

// Store is the namespaced key/value contract. Namespaces are created
// lazily on first touch. Get returns a nil value for a missing key;
// Delete and Clear are idempotent.
type Store interface {
	// Get returns the stored value for key, or nil when absent.
	Get(ctx context.Context, key, namespace string) (json.RawMessage, error)

	// GetRecord returns the stored record including metadata, or nil
	// when absent.
	GetRecord(ctx context.Context, key, namespace string) (*Record, error)

	// Set stores value under key, creating metadata on first write and
	// bumping the version on overwrite. The value must be JSON
	// serializable; that is checked before any I/O.
	Set(ctx context.Context, key string, value interface{}, namespace string) error

	// Delete removes key. Removing a missing key is not an error.
	Delete(ctx context.Context, key, namespace string) error

	// Clear removes every key in the namespace.
	Clear(ctx context.Context, namespace string) error

	// ListNamespaces returns the namespaces that have been touched.
	ListNamespaces(ctx context.Context) ([]string, error)

	// ListKeys returns the keys present in the namespace.
	ListKeys(ctx context.Context, namespace string) ([]string, error)

	// Info reports storage usage. Soft-fails to the zero struct.
	Info(ctx context.Context) Info

	// Close releases the backend.
	Close() error
}

// ValidateKey checks the storage key format rules.
func ValidateKey(key string) error {
	if key == "" {
		return domain.NewValidationError("key", "must not be empty")
	}
	if len(key) > maxKeyLen {
		return domain.NewValidationError("key", "must be at most 255 characters")
	}
	if !keyPattern.MatchString(key) {
		return domain.NewValidationError("key", "must contain only letters, digits, dashes and underscores")
	}
	return nil
}

// ValidateNamespace checks the namespace format rules.
func ValidateNamespace(namespace string) error {
	if namespace == "" {
		return domain.NewValidationError("namespace", "must not be empty")
	}
	if len(namespace) > maxNamespaceLen {
		return domain.NewValidationError("namespace", "must be at most 50 characters")
	}
	if !namespacePattern.MatchString(namespace) {
		return domain.NewValidationError("namespace", "must contain only lowercase letters, digits and dashes")
	}
	return nil
}

// EncodeValue serializes a value for storage, rejecting anything that
// cannot round-trip through JSON (functions, cycles, channels).
func EncodeValue(value interface{}) (json.RawMessage, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, domain.NewValidationError("value", "must be JSON serializable: "+err.Error())
	}
	return data, nil
}

// NextMeta derives the metadata for a write: fresh metadata for a new
// key, or a version bump preserving Created for an overwrite.
func NextMeta(prev *Meta, now time.Time) Meta {
	if prev == nil {
		return Meta{Version: 1, Created: now, Updated: now, Schema: SchemaVersion}
	}
	return Meta{Version: prev.Version + 1, Created: prev.Created, Updated: now, Schema: prev.Schema}
}
