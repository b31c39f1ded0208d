// Package sqlite implements the storage contract on a relational key
// table: one row per (namespace, key) with the record metadata in
// dedicated columns, plus a namespaces registry table.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/kupukupu/syncd/internal/domain"
	"github.com/kupukupu/syncd/internal/storage"
	"github.com/kupukupu/syncd/pkg/logger"
)

// Store implements storage.Store using SQLite.
type Store struct {
	db     *DB
	logger *logger.Logger
}

var _ storage.Store = (*Store)(nil)

// NewStore creates a SQLite-backed store.
func NewStore(db *DB, log *logger.Logger) *Store {
	return &Store{db: db, logger: log.WithComponent("sqlite-store")}
}

// Get returns the stored value for key, or nil when absent.
func (s *Store) Get(ctx context.Context, key, namespace string) (json.RawMessage, error) {
	rec, err := s.GetRecord(ctx, key, namespace)
	if err != nil || rec == nil {
		return nil, err
	}
	return rec.Value, nil
}

// GetRecord returns the stored record including metadata, or nil when
// absent.
func (s *Store) GetRecord(ctx context.Context, key, namespace string) (*storage.Record, error) {
	if err := storage.ValidateKey(key); err != nil {
		return nil, err
	}
	if err := storage.ValidateNamespace(namespace); err != nil {
		return nil, err
	}
	if err := s.ensureNamespace(ctx, namespace); err != nil {
		return nil, err
	}

	query := `
		SELECT value, version, created_at, updated_at, schema
		FROM kv
		WHERE namespace = ? AND key = ?
	`

	var (
		value  string
		rec    storage.Record
	)
	err := s.db.QueryRowContext(ctx, query, namespace, key).Scan(
		&value,
		&rec.Meta.Version,
		&rec.Meta.Created,
		&rec.Meta.Updated,
		&rec.Meta.Schema,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.NewStorageError("get", err)
	}

	rec.Value = json.RawMessage(value)
	return &rec, nil
}

// Set stores value under key. The upsert bumps the version and
// preserves created_at in a single statement, so the metadata
// read-modify-write is atomic per key.
func (s *Store) Set(ctx context.Context, key string, value interface{}, namespace string) error {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}
	if err := storage.ValidateNamespace(namespace); err != nil {
		return err
	}
	encoded, err := storage.EncodeValue(value)
	if err != nil {
		return err
	}
	if err := s.ensureNamespace(ctx, namespace); err != nil {
		return err
	}

	query := `
		INSERT INTO kv (namespace, key, value, version, created_at, updated_at, schema)
		VALUES (?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT(namespace, key) DO UPDATE SET
			value = excluded.value,
			version = kv.version + 1,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx, query, namespace, key, string(encoded), now, now, storage.SchemaVersion); err != nil {
		return domain.NewStorageError("set", err)
	}
	return nil
}

// Delete removes key. Removing a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key, namespace string) error {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}
	if err := storage.ValidateNamespace(namespace); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE namespace = ? AND key = ?`, namespace, key); err != nil {
		return domain.NewStorageError("delete", err)
	}
	return nil
}

// Clear removes every key in the namespace.
func (s *Store) Clear(ctx context.Context, namespace string) error {
	if err := storage.ValidateNamespace(namespace); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE namespace = ?`, namespace); err != nil {
		return domain.NewStorageError("clear", err)
	}
	return nil
}

// ListNamespaces returns the namespaces that have been touched.
func (s *Store) ListNamespaces(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM namespaces ORDER BY name`)
	if err != nil {
		return nil, domain.NewStorageError("list namespaces", err)
	}
	defer rows.Close()

	var namespaces []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, domain.NewStorageError("list namespaces", err)
		}
		namespaces = append(namespaces, name)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("list namespaces", err)
	}
	return namespaces, nil
}

// ListKeys returns the keys present in the namespace.
func (s *Store) ListKeys(ctx context.Context, namespace string) ([]string, error) {
	if err := storage.ValidateNamespace(namespace); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT key FROM kv WHERE namespace = ? ORDER BY key`, namespace)
	if err != nil {
		return nil, domain.NewStorageError("list keys", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, domain.NewStorageError("list keys", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("list keys", err)
	}
	return keys, nil
}

// Info reports database file usage from the page count. Soft-fails to
// the zero struct on any backend error.
func (s *Store) Info(ctx context.Context) storage.Info {
	var pageCount, pageSize int64
	if err := s.db.QueryRowContext(ctx, `PRAGMA page_count`).Scan(&pageCount); err != nil {
		s.logger.Warn("failed to read page count", "error", err)
		return storage.Info{}
	}
	if err := s.db.QueryRowContext(ctx, `PRAGMA page_size`).Scan(&pageSize); err != nil {
		s.logger.Warn("failed to read page size", "error", err)
		return storage.Info{}
	}
	return storage.Info{Used: pageCount * pageSize}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ensureNamespace lazily registers a namespace on first touch.
// INSERT OR IGNORE makes concurrent first-writes race-safe.
func (s *Store) ensureNamespace(ctx context.Context, namespace string) error {
	query := `INSERT OR IGNORE INTO namespaces (name, created_at) VALUES (?, ?)`
	if _, err := s.db.ExecContext(ctx, query, namespace, time.Now().UTC()); err != nil {
		return domain.NewStorageError("ensure namespace", err)
	}
	return nil
}
