// Package badger implements the storage contract on BadgerDB. Records
// are JSON documents under "ns/<namespace>/<key>", with touched
// namespaces registered under "namespace/<name>".
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/kupukupu/syncd/internal/domain"
	"github.com/kupukupu/syncd/internal/storage"
	"github.com/kupukupu/syncd/pkg/logger"
)

const (
	dataPrefix      = "ns/"
	namespacePrefix = "namespace/"
)

// Store implements storage.Store using BadgerDB.
type Store struct {
	db     *DB
	logger *logger.Logger
}

var _ storage.Store = (*Store)(nil)

// NewStore creates a BadgerDB-backed store.
func NewStore(db *DB, log *logger.Logger) *Store {
	return &Store{db: db, logger: log.WithComponent("badger-store")}
}

func dataKey(namespace, key string) []byte {
	return []byte(dataPrefix + namespace + "/" + key)
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
	if err := s.ensureNamespace(namespace); err != nil {
		return nil, err
	}

	var rec *storage.Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(dataKey(namespace, key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		return item.Value(func(val []byte) error {
			var r storage.Record
			if err := json.Unmarshal(val, &r); err != nil {
				return err
			}
			rec = &r
			return nil
		})
	})
	if err != nil {
		return nil, domain.NewStorageError("get", err)
	}
	return rec, nil
}

// Set stores value under key, creating or bumping the record metadata.
// The read-modify-write of the metadata happens inside a single badger
// transaction, so it is atomic per key.
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
	if err := s.ensureNamespace(namespace); err != nil {
		return err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		var prev *storage.Meta
		item, err := txn.Get(dataKey(namespace, key))
		if err == nil {
			var existing storage.Record
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &existing)
			}); err != nil {
				return err
			}
			prev = &existing.Meta
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		rec := storage.Record{
			Value: encoded,
			Meta:  storage.NextMeta(prev, time.Now().UTC()),
		}
		data, err := json.Marshal(&rec)
		if err != nil {
			return err
		}
		return txn.Set(dataKey(namespace, key), data)
	})
	if err != nil {
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

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(dataKey(namespace, key))
	})
	if err != nil {
		return domain.NewStorageError("delete", err)
	}
	return nil
}

// Clear removes every key in the namespace.
func (s *Store) Clear(ctx context.Context, namespace string) error {
	if err := storage.ValidateNamespace(namespace); err != nil {
		return err
	}

	prefix := []byte(dataPrefix + namespace + "/")
	err := s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)

		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.NewStorageError("clear", err)
	}
	return nil
}

// ListNamespaces returns the namespaces that have been touched.
func (s *Store) ListNamespaces(ctx context.Context) ([]string, error) {
	var namespaces []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(namespacePrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			namespaces = append(namespaces, strings.TrimPrefix(string(it.Item().Key()), namespacePrefix))
		}
		return nil
	})
	if err != nil {
		return nil, domain.NewStorageError("list namespaces", err)
	}
	return namespaces, nil
}

// ListKeys returns the keys present in the namespace.
func (s *Store) ListKeys(ctx context.Context, namespace string) ([]string, error) {
	if err := storage.ValidateNamespace(namespace); err != nil {
		return nil, err
	}

	prefix := dataPrefix + namespace + "/"
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			keys = append(keys, strings.TrimPrefix(string(it.Item().Key()), prefix))
		}
		return nil
	})
	if err != nil {
		return nil, domain.NewStorageError("list keys", err)
	}
	return keys, nil
}

// Info reports LSM plus value-log size. Badger has no quota concept,
// so Quota and Percentage stay zero.
func (s *Store) Info(ctx context.Context) storage.Info {
	lsm, vlog := s.db.Size()
	return storage.Info{Used: lsm + vlog}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ensureNamespace lazily registers a namespace on first touch. Two
// concurrent first-writes both land on the same registration key, so
// last-writer-wins is safe.
func (s *Store) ensureNamespace(namespace string) error {
	regKey := []byte(namespacePrefix + namespace)

	var exists bool
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(regKey)
		if err == nil {
			exists = true
			return nil
		}
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return domain.NewStorageError("ensure namespace", err)
	}
	if exists {
		return nil
	}

	s.logger.Debug("registering namespace", "namespace", namespace)
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(regKey, []byte(fmt.Sprintf("%d", time.Now().UTC().UnixNano())))
	})
	if err != nil {
		return domain.NewStorageError("ensure namespace", err)
	}
	return nil
}
