package cache

import (
	"errors"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"
	apperrors "github.com/vodhub/vodhub/internal/errors"
)

// ErrMiss is returned when a key is absent or its TTL elapsed
var ErrMiss = errors.New("cache miss")

// Store is a TTL blob cache backed by BadgerDB. Expiry is enforced by the
// store itself; callers never see stale entries.
type Store struct {
	db *badger.DB
}

// Open creates a cache store under dir. The directory is created on demand.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(filepath.Join(dir, "cache"))
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to open cache store")
	}
	return &Store{db: db}, nil
}

// OpenInMemory creates a cache store without a backing directory, for tests
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to open cache store")
	}
	return &Store{db: db}, nil
}

// Get returns the cached blob for key, or ErrMiss
func (s *Store) Get(key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "cache read failed")
	}
	return value, nil
}

// Set stores a blob under key with the given TTL. A non-positive TTL skips
// caching entirely.
func (s *Store) Set(key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), value).WithTTL(ttl)
		return txn.SetEntry(e)
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "cache write failed")
	}
	return nil
}

// Delete drops one key
func (s *Store) Delete(key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return apperrors.Wrap(err, apperrors.CodeInternal, "cache delete failed")
	}
	return nil
}

// Close releases the underlying store
func (s *Store) Close() error {
	return s.db.Close()
}
