package data

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const (
	bucketRepositories = "repositories" // key: "list" -> []Repository JSON
	bucketExtensions   = "extensions"   // key: "list" -> []InstalledExtension JSON
	bucketDownloads    = "downloads"    // key: "queue" -> []DownloadJob JSON
	bucketState        = "state"        // generic string key -> raw JSON

	keyList  = "list"
	keyQueue = "queue"
)

// Store is the persistent key/value store backing every collection the core
// owns: added repositories, installed extensions and the download-queue
// snapshot. Each collection is a single JSON value mutated only through an
// Update* closure, so the read-modify-write cycle runs inside one bbolt
// transaction and concurrent call sites cannot interleave.
type Store struct {
	db *bbolt.DB
}

// OpenStore opens (or creates) the store file at path.
func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{bucketRepositories, bucketExtensions, bucketDownloads, bucketState} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the raw value stored under key, or ok=false if absent. An
// empty stored value is present, not absent.
func (s *Store) Get(key string) ([]byte, bool, error) {
	var (
		out   []byte
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket([]byte(bucketState)).Get([]byte(key)); v != nil {
			found = true
			out = append([]byte{}, v...)
		}
		return nil
	})
	return out, found, err
}

// Set stores value under key.
func (s *Store) Set(key string, value []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketState)).Put([]byte(key), value)
	})
}

// Remove deletes key. Removing an absent key is a no-op.
func (s *Store) Remove(key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketState)).Delete([]byte(key))
	})
}

// Repositories returns the persisted repository list.
func (s *Store) Repositories() ([]Repository, error) {
	var list []Repository
	err := s.viewList(bucketRepositories, keyList, &list)
	return list, err
}

// UpdateRepositories applies fn to the repository list and persists the
// result in one transaction. An error from fn aborts without writing.
func (s *Store) UpdateRepositories(fn func([]Repository) ([]Repository, error)) error {
	return updateList(s, bucketRepositories, keyList, fn)
}

// Extensions returns the installed extension list in install order.
func (s *Store) Extensions() ([]InstalledExtension, error) {
	var list []InstalledExtension
	err := s.viewList(bucketExtensions, keyList, &list)
	return list, err
}

// UpdateExtensions applies fn to the installed extension list and persists
// the result in one transaction. An error from fn aborts without writing.
func (s *Store) UpdateExtensions(fn func([]InstalledExtension) ([]InstalledExtension, error)) error {
	return updateList(s, bucketExtensions, keyList, fn)
}

// Queue returns the persisted download-queue snapshot.
func (s *Store) Queue() ([]DownloadJob, error) {
	var list []DownloadJob
	err := s.viewList(bucketDownloads, keyQueue, &list)
	return list, err
}

// UpdateQueue applies fn to the download-queue snapshot and persists the
// result in one transaction. An error from fn aborts without writing.
func (s *Store) UpdateQueue(fn func([]DownloadJob) ([]DownloadJob, error)) error {
	return updateList(s, bucketDownloads, keyQueue, fn)
}

func (s *Store) viewList(bucket, key string, out any) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(bucket)).Get([]byte(key))
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, out)
	})
}

func updateList[T any](s *Store, bucket, key string, fn func([]T) ([]T, error)) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))

		var list []T
		if v := b.Get([]byte(key)); v != nil {
			if err := json.Unmarshal(v, &list); err != nil {
				return fmt.Errorf("failed to decode %s: %w", bucket, err)
			}
		}

		next, err := fn(list)
		if err != nil {
			return err
		}

		encoded, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", bucket, err)
		}
		return b.Put([]byte(key), encoded)
	})
}
