package contentstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

const keyPrefix = "content:"

// LevelDBStore is a local content-addressed store for single-node
// deployments. Handles are "sha256-<hex>" of the stored bytes, so storing the
// same ciphertext twice yields the same handle.
type LevelDBStore struct {
	db *leveldb.DB
}

// OpenLevelDB opens (or creates) a store at path.
func OpenLevelDB(path string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	return &LevelDBStore{db: db}, nil
}

// NewMemoryLevelDB returns a store backed by in-memory LevelDB storage.
func NewMemoryLevelDB() (*LevelDBStore, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &LevelDBStore{db: db}, nil
}

// Handle returns the content handle for data.
func Handle(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256-" + hex.EncodeToString(sum[:])
}

// Put implements Store.
func (s *LevelDBStore) Put(_ context.Context, data []byte) (string, error) {
	h := Handle(data)
	if err := s.db.Put([]byte(keyPrefix+h), data, nil); err != nil {
		return "", fmt.Errorf("leveldb put: %w", err)
	}
	return h, nil
}

// Get implements Store.
func (s *LevelDBStore) Get(_ context.Context, handle string) ([]byte, error) {
	data, err := s.db.Get([]byte(keyPrefix+handle), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("leveldb get: %w", err)
	}
	return data, nil
}

// Probe reports whether the database is usable.
func (s *LevelDBStore) Probe(context.Context) error {
	_, err := s.db.GetProperty("leveldb.stats")
	return err
}

// Close releases the database.
func (s *LevelDBStore) Close() error {
	return s.db.Close()
}
