// Package contentstore keeps ciphertext in a content-addressed store and
// hands back the handle recorded in the ledger.
package contentstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get for an unknown handle.
var ErrNotFound = errors.New("content not found")

// Store is a content-addressed blob store.
type Store interface {
	// Put stores data and returns its content handle.
	Put(ctx context.Context, data []byte) (string, error)
	// Get returns the data stored under handle.
	Get(ctx context.Context, handle string) ([]byte, error)
}
