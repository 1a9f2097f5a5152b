// Package storage provides the key/value persistence backends used by the
// ledger: an in-memory map for tests, a directory of files and a SQLite
// table. Every value is an opaque byte blob.
package storage

import (
	"context"
	"errors"
)

// Well-known keys.
const (
	KeyLedger      = "ledger"
	KeyPIN         = "pin"
	KeySyncState   = "sync_state"
	KeyCloudShadow = "cloud_shadow"
)

var ErrNotFound = errors.New("key not found")

// Backend is a minimal durable key/value store.
type Backend interface {
	// Get returns ErrNotFound when the key has never been written.
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	// Delete is a no-op for missing keys.
	Delete(ctx context.Context, key string) error
}

// Closer is implemented by backends holding resources.
type Closer interface {
	Close() error
}
