// Package backend builds the storage backend and cloud sync uploader
// selected by configuration.
package backend

import (
	"context"

	"pocketledger/internal/cloudsync"
	"pocketledger/internal/storage"
)

// CleanupFunc releases resources held by a created component.
type CleanupFunc func() error

// BackendResult contains the backend instance and optional cleanup function
type BackendResult struct {
	Backend storage.Backend
	Cleanup CleanupFunc
}

// UploaderResult contains the sync uploader and optional cleanup function
type UploaderResult struct {
	Uploader cloudsync.Uploader
	Cleanup  CleanupFunc
}

// Factory creates backends and uploaders based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
	CreateUploader(ctx context.Context, config SyncConfig) (*UploaderResult, error)
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend BackendType = "memory"
	FileBackend   BackendType = "file"
	SQLiteBackend BackendType = "sqlite"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, FileBackend, SQLiteBackend:
		return true
	default:
		return false
	}
}

// Close runs the cleanup if there is one.
func (r *BackendResult) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

func (r *UploaderResult) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}
