// Package storage persists downloaded media blobs. The local filesystem
// backend is the default; an S3-compatible backend is available for
// deployments where analysis workers and downloaders do not share a disk.
package storage

import (
	"context"
	"fmt"
	"os"

	"github.com/colombo-hci/slopdetect/internal/domain"
)

// BlobStore abstracts where the canonical copy of downloaded media lives.
type BlobStore interface {
	// Persist stores the local file under key and returns the storage
	// path to record durably.
	Persist(ctx context.Context, localPath, key, contentType string) (string, error)

	// Materialize ensures the blob at storagePath is available as a
	// local file and returns its path.
	Materialize(ctx context.Context, storagePath string) (string, error)

	// Type identifies the backend for MediaRecord.StorageType.
	Type() domain.StorageType
}

// LocalStore keeps media where the downloaders wrote it. Persist is a
// no-op beyond validation since the local path already is the canonical
// location.
type LocalStore struct{}

// NewLocalStore creates a filesystem blob store.
func NewLocalStore() *LocalStore {
	return &LocalStore{}
}

// Persist validates that the file exists and returns its path unchanged.
func (s *LocalStore) Persist(_ context.Context, localPath, _, _ string) (string, error) {
	if _, err := os.Stat(localPath); err != nil {
		return "", fmt.Errorf("stat local blob: %w", err)
	}
	return localPath, nil
}

// Materialize checks the file still exists and returns it.
func (s *LocalStore) Materialize(_ context.Context, storagePath string) (string, error) {
	if _, err := os.Stat(storagePath); err != nil {
		return "", domain.ErrNoLocalFile
	}
	return storagePath, nil
}

// Type identifies this backend.
func (s *LocalStore) Type() domain.StorageType {
	return domain.StorageTypeLocal
}
