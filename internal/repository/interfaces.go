// Package repository provides the durable store of media records, one
// row per (post, url), used to avoid re-downloading and re-uploading
// across process restarts.
package repository

import (
	"context"

	"github.com/colombo-hci/slopdetect/internal/domain"
)

// Batch is a transactional write session. Pipeline processing for one
// post stages all of its upserts in a single batch and commits once at
// the end, bounding transaction overhead.
type Batch interface {
	// Upsert stages a create-or-update for the record's deterministic ID.
	Upsert(ctx context.Context, rec *domain.MediaRecord) error

	// Commit applies every staged write atomically.
	Commit() error

	// Rollback discards the staged writes. Safe after Commit.
	Rollback() error
}

// MediaRepository reads and writes durable media records.
type MediaRepository interface {
	// Begin opens a write batch.
	Begin(ctx context.Context) (Batch, error)

	// Upsert writes a single record outside a batch.
	Upsert(ctx context.Context, rec *domain.MediaRecord) error

	// FindByPostAndURL returns the record for (postID, url), or
	// domain.ErrMediaNotFound.
	FindByPostAndURL(ctx context.Context, postID, url string) (*domain.MediaRecord, error)

	// FindByPost returns all records for a post.
	FindByPost(ctx context.Context, postID string) ([]*domain.MediaRecord, error)

	// DeleteStale removes a post's records whose media URL is not in
	// validURLs and returns the number deleted.
	DeleteStale(ctx context.Context, postID string, validURLs []string) (int64, error)

	// Close releases the underlying database handle.
	Close() error
}
