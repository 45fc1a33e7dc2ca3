package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/colombo-hci/slopdetect/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS media_records (
	id             TEXT PRIMARY KEY,
	post_id        TEXT NOT NULL,
	media_url      TEXT NOT NULL,
	media_type     TEXT NOT NULL,
	storage_path   TEXT NOT NULL DEFAULT '',
	storage_type   TEXT NOT NULL DEFAULT 'local',
	mime_type      TEXT NOT NULL DEFAULT '',
	content_hash   TEXT NOT NULL DEFAULT '',
	normalized_url TEXT NOT NULL DEFAULT '',
	remote_uri     TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMP NOT NULL,
	updated_at     TIMESTAMP NOT NULL,
	UNIQUE (post_id, media_url)
);
CREATE INDEX IF NOT EXISTS idx_media_records_post ON media_records (post_id);
CREATE INDEX IF NOT EXISTS idx_media_records_hash ON media_records (content_hash);
`

// The row can collide on either unique constraint: the deterministic id
// (the same platform media asset reached through two URL variants) or
// (post_id, media_url) on a plain re-upsert. Both collapse into the same
// merge; the stored media_url stays at its first-seen variant so the two
// constraints never fight each other.
const upsertSQL = `
INSERT INTO media_records
	(id, post_id, media_url, media_type, storage_path, storage_type,
	 mime_type, content_hash, normalized_url, remote_uri, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	storage_path   = CASE WHEN excluded.storage_path   != '' THEN excluded.storage_path   ELSE media_records.storage_path   END,
	storage_type   = excluded.storage_type,
	mime_type      = CASE WHEN excluded.mime_type      != '' THEN excluded.mime_type      ELSE media_records.mime_type      END,
	content_hash   = CASE WHEN excluded.content_hash   != '' THEN excluded.content_hash   ELSE media_records.content_hash   END,
	normalized_url = CASE WHEN excluded.normalized_url != '' THEN excluded.normalized_url ELSE media_records.normalized_url END,
	remote_uri     = CASE WHEN excluded.remote_uri     != '' THEN excluded.remote_uri     ELSE media_records.remote_uri     END,
	updated_at     = excluded.updated_at
ON CONFLICT (post_id, media_url) DO UPDATE SET
	storage_path   = CASE WHEN excluded.storage_path   != '' THEN excluded.storage_path   ELSE media_records.storage_path   END,
	storage_type   = excluded.storage_type,
	mime_type      = CASE WHEN excluded.mime_type      != '' THEN excluded.mime_type      ELSE media_records.mime_type      END,
	content_hash   = CASE WHEN excluded.content_hash   != '' THEN excluded.content_hash   ELSE media_records.content_hash   END,
	normalized_url = CASE WHEN excluded.normalized_url != '' THEN excluded.normalized_url ELSE media_records.normalized_url END,
	remote_uri     = CASE WHEN excluded.remote_uri     != '' THEN excluded.remote_uri     ELSE media_records.remote_uri     END,
	updated_at     = excluded.updated_at
`

// SQLiteMediaRepository implements MediaRepository on SQLite.
type SQLiteMediaRepository struct {
	db *sql.DB
}

// NewSQLiteMediaRepository opens (creating if needed) the database at
// path and ensures the schema exists.
func NewSQLiteMediaRepository(path string) (*SQLiteMediaRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite allows one writer; serializing through a single connection
	// avoids SQLITE_BUSY under concurrent post processing.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteMediaRepository{db: db}, nil
}

// Close releases the database handle.
func (r *SQLiteMediaRepository) Close() error {
	return r.db.Close()
}

// Begin opens a write batch backed by a transaction.
func (r *SQLiteMediaRepository) Begin(ctx context.Context) (Batch, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &sqliteBatch{tx: tx}, nil
}

// Upsert writes a single record in its own transaction.
func (r *SQLiteMediaRepository) Upsert(ctx context.Context, rec *domain.MediaRecord) error {
	return execUpsert(ctx, r.db, rec)
}

// FindByPostAndURL returns the record for (postID, url).
func (r *SQLiteMediaRepository) FindByPostAndURL(ctx context.Context, postID, url string) (*domain.MediaRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, post_id, media_url, media_type, storage_path, storage_type,
		        mime_type, content_hash, normalized_url, remote_uri, created_at, updated_at
		 FROM media_records WHERE post_id = ? AND media_url = ?`,
		postID, url,
	)
	return scanRecord(row)
}

// FindByPost returns all records for a post.
func (r *SQLiteMediaRepository) FindByPost(ctx context.Context, postID string) ([]*domain.MediaRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, post_id, media_url, media_type, storage_path, storage_type,
		        mime_type, content_hash, normalized_url, remote_uri, created_at, updated_at
		 FROM media_records WHERE post_id = ? ORDER BY created_at`,
		postID,
	)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []*domain.MediaRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// DeleteStale removes a post's records whose URL is not in validURLs.
func (r *SQLiteMediaRepository) DeleteStale(ctx context.Context, postID string, validURLs []string) (int64, error) {
	query := "DELETE FROM media_records WHERE post_id = ?"
	args := []any{postID}

	if len(validURLs) > 0 {
		query += " AND media_url NOT IN (?" + strings.Repeat(",?", len(validURLs)-1) + ")"
		for _, u := range validURLs {
			args = append(args, u)
		}
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete stale records: %w", err)
	}
	return res.RowsAffected()
}

type sqliteBatch struct {
	tx   *sql.Tx
	done bool
}

func (b *sqliteBatch) Upsert(ctx context.Context, rec *domain.MediaRecord) error {
	return execUpsert(ctx, b.tx, rec)
}

func (b *sqliteBatch) Commit() error {
	b.done = true
	return b.tx.Commit()
}

func (b *sqliteBatch) Rollback() error {
	if b.done {
		return nil
	}
	return b.tx.Rollback()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func execUpsert(ctx context.Context, ex execer, rec *domain.MediaRecord) error {
	now := time.Now().UTC()
	if rec.ID == "" {
		rec.ID = domain.MediaRecordID(rec.PostID, rec.MediaURL, rec.Type)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if rec.StorageType == "" {
		rec.StorageType = domain.StorageTypeLocal
	}

	_, err := ex.ExecContext(ctx, upsertSQL,
		rec.ID, rec.PostID, rec.MediaURL, string(rec.Type),
		rec.StoragePath, string(rec.StorageType), rec.MimeType,
		rec.ContentHash, rec.NormalizedURL, rec.RemoteURI,
		rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert media record: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.MediaRecord, error) {
	var rec domain.MediaRecord
	var mediaType, storageType string

	err := row.Scan(
		&rec.ID, &rec.PostID, &rec.MediaURL, &mediaType,
		&rec.StoragePath, &storageType, &rec.MimeType,
		&rec.ContentHash, &rec.NormalizedURL, &rec.RemoteURI,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrMediaNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan media record: %w", err)
	}

	rec.Type = domain.MediaType(mediaType)
	rec.StorageType = domain.StorageType(storageType)
	return &rec, nil
}
