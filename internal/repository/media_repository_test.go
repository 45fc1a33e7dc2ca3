package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/colombo-hci/slopdetect/internal/domain"
)

func testRepo(t *testing.T) *SQLiteMediaRepository {
	t.Helper()
	repo, err := NewSQLiteMediaRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func record(postID, url string) *domain.MediaRecord {
	return &domain.MediaRecord{
		PostID:   postID,
		MediaURL: url,
		Type:     domain.MediaTypeImage,
	}
}

func TestUpsertAndFind(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	rec := record("p1", "https://example.com/a.jpg")
	rec.StoragePath = "/data/p1/a.jpg"
	rec.ContentHash = "hash1"
	if err := repo.Upsert(ctx, rec); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if rec.ID == "" {
		t.Error("upsert must assign an id")
	}

	got, err := repo.FindByPostAndURL(ctx, "p1", "https://example.com/a.jpg")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.StoragePath != "/data/p1/a.jpg" || got.ContentHash != "hash1" {
		t.Errorf("unexpected record: %+v", got)
	}
	if got.StorageType != domain.StorageTypeLocal {
		t.Errorf("storage type = %q, want local default", got.StorageType)
	}
}

func TestFindMissingRecord(t *testing.T) {
	repo := testRepo(t)

	_, err := repo.FindByPostAndURL(context.Background(), "p1", "https://example.com/none.jpg")
	if !errors.Is(err, domain.ErrMediaNotFound) {
		t.Errorf("err = %v, want ErrMediaNotFound", err)
	}
}

func TestUpsertNoDuplicateRows(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	url := "https://example.com/a.jpg"
	if err := repo.Upsert(ctx, record("p1", url)); err != nil {
		t.Fatal(err)
	}
	if err := repo.Upsert(ctx, record("p1", url)); err != nil {
		t.Fatal(err)
	}

	records, err := repo.FindByPost(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Errorf("got %d rows for one (post, url), want 1", len(records))
	}
}

func TestUpsertSamePlatformIDDifferentURL(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	// Two size variants of the same platform asset derive the same
	// deterministic id; the second write must merge, not error on the
	// primary key.
	small := record("p1", "https://pbs.twimg.com/media/GaBcDeFgHiJ123.jpg?name=small")
	small.StoragePath = "/data/p1/GaBcDeFgHiJ123.jpg"
	small.ContentHash = "hash1"
	if err := repo.Upsert(ctx, small); err != nil {
		t.Fatalf("first variant: %v", err)
	}

	large := record("p1", "https://pbs.twimg.com/media/GaBcDeFgHiJ123.jpg?name=large")
	large.RemoteURI = "files/xyz"
	if err := repo.Upsert(ctx, large); err != nil {
		t.Fatalf("second variant: %v", err)
	}
	if small.ID != large.ID {
		t.Fatalf("ids differ: %q vs %q", small.ID, large.ID)
	}

	records, err := repo.FindByPost(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d rows for one platform asset, want 1", len(records))
	}
	got := records[0]
	if got.StoragePath != "/data/p1/GaBcDeFgHiJ123.jpg" || got.ContentHash != "hash1" {
		t.Errorf("first variant's fields lost: %+v", got)
	}
	if got.RemoteURI != "files/xyz" {
		t.Errorf("second variant's remote uri not merged: %q", got.RemoteURI)
	}
	// First-seen URL variant stays on the row.
	if got.MediaURL != small.MediaURL {
		t.Errorf("media url = %q, want first variant", got.MediaURL)
	}
}

func TestUpsertNonEmptyFieldsWin(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	url := "https://example.com/a.jpg"
	first := record("p1", url)
	first.StoragePath = "/data/p1/a.jpg"
	first.ContentHash = "hash1"
	if err := repo.Upsert(ctx, first); err != nil {
		t.Fatal(err)
	}

	// A later pass that only learned the remote URI must not wipe the
	// storage path or hash.
	second := record("p1", url)
	second.RemoteURI = "files/abc123"
	if err := repo.Upsert(ctx, second); err != nil {
		t.Fatal(err)
	}

	got, err := repo.FindByPostAndURL(ctx, "p1", url)
	if err != nil {
		t.Fatal(err)
	}
	if got.StoragePath != "/data/p1/a.jpg" {
		t.Errorf("storage path wiped: %q", got.StoragePath)
	}
	if got.ContentHash != "hash1" {
		t.Errorf("content hash wiped: %q", got.ContentHash)
	}
	if got.RemoteURI != "files/abc123" {
		t.Errorf("remote uri not applied: %q", got.RemoteURI)
	}
}

func TestBatchCommit(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	batch, err := repo.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := batch.Upsert(ctx, record("p1", "u1")); err != nil {
		t.Fatal(err)
	}
	if err := batch.Upsert(ctx, record("p1", "u2")); err != nil {
		t.Fatal(err)
	}
	if err := batch.Commit(); err != nil {
		t.Fatal(err)
	}
	// Rollback after commit is a no-op, matching the deferred-rollback
	// usage pattern.
	if err := batch.Rollback(); err != nil {
		t.Errorf("rollback after commit: %v", err)
	}

	records, err := repo.FindByPost(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Errorf("got %d records, want 2", len(records))
	}
}

func TestBatchRollbackDiscards(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	batch, err := repo.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := batch.Upsert(ctx, record("p1", "u1")); err != nil {
		t.Fatal(err)
	}
	if err := batch.Rollback(); err != nil {
		t.Fatal(err)
	}

	records, err := repo.FindByPost(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Errorf("rolled-back records visible: %d", len(records))
	}
}

func TestDeleteStale(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	for _, u := range []string{"u1", "u2", "u3"} {
		if err := repo.Upsert(ctx, record("p1", u)); err != nil {
			t.Fatal(err)
		}
	}
	if err := repo.Upsert(ctx, record("p2", "u1")); err != nil {
		t.Fatal(err)
	}

	deleted, err := repo.DeleteStale(ctx, "p1", []string{"u1", "u3"})
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	records, _ := repo.FindByPost(ctx, "p1")
	if len(records) != 2 {
		t.Errorf("p1 records = %d, want 2", len(records))
	}

	// Other posts are untouched.
	if _, err := repo.FindByPostAndURL(ctx, "p2", "u1"); err != nil {
		t.Errorf("p2 record lost: %v", err)
	}
}

func TestDeleteStaleEmptyValidList(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	repo.Upsert(ctx, record("p1", "u1"))
	repo.Upsert(ctx, record("p1", "u2"))

	deleted, err := repo.DeleteStale(ctx, "p1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2 (empty valid list removes all)", deleted)
	}
}
