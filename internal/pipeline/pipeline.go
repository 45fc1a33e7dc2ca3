// Package pipeline orchestrates media acquisition for a post: dedup
// lookup, registry and repository short-circuits, download, upload, and
// the single durable commit per post.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/colombo-hci/slopdetect/internal/dedup"
	"github.com/colombo-hci/slopdetect/internal/domain"
	"github.com/colombo-hci/slopdetect/internal/downloader"
	"github.com/colombo-hci/slopdetect/internal/registry"
	"github.com/colombo-hci/slopdetect/internal/repository"
	"github.com/colombo-hci/slopdetect/internal/storage"
)

// Uploader pushes a local file to the external file store and returns a
// stable remote URI. Satisfied by filestore.Uploader.
type Uploader interface {
	EnsureUploaded(ctx context.Context, postID, url, localPath, mimeType string, t domain.MediaType) (string, error)
}

// MediaPipeline materializes local files and remote references for every
// media item of a post. Items are processed sequentially within a post to
// keep dedup and registry bookkeeping race-free; different posts may run
// concurrently.
type MediaPipeline struct {
	index       *dedup.Index
	registry    *registry.MediaRegistry
	repo        repository.MediaRepository
	blobs       storage.BlobStore
	uploader    Uploader
	downloaders map[domain.MediaType]downloader.Downloader
	logger      *slog.Logger
}

// New creates a media pipeline.
func New(
	index *dedup.Index,
	reg *registry.MediaRegistry,
	repo repository.MediaRepository,
	blobs storage.BlobStore,
	uploader Uploader,
	downloaders map[domain.MediaType]downloader.Downloader,
	logger *slog.Logger,
) *MediaPipeline {
	return &MediaPipeline{
		index:       index,
		registry:    reg,
		repo:        repo,
		blobs:       blobs,
		uploader:    uploader,
		downloaders: downloaders,
		logger:      logger,
	}
}

// Process acquires every media item for a post. One bad item never aborts
// the batch: failures are logged, the item is skipped, processing
// continues. Durable writes are staged into one transaction and committed
// once at the end; registry and filesystem state is updated per item so
// later calls in the same process short-circuit even before the commit.
func (p *MediaPipeline) Process(ctx context.Context, postID, postURL string, items []domain.MediaItem) error {
	if len(items) == 0 {
		return nil
	}

	existing, err := p.repo.FindByPost(ctx, postID)
	if err != nil {
		return fmt.Errorf("load existing records: %w", err)
	}

	urls := make([]string, len(items))
	for i, item := range items {
		urls[i] = item.URL
	}
	dupes := p.index.FindDuplicates(postID, urls, existing)

	batch, err := p.repo.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer batch.Rollback()

	pc := downloader.PostContext{PostURL: postURL}
	seen := make(map[string]seenBlob)
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.processItem(ctx, batch, postID, item, pc, dupes, seen)
	}

	if err := batch.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// seenBlob remembers where content already persisted earlier in the same
// batch lives, keyed by content hash.
type seenBlob struct {
	localPath   string
	storagePath string
}

func (p *MediaPipeline) processItem(
	ctx context.Context,
	batch repository.Batch,
	postID string,
	item domain.MediaItem,
	pc downloader.PostContext,
	dupes map[string]*domain.MediaRecord,
	seen map[string]seenBlob,
) {
	logger := p.logger.With("post_id", postID, "url", item.URL, "media_type", item.Type)
	key := domain.MediaKey(postID, item.URL)

	p.registry.Register(postID, item.URL, item.Type)

	rec := &domain.MediaRecord{
		ID:            domain.MediaRecordID(postID, item.URL, item.Type),
		PostID:        postID,
		MediaURL:      item.URL,
		Type:          item.Type,
		NormalizedURL: dedup.NormalizeURL(item.URL),
		StorageType:   p.blobs.Type(),
	}

	localPath, storagePath, contentHash := p.resolveDownloaded(ctx, postID, item, dupes, logger)
	rec.ContentHash = contentHash

	if localPath == "" && storagePath == "" {
		// Nothing cached anywhere: download now.
		dl, ok := p.downloaders[item.Type]
		if !ok {
			logger.Error("no downloader for media type")
			return
		}
		res, err := dl.Download(ctx, postID, item.URL, pc)
		if err != nil {
			// Skip the item, keep the batch alive.
			logger.Warn("download failed, skipping item", "error", err)
			return
		}
		rec.MimeType = res.MimeType
		rec.ContentHash = res.ContentHash

		// Byte-identical content already persisted earlier in this batch
		// is stored once; the later URL references the first file.
		if prior, ok := seen[res.ContentHash]; ok && res.ContentHash != "" {
			logger.Info("identical content within batch, reusing storage path",
				"storage_path", prior.storagePath,
			)
			if res.LocalPath != prior.localPath {
				os.Remove(res.LocalPath)
			}
			localPath = prior.localPath
			storagePath = prior.storagePath
		} else {
			localPath = res.LocalPath
			persisted, err := p.blobs.Persist(ctx, res.LocalPath, storageKey(postID, res.LocalPath), res.MimeType)
			if err != nil {
				logger.Warn("blob persist failed, keeping local copy", "error", err)
				persisted = res.LocalPath
				rec.StorageType = domain.StorageTypeLocal
			}
			storagePath = persisted
			if res.ContentHash != "" {
				seen[res.ContentHash] = seenBlob{localPath: localPath, storagePath: storagePath}
			}
		}
	}

	rec.StoragePath = storagePath
	if rec.MimeType == "" {
		rec.MimeType = mimeTypeFor(item.Type)
	}

	p.registry.Advance(key, domain.StageDownloaded, registry.Update{
		LocalPath:   localPath,
		StoragePath: storagePath,
		ContentHash: rec.ContentHash,
	})

	// Upload is best-effort: a missing remote URI is recorded, not fatal.
	uploadPath := localPath
	if uploadPath == "" {
		materialized, err := p.blobs.Materialize(ctx, storagePath)
		if err != nil {
			logger.Warn("cannot materialize blob for upload", "error", err)
		}
		uploadPath = materialized
	}
	if uploadPath != "" {
		uri, err := p.uploader.EnsureUploaded(ctx, postID, item.URL, uploadPath, rec.MimeType, item.Type)
		if err != nil {
			logger.Warn("upload did not produce a remote uri", "error", err)
		}
		rec.RemoteURI = uri
	}

	p.registry.Advance(key, domain.StageUploaded, registry.Update{
		RemoteURI: rec.RemoteURI,
	})

	if err := batch.Upsert(ctx, rec); err != nil {
		logger.Error("failed to stage media record", "error", err)
	}
}

// resolveDownloaded applies the short-circuit ladder: dedup mapping,
// registry stage, then durable record. Returns whatever local path,
// storage path, and content hash are already known; empty paths mean a
// download is needed. The hash rides along so dedup reuses stay matchable
// by content in later passes.
func (p *MediaPipeline) resolveDownloaded(
	ctx context.Context,
	postID string,
	item domain.MediaItem,
	dupes map[string]*domain.MediaRecord,
	logger *slog.Logger,
) (localPath, storagePath, contentHash string) {
	// 1. Duplicate of content this post already stores.
	if dup, ok := dupes[item.URL]; ok {
		logger.Info("duplicate content, reusing storage path", "storage_path", dup.StoragePath)
		return "", dup.StoragePath, dup.ContentHash
	}

	// 2. Already downloaded in this process.
	if p.registry.IsAtLeast(postID, item.URL, domain.StageDownloaded) {
		if rec, ok := p.registry.Get(postID, item.URL); ok {
			logger.Debug("registry short-circuit", "stage", rec.Stage.String())
			return rec.LocalPath, rec.StoragePath, rec.ContentHash
		}
	}

	// 3. Downloaded in a previous process lifetime.
	if rec, err := p.repo.FindByPostAndURL(ctx, postID, item.URL); err == nil && rec.StoragePath != "" {
		logger.Debug("repository short-circuit", "storage_path", rec.StoragePath)
		return "", rec.StoragePath, rec.ContentHash
	}

	return "", "", ""
}

// PruneStale removes durable records for media no longer referenced by
// the post.
func (p *MediaPipeline) PruneStale(ctx context.Context, postID string, validURLs []string) (int64, error) {
	return p.repo.DeleteStale(ctx, postID, validURLs)
}

func storageKey(postID, localPath string) string {
	return postID + "/" + filepath.Base(localPath)
}

func mimeTypeFor(t domain.MediaType) string {
	if t == domain.MediaTypeVideo {
		return "video/mp4"
	}
	return "image/jpeg"
}
