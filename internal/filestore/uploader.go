package filestore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/colombo-hci/slopdetect/internal/config"
	"github.com/colombo-hci/slopdetect/internal/domain"
	"github.com/colombo-hci/slopdetect/internal/repository"
)

// Uploader pushes local media files to the external file store and waits
// for them to become usable. Known content is never re-uploaded: the
// durable record's remote URI short-circuits the whole call, which is the
// dominant cost-avoidance invariant of the pipeline.
type Uploader struct {
	client Client
	repo   repository.MediaRepository
	cfg    config.FileStoreConfig
	logger *slog.Logger
}

// NewUploader creates an uploader.
func NewUploader(client Client, repo repository.MediaRepository, cfg config.FileStoreConfig, logger *slog.Logger) *Uploader {
	return &Uploader{
		client: client,
		repo:   repo,
		cfg:    cfg,
		logger: logger,
	}
}

// EnsureUploaded returns a stable remote URI for (postID, url). An empty
// URI with a non-nil error means the remote store failed or timed out;
// callers record the absence and carry on, the local copy stays usable.
func (u *Uploader) EnsureUploaded(ctx context.Context, postID, url, localPath, mimeType string, t domain.MediaType) (string, error) {
	// Step 1: never re-upload known content.
	if rec, err := u.repo.FindByPostAndURL(ctx, postID, url); err == nil && rec.RemoteURI != "" {
		u.logger.Debug("reusing remote uri",
			"post_id", postID,
			"url", url,
			"remote_uri", rec.RemoteURI,
		)
		return rec.RemoteURI, nil
	}

	// Step 2: submit the file.
	uploadCtx, cancel := context.WithTimeout(ctx, u.cfg.UploadTimeout)
	defer cancel()

	displayName := fmt.Sprintf("%s-%s-%s", postID, t, uuid.New().String()[:8])
	file, err := u.client.Upload(uploadCtx, localPath, mimeType, displayName)
	if err != nil {
		return "", domain.NewMediaError(postID, url, "upload", err)
	}

	// Step 3: poll until the remote file reaches a terminal state.
	return u.awaitActive(ctx, postID, url, file, t)
}

// awaitActive drives the upload polling state machine. Videos get a
// longer per-attempt wait and a larger attempt budget than images since
// remote processing time scales with file size and duration.
func (u *Uploader) awaitActive(ctx context.Context, postID, url string, file *File, t domain.MediaType) (string, error) {
	interval, attempts := u.pollBudget(t)

	current := file
	for attempt := 0; attempt < attempts; attempt++ {
		if current.State.Terminal() {
			break
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(interval):
		}

		refreshed, err := u.client.Get(ctx, current.Handle)
		if err != nil {
			u.logger.Warn("poll failed",
				"post_id", postID,
				"handle", current.Handle,
				"attempt", attempt+1,
				"error", err,
			)
			continue
		}
		current = refreshed
	}

	switch current.State {
	case StateActive:
		u.logger.Info("file active in remote store",
			"post_id", postID,
			"url", url,
			"remote_uri", current.URI,
		)
		return current.URI, nil
	case StateFailed:
		u.logger.Warn("remote processing failed",
			"post_id", postID,
			"url", url,
			"handle", current.Handle,
		)
		return "", domain.NewMediaError(postID, url, "remote processing", domain.ErrRemoteProcessing)
	default:
		u.logger.Warn("remote processing timed out",
			"post_id", postID,
			"url", url,
			"handle", current.Handle,
			"attempts", attempts,
		)
		return "", domain.NewMediaError(postID, url, "remote processing", domain.ErrUploadTimeout)
	}
}

func (u *Uploader) pollBudget(t domain.MediaType) (time.Duration, int) {
	if t == domain.MediaTypeVideo {
		return u.cfg.VideoPollInterval, u.cfg.VideoPollAttempts
	}
	return u.cfg.ImagePollInterval, u.cfg.ImagePollAttempts
}
