package downloader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/colombo-hci/slopdetect/internal/config"
	"github.com/colombo-hci/slopdetect/internal/dedup"
	"github.com/colombo-hci/slopdetect/internal/domain"
)

// SyntheticVideoScheme marks URLs that refer to a video the external
// extractor already produced. The remainder of the URL is a path relative
// to the media base directory.
const SyntheticVideoScheme = "slop-video://"

// ResolveSyntheticURL maps a synthetic video URL to its known local path.
// Returns false when the URL does not use the synthetic scheme.
func ResolveSyntheticURL(basePath, rawURL string) (string, bool) {
	if !strings.HasPrefix(rawURL, SyntheticVideoScheme) {
		return "", false
	}
	rel := strings.TrimPrefix(rawURL, SyntheticVideoScheme)
	rel = filepath.Clean("/" + rel) // forbid traversal outside basePath
	return filepath.Join(basePath, rel), true
}

// VideoDownloader fetches a video through an ordered strategy chain:
// synthetic-URL resolution, direct HTTP fetch, then the external
// extractor driven by the post's canonical URL. Each strategy's failure
// falls through to the next.
type VideoDownloader struct {
	client       *http.Client
	streamClient *http.Client
	cfg          config.DownloadConfig
	basePath     string
	index        *dedup.Index
	logger       *slog.Logger
}

// NewVideoDownloader creates a video downloader.
func NewVideoDownloader(cfg config.DownloadConfig, basePath string, index *dedup.Index, logger *slog.Logger) *VideoDownloader {
	return &VideoDownloader{
		client: &http.Client{Timeout: cfg.Timeout},
		// Streaming transport has no overall timeout; large videos take
		// as long as they take, header latency is still bounded.
		streamClient: &http.Client{
			Transport: &http.Transport{ResponseHeaderTimeout: 30 * cfg.RetryDelay},
		},
		cfg:      cfg,
		basePath: basePath,
		index:    index,
		logger:   logger,
	}
}

// MediaType reports the modality this downloader handles.
func (d *VideoDownloader) MediaType() domain.MediaType {
	return domain.MediaTypeVideo
}

// Download resolves a local video file for rawURL, trying each strategy
// in order and returning the first success.
func (d *VideoDownloader) Download(ctx context.Context, postID, rawURL string, pc PostContext) (Result, error) {
	// Strategy a: the URL is a marker for an already-extracted file.
	if localPath, ok := ResolveSyntheticURL(d.basePath, rawURL); ok {
		if _, err := os.Stat(localPath); err == nil {
			return d.finish(postID, rawURL, localPath, "video/mp4")
		}
		d.logger.Warn("synthetic video path missing", "post_id", postID, "path", localPath)
		return Result{}, domain.NewMediaError(postID, rawURL, "resolve synthetic video", domain.ErrNoLocalFile)
	}

	// Strategy b: direct HTTP fetch of the media URL.
	res, directErr := d.downloadDirect(ctx, postID, rawURL)
	if directErr == nil {
		return res, nil
	}
	d.logger.Info("direct video fetch failed, falling back to extractor",
		"post_id", postID,
		"url", rawURL,
		"error", directErr,
	)

	// Strategy c: external extractor against the post's canonical URL.
	// Media CDN URLs expire; the post URL is the durable handle.
	if pc.PostURL != "" {
		res, extractErr := d.downloadWithExtractor(ctx, postID, rawURL, pc.PostURL)
		if extractErr == nil {
			return res, nil
		}
		d.logger.Warn("extractor fallback failed",
			"post_id", postID,
			"post_url", pc.PostURL,
			"error", extractErr,
		)
	}

	return Result{}, domain.NewMediaError(postID, rawURL, "download video", domain.ErrDownloadFailed)
}

func (d *VideoDownloader) downloadDirect(ctx context.Context, postID, rawURL string) (Result, error) {
	localPath, err := Retry(ctx, Backoff{
		MaxAttempts:  d.cfg.MaxAttempts,
		InitialDelay: d.cfg.RetryDelay,
		MaxDelay:     d.cfg.MaxRetryDelay,
		Factor:       2.0,
	}, func() (string, error) {
		return d.fetchOnce(ctx, postID, rawURL)
	}, retryableFetchError)
	if err != nil {
		return Result{}, err
	}
	return d.finish(postID, rawURL, localPath, "video/mp4")
}

func (d *VideoDownloader) fetchOnce(ctx context.Context, postID, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	// Browser-like header set; bare clients get rejected by media CDNs.
	req.Header.Set("User-Agent", d.cfg.UserAgent)
	req.Header.Set("Accept", "video/mp4,video/*;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Range", "bytes=0-")

	resp, err := d.streamClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusPartialContent:
	case http.StatusForbidden, http.StatusUnauthorized:
		return "", domain.ErrURLExpired
	case http.StatusTooManyRequests:
		return "", domain.ErrRateLimited
	default:
		return "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.HasPrefix(ct, "video/") && ct != "application/octet-stream" {
		return "", fmt.Errorf("%w: content-type %q", domain.ErrNotVideoContent, ct)
	}

	dir := postMediaDir(d.basePath, postID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}
	localPath := filepath.Join(dir, mediaFilename(rawURL, ".mp4"))

	tmp := localPath + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}

	written, err := io.Copy(f, resp.Body)
	f.Close()
	if err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("write video: %w", err)
	}

	// A trivially small payload is an error page or stub, not a video.
	if written < d.cfg.MinVideoBytes {
		os.Remove(tmp)
		return "", fmt.Errorf("%w: only %d bytes", domain.ErrNotVideoContent, written)
	}

	if err := os.Rename(tmp, localPath); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("move video: %w", err)
	}

	return localPath, nil
}

// downloadWithExtractor shells out to the configured extractor tool
// (yt-dlp by default) with bounded retry.
func (d *VideoDownloader) downloadWithExtractor(ctx context.Context, postID, rawURL, postURL string) (Result, error) {
	dir := postMediaDir(d.basePath, postID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Result{}, fmt.Errorf("create media dir: %w", err)
	}
	target := filepath.Join(dir, mediaFilename(rawURL, ".mp4"))

	localPath, err := Retry(ctx, Backoff{
		MaxAttempts:  d.cfg.MaxAttempts,
		InitialDelay: d.cfg.RetryDelay,
		MaxDelay:     d.cfg.MaxRetryDelay,
		Factor:       2.0,
	}, func() (string, error) {
		execCtx, cancel := context.WithTimeout(ctx, d.cfg.ExtractorTimeout)
		defer cancel()

		cmd := exec.CommandContext(execCtx, d.cfg.ExtractorPath,
			"--no-playlist",
			"-f", "mp4/bestvideo+bestaudio/best",
			"-o", target,
			postURL,
		)
		if out, err := cmd.CombinedOutput(); err != nil {
			return "", fmt.Errorf("extractor: %w: %s", err, truncate(string(out), 300))
		}
		if _, err := os.Stat(target); err != nil {
			return "", fmt.Errorf("extractor produced no file: %w", err)
		}
		return target, nil
	}, nil)
	if err != nil {
		return Result{}, err
	}

	return d.finish(postID, rawURL, localPath, "video/mp4")
}

// finish hashes the persisted file and assembles the result.
func (d *VideoDownloader) finish(postID, rawURL, localPath, mimeType string) (Result, error) {
	norm := dedup.NormalizeURL(rawURL)

	hash, err := hashFileStream(localPath)
	if err != nil {
		return Result{}, domain.NewMediaError(postID, rawURL, "hash video", err)
	}
	d.index.RememberHash(norm, hash)

	d.logger.Debug("video available locally",
		"post_id", postID,
		"url", rawURL,
		"local_path", localPath,
	)

	return Result{
		LocalPath:     localPath,
		MimeType:      mimeType,
		ContentHash:   hash,
		NormalizedURL: norm,
	}, nil
}

// hashFileStream computes the SHA-256 digest of a file without loading it
// into memory; videos can be gigabytes.
func hashFileStream(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
