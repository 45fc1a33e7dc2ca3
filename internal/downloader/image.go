package downloader

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/colombo-hci/slopdetect/internal/config"
	"github.com/colombo-hci/slopdetect/internal/dedup"
	"github.com/colombo-hci/slopdetect/internal/domain"
)

// jpegQuality is the re-encode quality for canonicalized images.
const jpegQuality = 90

// ImageDownloader fetches an image, canonicalizes it to bounded-size RGB
// JPEG, and writes it to the per-post media directory.
type ImageDownloader struct {
	client   *http.Client
	cfg      config.DownloadConfig
	basePath string
	index    *dedup.Index
	logger   *slog.Logger
}

// NewImageDownloader creates an image downloader.
func NewImageDownloader(cfg config.DownloadConfig, basePath string, index *dedup.Index, logger *slog.Logger) *ImageDownloader {
	return &ImageDownloader{
		client:   &http.Client{Timeout: cfg.Timeout},
		cfg:      cfg,
		basePath: basePath,
		index:    index,
		logger:   logger,
	}
}

// MediaType reports the modality this downloader handles.
func (d *ImageDownloader) MediaType() domain.MediaType {
	return domain.MediaTypeImage
}

// Download fetches and canonicalizes one image. The content hash is
// computed over the final encoded bytes so that byte-identical sources
// reached via different URLs hash identically after canonicalization.
func (d *ImageDownloader) Download(ctx context.Context, postID, rawURL string, _ PostContext) (Result, error) {
	raw, err := Retry(ctx, d.backoff(), func() ([]byte, error) {
		return d.fetch(ctx, rawURL)
	}, retryableFetchError)
	if err != nil {
		return Result{}, domain.NewMediaError(postID, rawURL, "download image", err)
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return Result{}, domain.NewMediaError(postID, rawURL, "decode image", err)
	}

	encoded, err := d.canonicalize(img)
	if err != nil {
		return Result{}, domain.NewMediaError(postID, rawURL, "encode image", err)
	}

	dir := postMediaDir(d.basePath, postID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Result{}, domain.NewMediaError(postID, rawURL, "create media dir", err)
	}

	localPath := filepath.Join(dir, mediaFilename(rawURL, ".jpg"))
	// Canonical form is always JPEG regardless of the source extension.
	localPath = localPath[:len(localPath)-len(filepath.Ext(localPath))] + ".jpg"
	if err := os.WriteFile(localPath, encoded, 0644); err != nil {
		return Result{}, domain.NewMediaError(postID, rawURL, "write image", err)
	}

	norm := dedup.NormalizeURL(rawURL)
	hash := dedup.Hash(encoded)
	d.index.RememberHash(norm, hash)

	d.logger.Debug("image downloaded",
		"post_id", postID,
		"url", rawURL,
		"local_path", localPath,
		"bytes", len(encoded),
	)

	return Result{
		LocalPath:     localPath,
		MimeType:      "image/jpeg",
		ContentHash:   hash,
		NormalizedURL: norm,
	}, nil
}

func (d *ImageDownloader) backoff() Backoff {
	return Backoff{
		MaxAttempts:  d.cfg.MaxAttempts,
		InitialDelay: d.cfg.RetryDelay,
		MaxDelay:     d.cfg.MaxRetryDelay,
		Factor:       2.0,
	}
}

func (d *ImageDownloader) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", d.cfg.UserAgent)
	req.Header.Set("Accept", "image/avif,image/webp,image/*;q=0.9,*/*;q=0.8")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusForbidden, http.StatusUnauthorized:
		return nil, domain.ErrURLExpired
	case http.StatusTooManyRequests:
		return nil, domain.ErrRateLimited
	default:
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	limited := http.MaxBytesReader(nil, resp.Body, d.cfg.MaxImageBytes)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return data, nil
}

// canonicalize converts to RGB, downscales if either dimension exceeds
// the configured maximum (preserving aspect ratio), and re-encodes JPEG.
func (d *ImageDownloader) canonicalize(img image.Image) ([]byte, error) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	maxDim := d.cfg.MaxImageDimension
	if maxDim > 0 && (w > maxDim || h > maxDim) {
		scale := float64(maxDim) / float64(w)
		if h > w {
			scale = float64(maxDim) / float64(h)
		}
		w = int(float64(w) * scale)
		h = int(float64(h) * scale)
		if w < 1 {
			w = 1
		}
		if h < 1 {
			h = 1
		}
	}

	// Composite over white so transparency does not survive into the
	// RGB canonical form.
	rgb := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(rgb, rgb.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(rgb, rgb.Bounds(), img, img.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, rgb, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
