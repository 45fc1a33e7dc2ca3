// Package downloader fetches remote media bytes and persists them to the
// local media directory, one downloader per media type.
package downloader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/colombo-hci/slopdetect/internal/domain"
)

// Result holds what a download produced. An empty LocalPath with a nil
// error never happens; failed downloads return an error and the pipeline
// skips the item rather than aborting the batch.
type Result struct {
	LocalPath     string
	MimeType      string
	ContentHash   string
	NormalizedURL string
}

// PostContext carries post-level information a strategy may need beyond
// the media URL itself, e.g. the canonical post URL for extractor-based
// video fallback where the direct media URL has expired.
type PostContext struct {
	PostURL string
}

// Downloader fetches one media URL and persists the bytes locally.
type Downloader interface {
	// MediaType reports which modality this downloader handles.
	MediaType() domain.MediaType

	// Download fetches the media at rawURL for the given post. Expected
	// failures (unreachable URL, unsupported format, exhausted
	// strategies) surface as errors; callers skip the item.
	Download(ctx context.Context, postID, rawURL string, pc PostContext) (Result, error)
}

// mediaFilename builds a collision-resistant but debuggable filename:
// a URL-hash prefix ties the file back to its source, a short random
// component avoids collisions, and the original extension is kept on a
// best-effort basis.
func mediaFilename(rawURL, fallbackExt string) string {
	sum := sha256.Sum256([]byte(rawURL))
	prefix := hex.EncodeToString(sum[:6])

	ext := fallbackExt
	if u, err := url.Parse(rawURL); err == nil {
		if e := path.Ext(u.Path); e != "" && len(e) <= 5 {
			ext = e
		}
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	return fmt.Sprintf("%s_%s%s", prefix, uuid.New().String()[:8], ext)
}

// postMediaDir returns the per-post directory media files are written to.
func postMediaDir(basePath, postID string) string {
	return filepath.Join(basePath, postID)
}
