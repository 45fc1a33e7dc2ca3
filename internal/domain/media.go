package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"time"
)

// MediaType identifies the modality of a media item.
type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
)

// Valid reports whether the media type is one of the known modalities.
func (t MediaType) Valid() bool {
	return t == MediaTypeImage || t == MediaTypeVideo
}

// MediaItem is one media reference in a submitted post.
type MediaItem struct {
	URL  string
	Type MediaType
}

// Stage is a point in an item's processing lifecycle. Stages are ordered;
// for any key the observed sequence must be non-decreasing within a
// process lifetime.
type Stage int

const (
	StagePending Stage = iota
	StageDownloaded
	StageUploaded
	StageAnalyzed
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StagePending:
		return "pending"
	case StageDownloaded:
		return "downloaded"
	case StageUploaded:
		return "uploaded"
	case StageAnalyzed:
		return "analyzed"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// MediaKey uniquely identifies a media item within a post.
func MediaKey(postID, url string) string {
	return postID + ":" + url
}

// ProcessingRecord tracks the in-process state of one (post, url) pair.
// Held by the registry only; the durable source of truth across restarts
// is MediaRecord.
type ProcessingRecord struct {
	PostID      string
	MediaURL    string
	Type        MediaType
	Stage       Stage
	LocalPath   string
	StoragePath string
	RemoteURI   string
	ContentHash string
	Detection   string
	UpdatedAt   time.Time
}

// Key returns the registry key for this record.
func (r *ProcessingRecord) Key() string {
	return MediaKey(r.PostID, r.MediaURL)
}

// StorageType identifies which blob backend holds the persisted bytes.
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeS3    StorageType = "s3"
)

// MediaRecord is the durable row for one (post, url) pair. Records are
// upserted, never duplicated, keyed by the deterministic ID.
type MediaRecord struct {
	ID            string
	PostID        string
	MediaURL      string
	Type          MediaType
	StoragePath   string
	StorageType   StorageType
	MimeType      string
	ContentHash   string
	NormalizedURL string
	RemoteURI     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// platformMediaID matches platform-native media identifiers embedded in
// CDN URLs, e.g. https://pbs.twimg.com/media/GaBcDeFgHiJ123.jpg or
// .../amplify_video/1234567890123456789/vid/...
var platformMediaID = regexp.MustCompile(`/(?:media|amplify_video|ext_tw_video|tweet_video)/([A-Za-z0-9_-]{8,})`)

// MediaRecordID derives a deterministic identifier for a media record.
// A platform-native media ID extracted from the URL is preferred so that
// the same logical media reached through refreshed CDN URLs collapses to
// one row; otherwise a content-addressed hash of the key fields is used.
func MediaRecordID(postID, mediaURL string, t MediaType) string {
	if m := platformMediaID.FindStringSubmatch(mediaURL); m != nil {
		return fmt.Sprintf("med_%s_%s", postID, m[1])
	}
	sum := sha256.Sum256([]byte(postID + "|" + mediaURL + "|" + string(t)))
	return "med_" + hex.EncodeToString(sum[:16])
}
