package domain

import "errors"

// Domain errors.
var (
	// ErrMediaNotFound is returned when a media record cannot be found.
	ErrMediaNotFound = errors.New("media record not found")

	// ErrNoLocalFile is returned when no local file can be resolved for a URL.
	ErrNoLocalFile = errors.New("no local file available")

	// ErrURLExpired is returned when a media URL has expired or been signed away.
	ErrURLExpired = errors.New("media URL has expired")

	// ErrRateLimited is returned when an external service rate-limits us.
	ErrRateLimited = errors.New("rate limited")

	// ErrDownloadFailed is returned when every download strategy was exhausted.
	ErrDownloadFailed = errors.New("media download failed")

	// ErrNotVideoContent is returned when a fetched payload is not usable video.
	ErrNotVideoContent = errors.New("response is not video content")

	// ErrUploadTimeout is returned when the remote file never reached a
	// terminal state within the poll budget.
	ErrUploadTimeout = errors.New("file store processing timed out")

	// ErrRemoteProcessing is returned when the remote file store reports
	// a failed state for an uploaded file.
	ErrRemoteProcessing = errors.New("file store processing failed")

	// ErrNoDetector is returned when no detector is registered for a media type.
	ErrNoDetector = errors.New("no detector for media type")

	// ErrInferenceTimeout is returned when a detector call exceeded its
	// timeout. Retryable; never crashes a batch.
	ErrInferenceTimeout = errors.New("detector inference timed out")

	// ErrInvalidMediaType is returned for an unrecognized media type.
	ErrInvalidMediaType = errors.New("invalid media type")
)

// MediaError wraps an error with media item context.
type MediaError struct {
	PostID string
	URL    string
	Op     string
	Err    error
}

func (e *MediaError) Error() string {
	if e.URL != "" {
		return e.Op + " [" + e.PostID + " " + e.URL + "]: " + e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *MediaError) Unwrap() error {
	return e.Err
}

// NewMediaError creates a new MediaError.
func NewMediaError(postID, url, op string, err error) *MediaError {
	return &MediaError{PostID: postID, URL: url, Op: op, Err: err}
}
