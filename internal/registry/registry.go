// Package registry holds the process-wide map of in-flight media items.
// It exists to avoid redundant work within one process lifetime; the
// durable media repository is the source of truth across restarts.
package registry

import (
	"sync"
	"time"

	"github.com/colombo-hci/slopdetect/internal/domain"
)

// Update carries optional fields merged into a record on Advance. Empty
// strings leave the existing value untouched.
type Update struct {
	LocalPath   string
	StoragePath string
	RemoteURI   string
	ContentHash string
	Detection   string
}

// Stats summarizes the registry contents for observability.
type Stats struct {
	Total   int            `json:"total"`
	ByStage map[string]int `json:"by_stage"`
}

// MediaRegistry is a concurrency-safe map from (postID, url) to the
// item's processing record. Stage transitions must be non-decreasing;
// the registry records whatever stage it is given and relies on the
// pipeline to only ever advance.
type MediaRegistry struct {
	mu      sync.RWMutex
	records map[string]*domain.ProcessingRecord
}

// New creates an empty media registry.
func New() *MediaRegistry {
	return &MediaRegistry{
		records: make(map[string]*domain.ProcessingRecord),
	}
}

// Register inserts a pending record for (postID, url) if absent.
// Idempotent: an existing record is never re-created or reset.
func (r *MediaRegistry) Register(postID, url string, t domain.MediaType) {
	key := domain.MediaKey(postID, url)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[key]; ok {
		return
	}
	r.records[key] = &domain.ProcessingRecord{
		PostID:    postID,
		MediaURL:  url,
		Type:      t,
		Stage:     domain.StagePending,
		UpdatedAt: time.Now(),
	}
}

// Advance sets the record's stage and merges the supplied fields. The
// caller must only pass a stage >= the current one.
func (r *MediaRegistry) Advance(key string, stage domain.Stage, upd Update) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[key]
	if !ok {
		return
	}

	rec.Stage = stage
	rec.UpdatedAt = time.Now()
	if upd.LocalPath != "" {
		rec.LocalPath = upd.LocalPath
	}
	if upd.StoragePath != "" {
		rec.StoragePath = upd.StoragePath
	}
	if upd.RemoteURI != "" {
		rec.RemoteURI = upd.RemoteURI
	}
	if upd.ContentHash != "" {
		rec.ContentHash = upd.ContentHash
	}
	if upd.Detection != "" {
		rec.Detection = upd.Detection
	}
}

// Get returns a copy of the record for (postID, url), if present.
func (r *MediaRegistry) Get(postID, url string) (domain.ProcessingRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[domain.MediaKey(postID, url)]
	if !ok {
		return domain.ProcessingRecord{}, false
	}
	return *rec, true
}

// IsAtLeast reports whether a record exists for (postID, url) and its
// stage is >= min.
func (r *MediaRegistry) IsAtLeast(postID, url string, min domain.Stage) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[domain.MediaKey(postID, url)]
	return ok && rec.Stage >= min
}

// Stats returns record counts grouped by stage.
func (r *MediaRegistry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Stats{
		Total:   len(r.records),
		ByStage: make(map[string]int),
	}
	for _, rec := range r.records {
		s.ByStage[rec.Stage.String()]++
	}
	return s
}
