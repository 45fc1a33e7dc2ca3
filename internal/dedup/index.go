// Package dedup finds existing equivalent content for a post's media URLs
// so the pipeline never fetches or stores the same bytes twice.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/colombo-hci/slopdetect/internal/domain"
)

// ephemeralParams are query parameters that change between fetches of the
// same underlying content: CDN signatures, session tokens, cache busters.
var ephemeralParams = map[string]struct{}{
	"sig":              {},
	"signature":        {},
	"token":            {},
	"expires":          {},
	"expire":           {},
	"x-amz-signature":  {},
	"x-amz-credential": {},
	"x-amz-date":       {},
	"x-amz-expires":    {},
	"x-goog-signature": {},
	"sessionid":        {},
	"session_id":       {},
	"cb":               {},
	"cachebust":        {},
	"_":                {},
	"ts":               {},
	"tag":              {},
}

// Index computes content hashes and normalized URLs and matches new media
// URLs against already-persisted records. Safe for concurrent use.
type Index struct {
	logger *slog.Logger

	// hashCache maps normalized URL -> content hash for files hashed
	// during this process lifetime, so the hash fallback stays cheap.
	mu        sync.RWMutex
	hashCache map[string]string
}

// NewIndex creates a deduplication index.
func NewIndex(logger *slog.Logger) *Index {
	return &Index{
		logger:    logger,
		hashCache: make(map[string]string),
	}
}

// Hash returns the hex-encoded SHA-256 digest of b.
func Hash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// HashFile hashes the file at path, caching the digest under the
// normalized URL it was fetched from.
func (i *Index) HashFile(normalizedURL, path string) (string, error) {
	i.mu.RLock()
	if h, ok := i.hashCache[normalizedURL]; ok {
		i.mu.RUnlock()
		return h, nil
	}
	i.mu.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	h := Hash(data)

	i.mu.Lock()
	i.hashCache[normalizedURL] = h
	i.mu.Unlock()
	return h, nil
}

// CachedHash returns the cached content hash for a normalized URL, if any.
func (i *Index) CachedHash(normalizedURL string) (string, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	h, ok := i.hashCache[normalizedURL]
	return h, ok
}

// RememberHash records a content hash computed elsewhere (e.g. by a
// downloader over the final encoded bytes).
func (i *Index) RememberHash(normalizedURL, hash string) {
	if normalizedURL == "" || hash == "" {
		return
	}
	i.mu.Lock()
	i.hashCache[normalizedURL] = hash
	i.mu.Unlock()
}

// NormalizeURL strips known ephemeral query parameters and fragments from
// a URL. Pure and idempotent: NormalizeURL(NormalizeURL(u)) == NormalizeURL(u).
// Unparseable URLs are returned unchanged.
func NormalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	q := u.Query()
	for param := range q {
		if _, ok := ephemeralParams[strings.ToLower(param)]; ok {
			q.Del(param)
		}
	}

	// Rebuild the query with sorted keys so parameter order never
	// distinguishes two otherwise identical URLs.
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		vals := q[k]
		sort.Strings(vals)
		for _, v := range vals {
			if sb.Len() > 0 {
				sb.WriteByte('&')
			}
			sb.WriteString(url.QueryEscape(k))
			sb.WriteByte('=')
			sb.WriteString(url.QueryEscape(v))
		}
	}

	u.RawQuery = sb.String()
	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)
	return u.String()
}

// FindDuplicates maps each candidate URL to an existing record holding
// equivalent content, so callers can reuse its storage path and content
// hash. Normalized-URL comparison is always tried before any hashing: it
// needs no I/O and must stay the first line of defense. The hash
// fallback only consults hashes that are already known (cached in-process
// or stored on a record); it never downloads bytes itself.
func (i *Index) FindDuplicates(postID string, candidates []string, existing []*domain.MediaRecord) map[string]*domain.MediaRecord {
	dupes := make(map[string]*domain.MediaRecord)
	if len(existing) == 0 {
		return dupes
	}

	byNormalized := make(map[string]*domain.MediaRecord, len(existing))
	byHash := make(map[string]*domain.MediaRecord, len(existing))
	for _, rec := range existing {
		if rec.StoragePath == "" {
			continue
		}
		norm := rec.NormalizedURL
		if norm == "" {
			norm = NormalizeURL(rec.MediaURL)
		}
		byNormalized[norm] = rec
		if rec.ContentHash != "" {
			byHash[rec.ContentHash] = rec
		}
	}

	for _, candidate := range candidates {
		norm := NormalizeURL(candidate)

		// Cheap match first: normalized URL equality.
		if rec, ok := byNormalized[norm]; ok && rec.MediaURL != candidate {
			dupes[candidate] = rec
			i.logger.Debug("duplicate by normalized url",
				"post_id", postID,
				"url", candidate,
				"storage_path", rec.StoragePath,
			)
			continue
		}

		// Hash fallback, only when a hash is already cheaply available.
		if h, ok := i.CachedHash(norm); ok {
			if rec, ok := byHash[h]; ok && rec.MediaURL != candidate {
				dupes[candidate] = rec
				i.logger.Debug("duplicate by content hash",
					"post_id", postID,
					"url", candidate,
					"storage_path", rec.StoragePath,
				)
			}
		}
	}

	return dupes
}
