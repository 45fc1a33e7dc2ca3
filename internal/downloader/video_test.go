package downloader

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/colombo-hci/slopdetect/internal/dedup"
	"github.com/colombo-hci/slopdetect/internal/domain"
)

func TestResolveSyntheticURL(t *testing.T) {
	tests := []struct {
		name    string
		rawURL  string
		want    string
		matched bool
	}{
		{
			name:    "plain relative path",
			rawURL:  "slop-video://p1/clip.mp4",
			want:    "/base/p1/clip.mp4",
			matched: true,
		},
		{
			name:    "traversal clamped to base",
			rawURL:  "slop-video://../../etc/passwd",
			want:    "/base/etc/passwd",
			matched: true,
		},
		{
			name:    "https url is not synthetic",
			rawURL:  "https://cdn.example.com/v.mp4",
			matched: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ResolveSyntheticURL("/base", tt.rawURL)
			if ok != tt.matched {
				t.Fatalf("matched = %v, want %v", ok, tt.matched)
			}
			if ok && got != tt.want {
				t.Errorf("path = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestVideoDownloadSyntheticURL(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, "p1")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	local := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(local, bytes.Repeat([]byte("v"), 2048), 0644); err != nil {
		t.Fatal(err)
	}

	d := NewVideoDownloader(testDownloadConfig(), base, dedup.NewIndex(testLogger()), testLogger())

	res, err := d.Download(context.Background(), "p1", "slop-video://p1/clip.mp4", PostContext{})
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if res.LocalPath != local {
		t.Errorf("local path = %q, want %q", res.LocalPath, local)
	}
	if res.ContentHash == "" {
		t.Error("content hash not computed")
	}
}

func TestVideoDownloadSyntheticURLMissingFile(t *testing.T) {
	d := NewVideoDownloader(testDownloadConfig(), t.TempDir(), dedup.NewIndex(testLogger()), testLogger())

	_, err := d.Download(context.Background(), "p1", "slop-video://p1/missing.mp4", PostContext{})
	if !errors.Is(err, domain.ErrNoLocalFile) {
		t.Errorf("err = %v, want ErrNoLocalFile", err)
	}
}

func TestVideoDownloadDirect(t *testing.T) {
	payload := bytes.Repeat([]byte{0x00, 0x01, 0x02, 0x03}, 64)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Range"), "bytes=") {
			t.Error("range header missing")
		}
		w.Header().Set("Content-Type", "video/mp4")
		w.Write(payload)
	}))
	defer srv.Close()

	base := t.TempDir()
	d := NewVideoDownloader(testDownloadConfig(), base, dedup.NewIndex(testLogger()), testLogger())

	res, err := d.Download(context.Background(), "p1", srv.URL+"/clip.mp4", PostContext{})
	if err != nil {
		t.Fatalf("download: %v", err)
	}

	data, err := os.ReadFile(res.LocalPath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, payload) {
		t.Error("stored bytes differ from served bytes")
	}
	if res.ContentHash != dedup.Hash(payload) {
		t.Error("content hash does not match served payload")
	}
	if _, err := os.Stat(res.LocalPath + ".part"); !os.IsNotExist(err) {
		t.Error("partial file left behind")
	}
}

func TestVideoDownloadRejectsNonVideoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>rate limit page</html>"))
	}))
	defer srv.Close()

	d := NewVideoDownloader(testDownloadConfig(), t.TempDir(), dedup.NewIndex(testLogger()), testLogger())

	// No post URL, so the extractor fallback is skipped.
	_, err := d.Download(context.Background(), "p1", srv.URL+"/page", PostContext{})
	if !errors.Is(err, domain.ErrDownloadFailed) {
		t.Errorf("err = %v, want ErrDownloadFailed", err)
	}
}

func TestVideoDownloadRejectsTinyPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Write([]byte("stub")) // below MinVideoBytes
	}))
	defer srv.Close()

	base := t.TempDir()
	d := NewVideoDownloader(testDownloadConfig(), base, dedup.NewIndex(testLogger()), testLogger())

	_, err := d.Download(context.Background(), "p1", srv.URL+"/tiny.mp4", PostContext{})
	if !errors.Is(err, domain.ErrDownloadFailed) {
		t.Errorf("err = %v, want ErrDownloadFailed", err)
	}

	// Nothing may survive in the media dir.
	entries, _ := os.ReadDir(filepath.Join(base, "p1"))
	if len(entries) != 0 {
		t.Errorf("media dir not clean after rejection: %v", entries)
	}
}

func TestVideoDownloadExpiredURLNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	d := NewVideoDownloader(testDownloadConfig(), t.TempDir(), dedup.NewIndex(testLogger()), testLogger())

	_, err := d.Download(context.Background(), "p1", srv.URL+"/expired.mp4", PostContext{})
	if !errors.Is(err, domain.ErrDownloadFailed) {
		t.Errorf("err = %v, want ErrDownloadFailed", err)
	}
	if hits.Load() != 1 {
		t.Errorf("server hit %d times, want 1", hits.Load())
	}
}

func TestMediaFilenameStableForURL(t *testing.T) {
	a := mediaFilename("https://cdn.example.com/x.mp4", ".mp4")
	b := mediaFilename("https://cdn.example.com/x.mp4", ".mp4")
	if a == b {
		t.Error("filenames must carry a unique component to avoid collisions")
	}
	if filepath.Ext(a) != ".mp4" {
		t.Errorf("extension = %q, want .mp4", filepath.Ext(a))
	}
	if !strings.HasPrefix(a[:12], b[:12]) {
		t.Error("url-derived prefix must be stable across calls")
	}
}
