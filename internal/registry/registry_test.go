package registry

import (
	"sync"
	"testing"

	"github.com/colombo-hci/slopdetect/internal/domain"
)

func TestRegisterIdempotent(t *testing.T) {
	r := New()
	r.Register("p1", "https://example.com/a.jpg", domain.MediaTypeImage)

	key := domain.MediaKey("p1", "https://example.com/a.jpg")
	r.Advance(key, domain.StageDownloaded, Update{LocalPath: "/tmp/a.jpg"})

	// Re-registering must not reset the record to pending.
	r.Register("p1", "https://example.com/a.jpg", domain.MediaTypeImage)

	rec, ok := r.Get("p1", "https://example.com/a.jpg")
	if !ok {
		t.Fatal("record missing after re-register")
	}
	if rec.Stage != domain.StageDownloaded {
		t.Errorf("stage = %v, want %v", rec.Stage, domain.StageDownloaded)
	}
	if rec.LocalPath != "/tmp/a.jpg" {
		t.Errorf("local path = %q, want /tmp/a.jpg", rec.LocalPath)
	}
}

func TestAdvanceMergesFields(t *testing.T) {
	r := New()
	r.Register("p1", "u1", domain.MediaTypeVideo)
	key := domain.MediaKey("p1", "u1")

	r.Advance(key, domain.StageDownloaded, Update{
		LocalPath:   "/tmp/v.mp4",
		ContentHash: "abc",
	})
	r.Advance(key, domain.StageUploaded, Update{
		StoragePath: "/data/v.mp4",
		RemoteURI:   "files/xyz",
	})

	rec, _ := r.Get("p1", "u1")
	if rec.Stage != domain.StageUploaded {
		t.Errorf("stage = %v, want %v", rec.Stage, domain.StageUploaded)
	}
	// Fields from the earlier update must survive the later one.
	if rec.LocalPath != "/tmp/v.mp4" || rec.ContentHash != "abc" {
		t.Errorf("earlier fields overwritten: %+v", rec)
	}
	if rec.StoragePath != "/data/v.mp4" || rec.RemoteURI != "files/xyz" {
		t.Errorf("later fields not merged: %+v", rec)
	}
}

func TestAdvanceUnknownKeyIsNoop(t *testing.T) {
	r := New()
	r.Advance("nope", domain.StageAnalyzed, Update{})
	if _, ok := r.Get("", "nope"); ok {
		t.Error("advance must not create records")
	}
}

func TestIsAtLeast(t *testing.T) {
	r := New()
	r.Register("p1", "u1", domain.MediaTypeImage)
	key := domain.MediaKey("p1", "u1")
	r.Advance(key, domain.StageUploaded, Update{})

	tests := []struct {
		min  domain.Stage
		want bool
	}{
		{domain.StagePending, true},
		{domain.StageDownloaded, true},
		{domain.StageUploaded, true},
		{domain.StageAnalyzed, false},
	}
	for _, tt := range tests {
		if got := r.IsAtLeast("p1", "u1", tt.min); got != tt.want {
			t.Errorf("IsAtLeast(%v) = %v, want %v", tt.min, got, tt.want)
		}
	}

	if r.IsAtLeast("p1", "other", domain.StagePending) {
		t.Error("unknown record must report false")
	}
}

func TestGetReturnsCopy(t *testing.T) {
	r := New()
	r.Register("p1", "u1", domain.MediaTypeImage)

	rec, _ := r.Get("p1", "u1")
	rec.Stage = domain.StageAnalyzed
	rec.LocalPath = "/tampered"

	again, _ := r.Get("p1", "u1")
	if again.Stage != domain.StagePending || again.LocalPath != "" {
		t.Error("mutating a returned record must not affect the registry")
	}
}

func TestStats(t *testing.T) {
	r := New()
	r.Register("p1", "u1", domain.MediaTypeImage)
	r.Register("p1", "u2", domain.MediaTypeImage)
	r.Register("p2", "u1", domain.MediaTypeVideo)
	r.Advance(domain.MediaKey("p1", "u1"), domain.StageDownloaded, Update{})

	s := r.Stats()
	if s.Total != 3 {
		t.Errorf("total = %d, want 3", s.Total)
	}
	if s.ByStage["pending"] != 2 {
		t.Errorf("pending = %d, want 2", s.ByStage["pending"])
	}
	if s.ByStage["downloaded"] != 1 {
		t.Errorf("downloaded = %d, want 1", s.ByStage["downloaded"])
	}
}

func TestConcurrentAccess(t *testing.T) {
	r := New()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Register("p1", "u1", domain.MediaTypeImage)
				r.Advance(domain.MediaKey("p1", "u1"), domain.StageDownloaded, Update{LocalPath: "/tmp/x"})
				r.Get("p1", "u1")
				r.Stats()
			}
		}()
	}
	wg.Wait()

	if !r.IsAtLeast("p1", "u1", domain.StageDownloaded) {
		t.Error("record should be at least downloaded")
	}
}
