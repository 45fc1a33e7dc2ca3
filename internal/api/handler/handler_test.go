package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/colombo-hci/slopdetect/internal/domain"
	"github.com/colombo-hci/slopdetect/internal/registry"
	"github.com/colombo-hci/slopdetect/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDetectRejectsInvalidJSON(t *testing.T) {
	h := NewDetectHandler(nil, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/detect", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.Detect(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestDetectRequiresPostID(t *testing.T) {
	h := NewDetectHandler(nil, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/detect", strings.NewReader(`{"text":"hi"}`))
	rec := httptest.NewRecorder()
	h.Detect(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(body["error"], "post_id") {
		t.Errorf("error = %q, want mention of post_id", body["error"])
	}
}

func TestHealthLive(t *testing.T) {
	h := NewHealthHandler(registry.New())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.Live(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	json.NewDecoder(rec.Body).Decode(&body)
	if body["status"] != "ok" {
		t.Errorf("status field = %q", body["status"])
	}
}

func TestHealthStats(t *testing.T) {
	reg := registry.New()
	reg.Register("p1", "u1", domain.MediaTypeImage)
	h := NewHealthHandler(reg)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	rec := httptest.NewRecorder()
	h.Stats(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Registry struct {
			Total   int            `json:"total"`
			ByStage map[string]int `json:"by_stage"`
		} `json:"registry"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Registry.Total != 1 {
		t.Errorf("total = %d, want 1", body.Registry.Total)
	}
	if body.Registry.ByStage["pending"] != 1 {
		t.Errorf("pending = %d, want 1", body.Registry.ByStage["pending"])
	}
}

func TestURLResultResponseMapping(t *testing.T) {
	prob := 0.25
	isAI := true
	report := service.ModalityReport{
		Results: []domain.URLResult{
			{
				URL: "https://cdn.example.com/a.jpg",
				AnalysisResult: domain.AnalysisResult{
					IsAIGenerated: &isAI,
					AIProbability: &prob,
					Confidence:    0.9,
					ModelUsed:     "clip-image-v2",
				},
			},
			{
				URL:            "https://cdn.example.com/b.jpg",
				AnalysisResult: domain.AnalysisResult{Err: "download failed"},
			},
		},
	}

	resp := toModalityResponse(report)

	if len(resp.Results) != 2 {
		t.Fatalf("results = %d, want one per input URL", len(resp.Results))
	}
	if resp.Results[0].Status != "success" || *resp.Results[0].AIProbability != 0.25 {
		t.Errorf("unexpected success mapping: %+v", resp.Results[0])
	}
	if resp.Results[1].Status != "error" || resp.Results[1].Error != "download failed" {
		t.Errorf("unexpected error mapping: %+v", resp.Results[1])
	}
	if resp.Results[1].AIProbability != nil {
		t.Error("failed result must carry a nil probability")
	}
}
