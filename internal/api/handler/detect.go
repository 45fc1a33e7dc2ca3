package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/colombo-hci/slopdetect/internal/domain"
	"github.com/colombo-hci/slopdetect/internal/service"
)

// DetectHandler handles detection HTTP requests.
type DetectHandler struct {
	detectionSvc *service.DetectionService
	logger       *slog.Logger
}

// NewDetectHandler creates a new detect handler.
func NewDetectHandler(detectionSvc *service.DetectionService, logger *slog.Logger) *DetectHandler {
	return &DetectHandler{
		detectionSvc: detectionSvc,
		logger:       logger,
	}
}

// DetectRequest is the JSON request body for post detection.
type DetectRequest struct {
	PostID    string   `json:"post_id"`
	PostURL   string   `json:"post_url,omitempty"`
	Text      string   `json:"text"`
	ImageURLs []string `json:"image_urls,omitempty"`
	VideoURLs []string `json:"video_urls,omitempty"`
}

// URLResultResponse is one per-URL entry in a modality report. Every
// input URL appears exactly once; callers never receive a truncated list.
type URLResultResponse struct {
	URL           string   `json:"url"`
	Status        string   `json:"status"`
	IsAIGenerated *bool    `json:"is_ai_generated"`
	AIProbability *float64 `json:"ai_probability"`
	Confidence    float64  `json:"confidence"`
	ModelUsed     string   `json:"model_used,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// ModalityResponse is the per-modality section of a detect response.
type ModalityResponse struct {
	AIProbability *float64            `json:"ai_probability"`
	Confidence    *float64            `json:"confidence"`
	Results       []URLResultResponse `json:"results,omitempty"`
}

// DetectResponse is the JSON response for post detection.
type DetectResponse struct {
	PostID      string                      `json:"post_id"`
	Verdict     string                      `json:"verdict"`
	Confidence  float64                     `json:"confidence"`
	Modality    string                      `json:"deciding_modality"`
	PerModality map[string]ModalityResponse `json:"per_modality"`
}

// Detect handles POST /api/v1/detect
func (h *DetectHandler) Detect(w http.ResponseWriter, r *http.Request) {
	var req DetectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.PostID == "" {
		respondError(w, http.StatusBadRequest, "post_id is required")
		return
	}

	result, err := h.detectionSvc.Detect(r.Context(), service.DetectRequest{
		PostID:    req.PostID,
		PostURL:   req.PostURL,
		Text:      req.Text,
		ImageURLs: req.ImageURLs,
		VideoURLs: req.VideoURLs,
	})
	if err != nil {
		h.logger.Error("detection failed", "post_id", req.PostID, "error", err)
		respondError(w, http.StatusInternalServerError, "detection failed")
		return
	}

	respondJSON(w, http.StatusOK, DetectResponse{
		PostID:     result.PostID,
		Verdict:    string(result.Verdict),
		Confidence: result.Confidence,
		Modality:   string(result.Modality),
		PerModality: map[string]ModalityResponse{
			"text":  toModalityResponse(result.Text),
			"image": toModalityResponse(result.Image),
			"video": toModalityResponse(result.Video),
		},
	})
}

func toModalityResponse(m service.ModalityReport) ModalityResponse {
	resp := ModalityResponse{
		AIProbability: m.AIProbability,
		Confidence:    m.Confidence,
	}
	for _, r := range m.Results {
		resp.Results = append(resp.Results, toURLResultResponse(r))
	}
	return resp
}

func toURLResultResponse(r domain.URLResult) URLResultResponse {
	return URLResultResponse{
		URL:           r.URL,
		Status:        r.Status(),
		IsAIGenerated: r.IsAIGenerated,
		AIProbability: r.AIProbability,
		Confidence:    r.Confidence,
		ModelUsed:     r.ModelUsed,
		Error:         r.Err,
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
