package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/colombo-hci/slopdetect/internal/config"
	"github.com/colombo-hci/slopdetect/internal/domain"
)

// HTTPDetector talks to the external model server. One instance per
// modality; the endpoint path selects the model family. Detect runs
// concurrently from the analysis pool, so the calibrated threshold the
// server reports back is mutex-guarded.
type HTTPDetector struct {
	endpoint  string
	apiKey    string
	modelName string
	http      *http.Client

	mu        sync.Mutex
	threshold float64
}

var _ Detector = (*HTTPDetector)(nil)

// NewHTTPDetector creates a detector bound to one model-server endpoint.
func NewHTTPDetector(cfg config.DetectorConfig, t domain.MediaType) *HTTPDetector {
	return &HTTPDetector{
		endpoint:  fmt.Sprintf("%s/detect/%s", cfg.BaseURL, t),
		apiKey:    cfg.APIKey,
		modelName: fmt.Sprintf("%s-detector", t),
		threshold: 0.5,
		http:      &http.Client{Timeout: cfg.Timeout},
	}
}

// detectResponse is the model server's wire format.
type detectResponse struct {
	IsAIGenerated bool           `json:"is_ai_generated"`
	Probability   float64        `json:"probability"`
	Confidence    float64        `json:"confidence"`
	Model         string         `json:"model"`
	Threshold     *float64       `json:"threshold,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Detect scores the file at localPath.
func (d *HTTPDetector) Detect(ctx context.Context, localPath string) (*Detection, error) {
	return d.post(ctx, map[string]any{"file_path": localPath})
}

// Threshold is the model's calibrated decision threshold.
func (d *HTTPDetector) Threshold() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.threshold
}

// Close is a no-op for the HTTP transport; the model server owns weights.
func (d *HTTPDetector) Close() error {
	return nil
}

func (d *HTTPDetector) post(ctx context.Context, payload map[string]any) (*Detection, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.apiKey)
	}

	resp, err := d.http.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, domain.ErrInferenceTimeout
		}
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("model server returned %d", resp.StatusCode)
	}

	var dr detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	det := &Detection{
		IsAIGenerated: dr.IsAIGenerated,
		Probability:   dr.Probability,
		Confidence:    dr.Confidence,
		ModelName:     dr.Model,
		RawMetadata:   dr.Metadata,
	}
	if det.ModelName == "" {
		det.ModelName = d.modelName
	}
	if dr.Threshold != nil {
		d.mu.Lock()
		d.threshold = *dr.Threshold
		d.mu.Unlock()
	}
	return det, nil
}

// HTTPTextDetector scores post text through the model server.
type HTTPTextDetector struct {
	inner *HTTPDetector
}

var _ TextDetector = (*HTTPTextDetector)(nil)

// NewHTTPTextDetector creates the text-modality detector.
func NewHTTPTextDetector(cfg config.DetectorConfig) *HTTPTextDetector {
	return &HTTPTextDetector{
		inner: &HTTPDetector{
			endpoint:  cfg.BaseURL + "/detect/text",
			apiKey:    cfg.APIKey,
			modelName: "text-detector",
			threshold: 0.5,
			http:      &http.Client{Timeout: cfg.Timeout},
		},
	}
}

// DetectText scores raw text.
func (d *HTTPTextDetector) DetectText(ctx context.Context, text string) (*Detection, error) {
	return d.inner.post(ctx, map[string]any{"text": text})
}
