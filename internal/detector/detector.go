// Package detector defines the per-modality AI-generation detector
// contract. Model internals (SlowFast, CLIP classifiers) live behind an
// external model server; this package only speaks the interface.
package detector

import (
	"context"

	"github.com/colombo-hci/slopdetect/internal/domain"
)

// Detection is a detector's raw output for one item.
type Detection struct {
	IsAIGenerated bool
	Probability   float64
	Confidence    float64
	ModelName     string
	RawMetadata   map[string]any
}

// Detector scores one local media file.
type Detector interface {
	// Detect runs inference on the file at localPath. Blocking; callers
	// bound it with a context timeout.
	Detect(ctx context.Context, localPath string) (*Detection, error)

	// Threshold is the decision threshold the model was calibrated with.
	Threshold() float64

	// Close releases model-side resources.
	Close() error
}

// TextDetector scores raw post text.
type TextDetector interface {
	DetectText(ctx context.Context, text string) (*Detection, error)
}

// Factory hands out the detector for a media type. Constructed once at
// startup and injected; components never reach for globals.
type Factory struct {
	byType map[domain.MediaType]Detector
}

// NewFactory creates a detector factory.
func NewFactory() *Factory {
	return &Factory{byType: make(map[domain.MediaType]Detector)}
}

// Register binds a detector to a media type, replacing any previous one.
func (f *Factory) Register(t domain.MediaType, d Detector) {
	f.byType[t] = d
}

// ForType returns the detector for a media type.
func (f *Factory) ForType(t domain.MediaType) (Detector, error) {
	d, ok := f.byType[t]
	if !ok {
		return nil, domain.ErrNoDetector
	}
	return d, nil
}

// Close closes every registered detector, returning the first error.
func (f *Factory) Close() error {
	var first error
	for _, d := range f.byType {
		if err := d.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
