// Package fusion combines per-modality AI-probability scores into one
// verdict and confidence.
package fusion

import (
	"log/slog"

	"github.com/colombo-hci/slopdetect/internal/config"
	"github.com/colombo-hci/slopdetect/internal/domain"
)

// modalityPriority is the fixed tie-break order when two modalities
// report the same probability.
var modalityPriority = []domain.Modality{
	domain.ModalityText,
	domain.ModalityImage,
	domain.ModalityVideo,
}

// Fuser applies the max-probability fusion policy: among the modalities
// that produced a score, the one with the highest probability decides the
// verdict, ties broken by the fixed priority order text, image, video.
type Fuser struct {
	cfg    config.FusionConfig
	logger *slog.Logger
}

// New creates a fuser.
func New(cfg config.FusionConfig, logger *slog.Logger) *Fuser {
	return &Fuser{cfg: cfg, logger: logger}
}

// Input carries the per-modality scores for one post. Text is always
// present; image and video are nil when their modality produced no
// signal.
type Input struct {
	Text  domain.ModalityScore
	Image *domain.ModalityScore
	Video *domain.ModalityScore
}

// Fuse combines the available modality scores. With no usable candidates
// the text score decides; a selected candidate without a confidence falls
// back to the text confidence.
func (f *Fuser) Fuse(in Input) domain.FusionOutput {
	candidates := make(map[domain.Modality]domain.ModalityScore, 3)
	candidates[domain.ModalityText] = in.Text
	if in.Image != nil {
		candidates[domain.ModalityImage] = *in.Image
	}
	if in.Video != nil {
		candidates[domain.ModalityVideo] = *in.Video
	}

	selected := in.Text
	for _, m := range modalityPriority {
		c, ok := candidates[m]
		if !ok {
			continue
		}
		// Strict greater-than keeps the first-seen modality on ties.
		if c.Probability > selected.Probability {
			selected = c
		}
	}

	confidence := selected.Confidence
	if confidence == 0 {
		confidence = in.Text.Confidence
	}

	out := domain.FusionOutput{
		Verdict:    f.verdict(selected.Probability),
		Confidence: confidence,
		Modality:   selected.Modality,
	}

	f.logger.Debug("fused verdict",
		"modality", selected.Modality,
		"probability", selected.Probability,
		"verdict", out.Verdict,
		"confidence", out.Confidence,
	)
	return out
}

// verdict maps a score to a verdict: at or below the AI threshold it is
// AI slop, at or above the human threshold human content, anything
// between uncertain. The thresholds come from configuration; keeping
// HumanThreshold >= AIThreshold is the deployer's job, not enforced here.
func (f *Fuser) verdict(p float64) domain.Verdict {
	switch {
	case p <= f.cfg.AIThreshold:
		return domain.VerdictAISlop
	case p >= f.cfg.HumanThreshold:
		return domain.VerdictHumanContent
	default:
		return domain.VerdictUncertain
	}
}
