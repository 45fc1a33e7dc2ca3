// Package service exposes the detection workflow consumed by the HTTP
// layer: acquire a post's media, score every modality, fuse the verdict.
package service

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/colombo-hci/slopdetect/internal/analyzer"
	"github.com/colombo-hci/slopdetect/internal/detector"
	"github.com/colombo-hci/slopdetect/internal/domain"
	"github.com/colombo-hci/slopdetect/internal/fusion"
	"github.com/colombo-hci/slopdetect/internal/pipeline"
)

// DetectRequest is the caller-facing input contract.
type DetectRequest struct {
	PostID    string
	PostURL   string
	Text      string
	ImageURLs []string
	VideoURLs []string
}

// ModalityReport is the per-modality section of a response.
type ModalityReport struct {
	AIProbability *float64           `json:"ai_probability"`
	Confidence    *float64           `json:"confidence"`
	Results       []domain.URLResult `json:"-"`
}

// DetectResponse is the caller-facing output contract.
type DetectResponse struct {
	PostID     string
	Verdict    domain.Verdict
	Confidence float64
	Modality   domain.Modality
	Text       ModalityReport
	Image      ModalityReport
	Video      ModalityReport
}

// DetectionService wires the media pipeline, batch analysis, text
// detection and fusion into the single entry point the routing layer
// calls.
type DetectionService struct {
	pipeline *pipeline.MediaPipeline
	batch    *analyzer.BatchService
	textDet  detector.TextDetector
	fuser    *fusion.Fuser
	logger   *slog.Logger
}

// NewDetectionService creates the detection service.
func NewDetectionService(
	pl *pipeline.MediaPipeline,
	batch *analyzer.BatchService,
	textDet detector.TextDetector,
	fuser *fusion.Fuser,
	logger *slog.Logger,
) *DetectionService {
	return &DetectionService{
		pipeline: pl,
		batch:    batch,
		textDet:  textDet,
		fuser:    fuser,
		logger:   logger,
	}
}

// Detect runs the full per-post workflow. Media acquisition happens
// first (items sequential within the post); the three modality analyses
// then run concurrently.
func (s *DetectionService) Detect(ctx context.Context, req DetectRequest) (*DetectResponse, error) {
	items := make([]domain.MediaItem, 0, len(req.ImageURLs)+len(req.VideoURLs))
	for _, u := range req.ImageURLs {
		items = append(items, domain.MediaItem{URL: u, Type: domain.MediaTypeImage})
	}
	for _, u := range req.VideoURLs {
		items = append(items, domain.MediaItem{URL: u, Type: domain.MediaTypeVideo})
	}

	if err := s.pipeline.Process(ctx, req.PostID, req.PostURL, items); err != nil {
		// Acquisition trouble degrades the media modalities; text
		// analysis still proceeds.
		s.logger.Warn("media pipeline incomplete", "post_id", req.PostID, "error", err)
	}

	var (
		textScore  domain.ModalityScore
		imageBatch domain.BatchResult
		videoBatch domain.BatchResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		textScore = s.analyzeText(gctx, req.Text)
		return nil
	})
	g.Go(func() error {
		imageBatch = s.batch.AnalyzeBatch(gctx, req.PostID, req.ImageURLs, domain.MediaTypeImage)
		return nil
	})
	g.Go(func() error {
		videoBatch = s.batch.AnalyzeBatch(gctx, req.PostID, req.VideoURLs, domain.MediaTypeVideo)
		return nil
	})
	_ = g.Wait()

	in := fusion.Input{Text: textScore}
	if imageBatch.AvgAIProbability != nil {
		in.Image = &domain.ModalityScore{
			Modality:    domain.ModalityImage,
			Probability: *imageBatch.AvgAIProbability,
			Confidence:  deref(imageBatch.AvgConfidence),
		}
	}
	if videoBatch.AvgAIProbability != nil {
		in.Video = &domain.ModalityScore{
			Modality:    domain.ModalityVideo,
			Probability: *videoBatch.AvgAIProbability,
			Confidence:  deref(videoBatch.AvgConfidence),
		}
	}

	fused := s.fuser.Fuse(in)

	resp := &DetectResponse{
		PostID:     req.PostID,
		Verdict:    fused.Verdict,
		Confidence: fused.Confidence,
		Modality:   fused.Modality,
		Text: ModalityReport{
			AIProbability: &textScore.Probability,
			Confidence:    &textScore.Confidence,
		},
		Image: ModalityReport{
			AIProbability: imageBatch.AvgAIProbability,
			Confidence:    imageBatch.AvgConfidence,
			Results:       imageBatch.Results,
		},
		Video: ModalityReport{
			AIProbability: videoBatch.AvgAIProbability,
			Confidence:    videoBatch.AvgConfidence,
			Results:       videoBatch.Results,
		},
	}

	s.logger.Info("post analyzed",
		"post_id", req.PostID,
		"verdict", fused.Verdict,
		"confidence", fused.Confidence,
		"deciding_modality", fused.Modality,
		"images", len(req.ImageURLs),
		"videos", len(req.VideoURLs),
	)
	return resp, nil
}

// analyzeText scores the post text. Text is the always-present modality;
// a detector failure degrades to a neutral score rather than failing the
// request.
func (s *DetectionService) analyzeText(ctx context.Context, text string) domain.ModalityScore {
	score := domain.ModalityScore{Modality: domain.ModalityText, Probability: 0.5, Confidence: 0}

	det, err := s.textDet.DetectText(ctx, text)
	if err != nil {
		s.logger.Warn("text detection failed", "error", err)
		return score
	}

	score.Probability = det.Probability
	score.Confidence = det.Confidence
	return score
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
