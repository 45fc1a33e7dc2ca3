// Package analyzer runs media files through the per-modality detectors
// and aggregates batch results.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/colombo-hci/slopdetect/internal/detector"
	"github.com/colombo-hci/slopdetect/internal/domain"
	"github.com/colombo-hci/slopdetect/internal/worker"
)

// MediaAnalyzer scores one local media file of a fixed modality. The
// injected detector does the actual inference; the analyzer owns timing,
// timeouts and normalization of the raw output.
type MediaAnalyzer struct {
	factory          *detector.Factory
	mediaType        domain.MediaType
	pool             *worker.Pool
	inferenceTimeout time.Duration
	logger           *slog.Logger
}

// NewMediaAnalyzer creates an analyzer for one media type. The pool caps
// concurrent heavy inference; its size is the semaphore limit for this
// modality.
func NewMediaAnalyzer(
	factory *detector.Factory,
	t domain.MediaType,
	pool *worker.Pool,
	inferenceTimeout time.Duration,
	logger *slog.Logger,
) *MediaAnalyzer {
	return &MediaAnalyzer{
		factory:          factory,
		mediaType:        t,
		pool:             pool,
		inferenceTimeout: inferenceTimeout,
		logger:           logger,
	}
}

// MediaType reports the modality this analyzer handles.
func (a *MediaAnalyzer) MediaType() domain.MediaType {
	return a.mediaType
}

// Analyze scores the file at localPath. Failures come back as error
// results with a nil probability, never as panics or batch-aborting
// errors.
func (a *MediaAnalyzer) Analyze(ctx context.Context, localPath string) domain.AnalysisResult {
	if localPath == "" {
		return errorResult("", "no local file available for analysis")
	}
	if _, err := os.Stat(localPath); err != nil {
		return errorResult("", fmt.Sprintf("local file missing: %v", err))
	}

	det, err := a.factory.ForType(a.mediaType)
	if err != nil {
		return errorResult("", fmt.Sprintf("detector unavailable: %v", err))
	}

	start := time.Now()

	var detection *detector.Detection
	var detectErr error
	runErr := a.pool.Run(ctx, func(taskCtx context.Context) {
		inferCtx, cancel := context.WithTimeout(taskCtx, a.inferenceTimeout)
		defer cancel()
		detection, detectErr = det.Detect(inferCtx, localPath)
	})

	elapsed := time.Since(start)

	if runErr != nil {
		return errorResult("", fmt.Sprintf("inference not scheduled: %v", runErr))
	}
	if detectErr != nil {
		if errors.Is(detectErr, domain.ErrInferenceTimeout) || errors.Is(detectErr, context.DeadlineExceeded) {
			a.logger.Warn("inference timed out",
				"media_type", a.mediaType,
				"local_path", localPath,
				"timeout", a.inferenceTimeout,
			)
			return errorResult("", "inference timed out")
		}
		return errorResult("", fmt.Sprintf("detector failed: %v", detectErr))
	}

	isAI := detection.IsAIGenerated
	prob := detection.Probability

	a.logger.Debug("media analyzed",
		"media_type", a.mediaType,
		"local_path", localPath,
		"probability", prob,
		"elapsed", elapsed,
	)

	return domain.AnalysisResult{
		IsAIGenerated:  &isAI,
		AIProbability:  &prob,
		Confidence:     detection.Confidence,
		ModelUsed:      detection.ModelName,
		ProcessingTime: elapsed,
	}
}

func errorResult(model, msg string) domain.AnalysisResult {
	return domain.AnalysisResult{
		ModelUsed: model,
		Err:       msg,
	}
}
