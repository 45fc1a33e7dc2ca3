package analyzer

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/colombo-hci/slopdetect/internal/domain"
	"github.com/colombo-hci/slopdetect/internal/downloader"
	"github.com/colombo-hci/slopdetect/internal/registry"
	"github.com/colombo-hci/slopdetect/internal/repository"
	"github.com/colombo-hci/slopdetect/internal/storage"
)

// BatchService resolves local files for a batch of URLs, analyzes them
// under the per-modality concurrency cap, and computes batch aggregates.
type BatchService struct {
	registry  *registry.MediaRegistry
	repo      repository.MediaRepository
	blobs     storage.BlobStore
	analyzers map[domain.MediaType]*MediaAnalyzer
	basePath  string
	logger    *slog.Logger
}

// NewBatchService creates the batch analysis service.
func NewBatchService(
	reg *registry.MediaRegistry,
	repo repository.MediaRepository,
	blobs storage.BlobStore,
	analyzers map[domain.MediaType]*MediaAnalyzer,
	basePath string,
	logger *slog.Logger,
) *BatchService {
	return &BatchService{
		registry:  reg,
		repo:      repo,
		blobs:     blobs,
		analyzers: analyzers,
		basePath:  basePath,
		logger:    logger,
	}
}

// AnalyzeBatch scores every URL of one modality for a post. The response
// always carries exactly one result per input URL; items that cannot be
// resolved or analyzed yield error results in place. Aggregates cover
// only successful results and are nil when none succeeded; no signal is
// not the same as zero.
func (s *BatchService) AnalyzeBatch(ctx context.Context, postID string, urls []string, t domain.MediaType) domain.BatchResult {
	results := make([]domain.URLResult, len(urls))

	analyzer, ok := s.analyzers[t]
	if !ok {
		for i, u := range urls {
			results[i] = domain.URLResult{
				URL:            u,
				AnalysisResult: errorResult("", domain.ErrNoDetector.Error()),
			}
		}
		return aggregate(results)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, u := range urls {
		g.Go(func() error {
			localPath, resolveErr := s.resolveLocalFile(gctx, postID, u)
			if resolveErr != "" {
				res := errorResult("", resolveErr)
				results[i] = domain.URLResult{URL: u, AnalysisResult: res}
				s.markAnalyzed(postID, u, &res)
				return nil
			}

			res := analyzer.Analyze(gctx, localPath)
			results[i] = domain.URLResult{URL: u, AnalysisResult: res}

			s.markAnalyzed(postID, u, &res)
			return nil
		})
	}
	// Item goroutines never return errors; failures are data.
	_ = g.Wait()

	return aggregate(results)
}

// resolveLocalFile finds a readable local file for (postID, url), trying
// the in-process registry, then the durable record's storage path, then
// the synthetic-URL direct lookup. Returns a non-empty error message when
// everything misses.
func (s *BatchService) resolveLocalFile(ctx context.Context, postID, url string) (string, string) {
	// Registry cache first: cheapest, covers everything processed in
	// this process lifetime.
	if rec, ok := s.registry.Get(postID, url); ok {
		if rec.LocalPath != "" {
			if _, err := os.Stat(rec.LocalPath); err == nil {
				return rec.LocalPath, ""
			}
		}
		if rec.StoragePath != "" {
			if p, err := s.blobs.Materialize(ctx, rec.StoragePath); err == nil {
				return p, ""
			}
		}
	}

	// Durable record from a previous process lifetime.
	if rec, err := s.repo.FindByPostAndURL(ctx, postID, url); err == nil && rec.StoragePath != "" {
		if p, err := s.blobs.Materialize(ctx, rec.StoragePath); err == nil {
			return p, ""
		}
	}

	// Synthetic URLs point straight at an extractor-produced file.
	if p, ok := downloader.ResolveSyntheticURL(s.basePath, url); ok {
		if _, err := os.Stat(p); err == nil {
			return p, ""
		}
	}

	s.logger.Warn("no local file resolvable", "post_id", postID, "url", url)
	return "", "no local file available for analysis"
}

// markAnalyzed advances the registry with a summary of the detection.
// Failed items advance too, carrying the error, so stage stats count
// every completed item rather than only the successful ones.
func (s *BatchService) markAnalyzed(postID, url string, res *domain.AnalysisResult) {
	var summary []byte
	if res.Succeeded() {
		summary, _ = json.Marshal(map[string]any{
			"ai_probability": *res.AIProbability,
			"confidence":     res.Confidence,
			"model":          res.ModelUsed,
		})
	} else {
		summary, _ = json.Marshal(map[string]any{"error": res.Err})
	}
	s.registry.Advance(domain.MediaKey(postID, url), domain.StageAnalyzed, registry.Update{
		Detection: string(summary),
	})
}

// aggregate averages probability and confidence over the successful
// subset of results.
func aggregate(results []domain.URLResult) domain.BatchResult {
	var probSum, confSum float64
	var n int
	for i := range results {
		if results[i].Succeeded() {
			probSum += *results[i].AIProbability
			confSum += results[i].Confidence
			n++
		}
	}

	br := domain.BatchResult{Results: results}
	if n > 0 {
		avgProb := probSum / float64(n)
		avgConf := confSum / float64(n)
		br.AvgAIProbability = &avgProb
		br.AvgConfidence = &avgConf
	}
	return br
}
