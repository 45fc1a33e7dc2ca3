package domain

import "time"

// Modality is an independent signal source contributing an AI-probability
// estimate.
type Modality string

const (
	ModalityText  Modality = "text"
	ModalityImage Modality = "image"
	ModalityVideo Modality = "video"
)

// AnalysisResult is the normalized output of one detector invocation.
// A nil AIProbability means the item could not be analyzed; such results
// are excluded from aggregates, never treated as zero.
type AnalysisResult struct {
	IsAIGenerated  *bool
	AIProbability  *float64
	Confidence     float64
	ModelUsed      string
	ProcessingTime time.Duration
	Err            string
}

// Succeeded reports whether the item produced a usable probability.
func (r *AnalysisResult) Succeeded() bool {
	return r.Err == "" && r.AIProbability != nil
}

// Status returns the caller-visible status string for this result.
func (r *AnalysisResult) Status() string {
	if r.Succeeded() {
		return "success"
	}
	return "error"
}

// URLResult pairs an analysis result with the input URL it belongs to.
// A batch response carries exactly one URLResult per input URL.
type URLResult struct {
	URL string
	AnalysisResult
}

// BatchResult holds per-URL results plus aggregates over the successful
// subset. Nil aggregates mean "no signal", not zero.
type BatchResult struct {
	Results          []URLResult
	AvgAIProbability *float64
	AvgConfidence    *float64
}

// Verdict is the fused per-post judgement.
type Verdict string

const (
	VerdictAISlop       Verdict = "ai_slop"
	VerdictHumanContent Verdict = "human_content"
	VerdictUncertain    Verdict = "uncertain"
)

// ModalityScore is one fusion candidate.
type ModalityScore struct {
	Modality    Modality
	Probability float64
	Confidence  float64
}

// FusionOutput is the combined verdict over all modalities.
type FusionOutput struct {
	Verdict    Verdict
	Confidence float64
	Modality   Modality
}
