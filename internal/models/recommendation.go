package models

import "time"

// RecommendationMeta surfaces the caller-visible conditions from a pipeline run.
type RecommendationMeta struct {
	SkippedSources         []SourceType `json:"skipped_sources,omitempty"`
	ExtractionWarnings     int          `json:"extraction_warnings,omitempty"`
	GenerationUnavailable  bool         `json:"generation_unavailable,omitempty"`
	ClassificationFallback bool         `json:"classification_fallback,omitempty"`
	CacheHit               bool         `json:"cache_hit,omitempty"`
}

// Recommendation is the pipeline's terminal artifact: the intent, the
// assessments it rests on, the grounding chunks and the generated narrative.
type Recommendation struct {
	ID            string             `json:"id"`
	Intent        Intent             `json:"intent"`
	Assessments   []Assessment       `json:"assessments"`
	Chunks        []RetrievedChunk   `json:"chunks,omitempty"`
	Narrative     string             `json:"narrative"`
	LowConfidence bool               `json:"low_confidence,omitempty"`
	Meta          RecommendationMeta `json:"meta"`
	CreatedAt     time.Time          `json:"created_at"`
}
