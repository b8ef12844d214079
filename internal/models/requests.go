package models

import "time"

// AnalysisRequest represents one pipeline invocation. Menu-driven callers set
// Intent explicitly and skip classification; free-form callers leave it empty
// and supply RequestText.
type AnalysisRequest struct {
	RequestText string
	Intent      Intent
	TimeRange   TimeRange
	TopK        int
}

// TimeRange bounds the telemetry window for one analysis.
type TimeRange struct {
	Start time.Time
	End   time.Time
}
