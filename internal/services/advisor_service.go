package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/advisorstack/oracle-advisor/internal/engine"
	"github.com/advisorstack/oracle-advisor/internal/metrics"
	"github.com/advisorstack/oracle-advisor/internal/models"
	"github.com/advisorstack/oracle-advisor/internal/patterns"
	"github.com/advisorstack/oracle-advisor/internal/utils"
)

// Analyzer runs one analysis cycle; satisfied by engine.Pipeline.
type Analyzer interface {
	Run(ctx context.Context, req models.AnalysisRequest) (*models.Recommendation, error)
}

// AdvisorService fronts the pipeline with validation, latency tracking and
// metrics observation.
type AdvisorService struct {
	logger    *slog.Logger
	pipeline  Analyzer
	miner     *patterns.Miner
	latencies *utils.LatencyTracker
}

// NewAdvisorService constructs the advisor service facade. The miner is
// optional; when nil, recurring-issue tracking is disabled.
func NewAdvisorService(logger *slog.Logger, pipeline Analyzer, miner *patterns.Miner) *AdvisorService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdvisorService{
		logger:    logger,
		pipeline:  pipeline,
		miner:     miner,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// Analyze validates the request, runs the pipeline and records observability
// signals. A generation outage is reported as a partial result: the
// recommendation is returned alongside the error.
func (s *AdvisorService) Analyze(ctx context.Context, req models.AnalysisRequest) (*models.Recommendation, error) {
	if req.RequestText == "" && req.Intent == "" {
		return nil, utils.NewAppError("services.Analyze", "request text or explicit intent required", nil)
	}
	if req.Intent != "" && !req.Intent.Valid() {
		return nil, utils.NewAppError("services.Analyze", "unknown intent "+string(req.Intent), nil)
	}
	if req.TimeRange.End.IsZero() {
		req.TimeRange.End = time.Now().UTC()
	}
	if req.TimeRange.Start.IsZero() {
		req.TimeRange.Start = req.TimeRange.End.Add(-time.Hour)
	}

	s.logger.Debug("analysis requested",
		slog.String("intent", string(req.Intent)), slog.Int("top_k", req.TopK))

	start := time.Now()
	rec, err := s.pipeline.Run(ctx, req)
	duration := time.Since(start)

	switch {
	case errors.Is(err, engine.ErrGenerationUnavailable):
		metrics.ObserveAnalysis(intentLabel(rec, req), duration, metrics.OutcomePartial)
		s.logger.Warn("analysis degraded to partial result", slog.Any("error", err))
		return rec, err
	case err != nil:
		metrics.ObserveAnalysis(intentLabel(rec, req), duration, metrics.OutcomeError)
		s.logger.Error("analysis failed", slog.Any("error", err))
		return nil, utils.NewAppError("services.Analyze", "analysis failed", err)
	}

	s.latencies.Observe(duration)
	if s.miner != nil {
		s.miner.Record(rec)
	}
	metrics.ObserveAnalysis(string(rec.Intent), duration, metrics.OutcomeSuccess)
	if rec.Meta.CacheHit {
		metrics.ObserveCacheHit()
	} else {
		metrics.ObserveCacheMiss()
	}
	if rec.LowConfidence {
		metrics.ObserveUngroundedNarrative()
	}
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		p95 := s.latencies.Percentile(95)
		s.logger.Info("analysis latency", slog.Duration("p95", p95), slog.Int("samples", count))
	}
	return rec, nil
}

// LatencyP95 returns the current p95 analysis latency.
func (s *AdvisorService) LatencyP95() time.Duration {
	return s.latencies.Percentile(95)
}

// RecurringIssues reports (rule, subject) pairs flagged repeatedly across
// recent successful analyses.
func (s *AdvisorService) RecurringIssues(minCount int) []patterns.RecurringIssue {
	if s.miner == nil {
		return nil
	}
	return s.miner.Mine(minCount)
}

func intentLabel(rec *models.Recommendation, req models.AnalysisRequest) string {
	if rec != nil {
		return string(rec.Intent)
	}
	return string(req.Intent)
}
