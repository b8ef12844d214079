package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/advisorstack/oracle-advisor/internal/engine"
	"github.com/advisorstack/oracle-advisor/internal/models"
	"github.com/advisorstack/oracle-advisor/internal/patterns"
)

type fakeAnalyzer struct {
	rec   *models.Recommendation
	err   error
	calls int
	seen  models.AnalysisRequest
}

func (f *fakeAnalyzer) Run(ctx context.Context, req models.AnalysisRequest) (*models.Recommendation, error) {
	f.calls++
	f.seen = req
	return f.rec, f.err
}

func TestAnalyzeRejectsEmptyRequest(t *testing.T) {
	svc := NewAdvisorService(nil, &fakeAnalyzer{}, nil)
	if _, err := svc.Analyze(context.Background(), models.AnalysisRequest{}); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestAnalyzeRejectsUnknownIntent(t *testing.T) {
	svc := NewAdvisorService(nil, &fakeAnalyzer{}, nil)
	req := models.AnalysisRequest{Intent: models.Intent("database_magic")}
	if _, err := svc.Analyze(context.Background(), req); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestAnalyzeDefaultsTimeRange(t *testing.T) {
	analyzer := &fakeAnalyzer{rec: &models.Recommendation{Intent: models.IntentGeneralChat}}
	svc := NewAdvisorService(nil, analyzer, nil)

	if _, err := svc.Analyze(context.Background(), models.AnalysisRequest{RequestText: "hello"}); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	window := analyzer.seen.TimeRange
	if window.Start.IsZero() || window.End.IsZero() {
		t.Fatalf("time range not defaulted: %+v", window)
	}
	if got := window.End.Sub(window.Start); got != time.Hour {
		t.Errorf("expected one hour default window, got %v", got)
	}
}

func TestAnalyzeRecordsRecurringIssues(t *testing.T) {
	rec := &models.Recommendation{
		Intent: models.IntentPerformanceAnalysis,
		Assessments: []models.Assessment{
			{RuleID: "elapsed-critical", Subject: "sql:q1", Severity: models.SeverityCritical},
		},
	}
	miner := patterns.NewMiner(time.Hour, nil)
	svc := NewAdvisorService(nil, &fakeAnalyzer{rec: rec}, miner)

	for i := 0; i < 2; i++ {
		if _, err := svc.Analyze(context.Background(), models.AnalysisRequest{RequestText: "slow"}); err != nil {
			t.Fatalf("Analyze: %v", err)
		}
	}
	issues := svc.RecurringIssues(2)
	if len(issues) != 1 || issues[0].RuleID != "elapsed-critical" {
		t.Errorf("expected recurring issue to be mined, got %+v", issues)
	}
}

func TestAnalyzePartialResultPassedThrough(t *testing.T) {
	partial := &models.Recommendation{
		Intent: models.IntentPerformanceAnalysis,
		Meta:   models.RecommendationMeta{GenerationUnavailable: true},
	}
	analyzer := &fakeAnalyzer{rec: partial, err: engine.ErrGenerationUnavailable}
	svc := NewAdvisorService(nil, analyzer, nil)

	rec, err := svc.Analyze(context.Background(), models.AnalysisRequest{RequestText: "slow queries"})
	if !errors.Is(err, engine.ErrGenerationUnavailable) {
		t.Fatalf("expected ErrGenerationUnavailable, got %v", err)
	}
	if rec == nil || !rec.Meta.GenerationUnavailable {
		t.Error("partial recommendation must reach the caller")
	}
}

func TestAnalyzeWrapsPipelineFailure(t *testing.T) {
	analyzer := &fakeAnalyzer{err: errors.New("boom")}
	svc := NewAdvisorService(nil, analyzer, nil)

	if _, err := svc.Analyze(context.Background(), models.AnalysisRequest{RequestText: "x"}); err == nil {
		t.Fatal("expected wrapped error")
	}
}
