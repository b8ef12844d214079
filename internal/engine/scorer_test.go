package engine

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/advisorstack/oracle-advisor/internal/models"
)

var scoreBase = time.Date(2026, 8, 18, 12, 0, 0, 0, time.UTC)

func perfProfile() *Profile {
	return &Profile{
		Intent: models.IntentPerformanceAnalysis,
		Rules: []Rule{
			{ID: "elapsed-warning", Metric: "elapsed_ms", Op: "gt", Threshold: 5000,
				Severity: models.SeverityWarning, Confidence: 0.7, Summary: "statement runs slow"},
			{ID: "elapsed-critical", Metric: "elapsed_ms", Op: "gt", Threshold: 20000,
				Severity: models.SeverityCritical, Confidence: 0.9, Summary: "statement runs far over budget"},
			{ID: "fts-warning", Metric: "full_table_scan", Op: "ge", Threshold: 1,
				Severity: models.SeverityWarning, Confidence: 0.6, Summary: "full table scan detected"},
		},
	}
}

func securityProfile() *Profile {
	return &Profile{
		Intent: models.IntentSecurityAudit,
		Rules: []Rule{
			{ID: "attack-critical", Metric: "attack_pattern", Op: "ge", Threshold: 1,
				Severity: models.SeverityCritical, Confidence: 0.95, Summary: "attack signature matched"},
			{ID: "login-burst", Metric: "failed_login",
				Severity: models.SeverityCritical, Confidence: 0.85, Summary: "repeated failed logins",
				Window: &Window{Duration: 5 * time.Minute, MinCount: 3}},
		},
	}
}

func elapsedFinding(subject string, value float64, at time.Time) models.Finding {
	return models.Finding{
		Metric:     "elapsed_ms",
		Value:      value,
		Domain:     models.DomainPerformance,
		Subject:    subject,
		RecordIDs:  []string{"rec-" + subject},
		ObservedAt: at,
	}
}

func TestScoreHighestSeverityWins(t *testing.T) {
	// Finding over both thresholds yields exactly one assessment, critical.
	findings := []models.Finding{elapsedFinding("sql:q1", 25000, scoreBase)}

	got := NewScorer().Score(findings, perfProfile())
	if len(got) != 1 {
		t.Fatalf("expected exactly one assessment, got %d", len(got))
	}
	if got[0].Severity != models.SeverityCritical {
		t.Errorf("expected critical, got %s", got[0].Severity)
	}
	if got[0].RuleID != "elapsed-critical" {
		t.Errorf("expected elapsed-critical, got %s", got[0].RuleID)
	}
}

func TestScoreIdempotent(t *testing.T) {
	findings := []models.Finding{
		elapsedFinding("sql:q1", 25000, scoreBase),
		elapsedFinding("sql:q2", 6000, scoreBase),
		{Metric: "full_table_scan", Value: 1, Label: "ORDERS", Subject: "sql:q2",
			Domain: models.DomainPerformance, ObservedAt: scoreBase},
	}
	scorer := NewScorer()
	scorer.now = func() time.Time { return scoreBase }

	first := scorer.Score(findings, perfProfile())
	second := scorer.Score(findings, perfProfile())
	if !reflect.DeepEqual(first, second) {
		t.Errorf("score is not deterministic:\nfirst  %+v\nsecond %+v", first, second)
	}
}

func TestScoreDedupLatestSupersedes(t *testing.T) {
	earlier := elapsedFinding("sql:q1", 21000, scoreBase.Add(-time.Hour))
	later := elapsedFinding("sql:q1", 30000, scoreBase)
	later.RecordIDs = []string{"rec-latest"}

	got := NewScorer().Score([]models.Finding{earlier, later}, perfProfile())
	if len(got) != 1 {
		t.Fatalf("expected one deduplicated assessment, got %d", len(got))
	}
	if got[0].Finding.Value != 30000 {
		t.Errorf("latest observation must supersede, got value %g", got[0].Finding.Value)
	}

	// input order must not matter
	reversed := NewScorer().Score([]models.Finding{later, earlier}, perfProfile())
	if len(reversed) != 1 || reversed[0].Finding.Value != 30000 {
		t.Errorf("dedup depends on input order: %+v", reversed)
	}
}

func TestScoreMonotonicSeverity(t *testing.T) {
	low := NewScorer().Score([]models.Finding{elapsedFinding("sql:a", 6000, scoreBase)}, perfProfile())
	high := NewScorer().Score([]models.Finding{elapsedFinding("sql:b", 25000, scoreBase)}, perfProfile())
	if len(low) != 1 || len(high) != 1 {
		t.Fatalf("expected one assessment each, got %d and %d", len(low), len(high))
	}
	if high[0].Severity < low[0].Severity {
		t.Errorf("severity not monotonic: %g -> %s, %g -> %s",
			6000.0, low[0].Severity, 25000.0, high[0].Severity)
	}
}

func TestScoreTotalOrder(t *testing.T) {
	profile := &Profile{
		Intent: models.IntentPerformanceAnalysis,
		Rules: []Rule{
			{ID: "b-rule", Metric: "m1", Op: "gt", Threshold: 0, Severity: models.SeverityWarning, Confidence: 0.5},
			{ID: "a-rule", Metric: "m2", Op: "gt", Threshold: 0, Severity: models.SeverityWarning, Confidence: 0.5},
			{ID: "c-rule", Metric: "m3", Op: "gt", Threshold: 0, Severity: models.SeverityCritical, Confidence: 0.4},
			{ID: "d-rule", Metric: "m4", Op: "gt", Threshold: 0, Severity: models.SeverityWarning, Confidence: 0.9},
		},
	}
	findings := []models.Finding{
		{Metric: "m1", Value: 1, Subject: "s", ObservedAt: scoreBase},
		{Metric: "m2", Value: 1, Subject: "s", ObservedAt: scoreBase},
		{Metric: "m3", Value: 1, Subject: "s", ObservedAt: scoreBase},
		{Metric: "m4", Value: 1, Subject: "s", ObservedAt: scoreBase},
	}

	got := NewScorer().Score(findings, profile)
	var order []string
	for _, a := range got {
		order = append(order, a.RuleID)
	}
	// severity desc, then confidence desc, then rule ID asc
	want := []string{"c-rule", "d-rule", "a-rule", "b-rule"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("expected order %v, got %v", want, order)
	}
}

func TestScoreWindowRule(t *testing.T) {
	mkLogin := func(id string, at time.Time) models.Finding {
		return models.Finding{
			Metric: "failed_login", Value: 1, Subject: "user:SCOTT",
			Domain: models.DomainSecurity, RecordIDs: []string{id}, ObservedAt: at,
		}
	}

	t.Run("burst inside window fires", func(t *testing.T) {
		findings := []models.Finding{
			mkLogin("r1", scoreBase),
			mkLogin("r2", scoreBase.Add(90*time.Second)),
			mkLogin("r3", scoreBase.Add(3*time.Minute)),
		}
		got := NewScorer().Score(findings, securityProfile())
		if len(got) != 1 {
			t.Fatalf("expected one assessment, got %d", len(got))
		}
		if got[0].RuleID != "login-burst" {
			t.Errorf("unexpected rule %s", got[0].RuleID)
		}
		if got[0].Finding.Value != 3 {
			t.Errorf("aggregate value should be the window count, got %g", got[0].Finding.Value)
		}
		if len(got[0].Finding.RecordIDs) != 3 {
			t.Errorf("expected 3 contributing records, got %v", got[0].Finding.RecordIDs)
		}
	})

	t.Run("spread outside window stays quiet", func(t *testing.T) {
		findings := []models.Finding{
			mkLogin("r1", scoreBase),
			mkLogin("r2", scoreBase.Add(10*time.Minute)),
			mkLogin("r3", scoreBase.Add(20*time.Minute)),
		}
		if got := NewScorer().Score(findings, securityProfile()); len(got) != 0 {
			t.Errorf("expected no assessments, got %+v", got)
		}
	})

	t.Run("subjects do not mix", func(t *testing.T) {
		findings := []models.Finding{
			mkLogin("r1", scoreBase),
			mkLogin("r2", scoreBase.Add(time.Minute)),
			{Metric: "failed_login", Value: 1, Subject: "user:OTHER",
				RecordIDs: []string{"r3"}, ObservedAt: scoreBase.Add(2 * time.Minute)},
		}
		if got := NewScorer().Score(findings, securityProfile()); len(got) != 0 {
			t.Errorf("counts must not cross subjects, got %+v", got)
		}
	})
}

func TestScoreSummaryKeepsPlainDecimals(t *testing.T) {
	profile := &Profile{
		Intent: models.IntentPerformanceAnalysis,
		Rules: []Rule{
			{ID: "rows-critical", Metric: "rows_processed", Op: "gt", Threshold: 10000000,
				Severity: models.SeverityCritical, Confidence: 0.8, Summary: "statement processed over 10M rows"},
		},
	}
	findings := []models.Finding{{
		Metric: "rows_processed", Value: 25000000,
		Subject: "sql:q1", ObservedAt: scoreBase,
	}}

	got := NewScorer().Score(findings, profile)
	if len(got) != 1 {
		t.Fatalf("expected one assessment, got %d", len(got))
	}
	if !strings.Contains(got[0].Summary, "rows_processed=25000000") {
		t.Errorf("large value not rendered in plain decimal: %q", got[0].Summary)
	}
}

func TestScoreContainsRule(t *testing.T) {
	profile := &Profile{
		Intent: models.IntentSecurityAudit,
		Rules: []Rule{
			{ID: "injection", Metric: "attack_pattern", Op: "contains", Match: "sql_injection",
				Severity: models.SeverityCritical, Confidence: 0.95},
		},
	}
	findings := []models.Finding{
		{Metric: "attack_pattern", Value: 1, Label: "sql_injection", Subject: "user:X", ObservedAt: scoreBase},
		{Metric: "attack_pattern", Value: 1, Label: "sensitive_access", Subject: "user:Y", ObservedAt: scoreBase},
	}

	got := NewScorer().Score(findings, profile)
	if len(got) != 1 || got[0].Subject != "user:X" {
		t.Errorf("expected injection match for user:X only, got %+v", got)
	}
}

func TestScoreNilProfileOrEmptyInput(t *testing.T) {
	scorer := NewScorer()
	if got := scorer.Score(nil, perfProfile()); len(got) != 0 {
		t.Errorf("no findings should score nothing, got %+v", got)
	}
	if got := scorer.Score([]models.Finding{elapsedFinding("s", 9e9, scoreBase)}, nil); len(got) != 0 {
		t.Errorf("nil profile should score nothing, got %+v", got)
	}
}
