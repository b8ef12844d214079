package patterns

import (
	"testing"
	"time"

	"github.com/advisorstack/oracle-advisor/internal/models"
)

func recWith(assessments ...models.Assessment) *models.Recommendation {
	return &models.Recommendation{Assessments: assessments}
}

func TestMineAggregatesRecurringIssues(t *testing.T) {
	miner := NewMiner(time.Hour, nil)

	slow := models.Assessment{RuleID: "elapsed-critical", Subject: "sql:q1", Severity: models.SeverityCritical}
	scan := models.Assessment{RuleID: "fts-warning", Subject: "sql:q2", Severity: models.SeverityWarning}

	miner.Record(recWith(slow, scan))
	miner.Record(recWith(slow))
	miner.Record(recWith(slow))

	issues := miner.Mine(2)
	if len(issues) != 1 {
		t.Fatalf("expected one recurring issue, got %+v", issues)
	}
	if issues[0].RuleID != "elapsed-critical" || issues[0].Count != 3 {
		t.Errorf("unexpected issue: %+v", issues[0])
	}
	if issues[0].MaxSeverity != models.SeverityCritical {
		t.Errorf("unexpected severity: %s", issues[0].MaxSeverity)
	}
}

func TestMineOrdersByCountThenSeverity(t *testing.T) {
	miner := NewMiner(time.Hour, nil)

	a := models.Assessment{RuleID: "a-rule", Subject: "s1", Severity: models.SeverityWarning}
	b := models.Assessment{RuleID: "b-rule", Subject: "s2", Severity: models.SeverityCritical}

	miner.Record(recWith(a, b))
	miner.Record(recWith(a, b))
	miner.Record(recWith(a))

	issues := miner.Mine(2)
	if len(issues) != 2 {
		t.Fatalf("expected two issues, got %+v", issues)
	}
	if issues[0].RuleID != "a-rule" || issues[1].RuleID != "b-rule" {
		t.Errorf("expected count ordering, got %s then %s", issues[0].RuleID, issues[1].RuleID)
	}
}

func TestMineIgnoresSingletons(t *testing.T) {
	miner := NewMiner(time.Hour, nil)
	miner.Record(recWith(models.Assessment{RuleID: "once", Subject: "s"}))

	if issues := miner.Mine(2); len(issues) != 0 {
		t.Errorf("singleton must not be reported, got %+v", issues)
	}
}

func TestMinerWindowPrunesOldObservations(t *testing.T) {
	miner := NewMiner(10*time.Millisecond, nil)
	old := models.Assessment{RuleID: "stale", Subject: "s"}
	miner.Record(recWith(old))
	miner.Record(recWith(old))

	time.Sleep(25 * time.Millisecond)
	if issues := miner.Mine(2); len(issues) != 0 {
		t.Errorf("expired observations must be pruned, got %+v", issues)
	}
}
