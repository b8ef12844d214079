package patterns

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/advisorstack/oracle-advisor/internal/models"
)

// RecurringIssue is an aggregated view of one (rule, subject) pair seen
// across recent analyses.
type RecurringIssue struct {
	RuleID      string          `json:"rule_id"`
	Subject     string          `json:"subject"`
	Count       int             `json:"count"`
	MaxSeverity models.Severity `json:"max_severity"`
	LastSeen    time.Time       `json:"last_seen"`
}

// Miner aggregates assessments from completed analyses into recurring-issue
// frequencies. It keeps a bounded window of recent observations so a noisy
// subject from last month does not dominate today's report.
type Miner struct {
	mu     sync.Mutex
	window time.Duration
	maxObs int
	obs    []observation
	logger *slog.Logger
}

type observation struct {
	ruleID   string
	subject  string
	severity models.Severity
	seenAt   time.Time
}

// NewMiner constructs a miner keeping observations inside the given window.
func NewMiner(window time.Duration, logger *slog.Logger) *Miner {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &Miner{window: window, maxObs: 10_000, logger: logger}
}

// Record folds one recommendation's assessments into the miner.
func (m *Miner) Record(rec *models.Recommendation) {
	if rec == nil || len(rec.Assessments) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for _, a := range rec.Assessments {
		m.obs = append(m.obs, observation{
			ruleID:   a.RuleID,
			subject:  a.Subject,
			severity: a.Severity,
			seenAt:   now,
		})
	}
	m.prune(now)
}

// Mine returns recurring issues seen at least minCount times inside the
// window, ordered by count descending, then severity, then rule ID.
func (m *Miner) Mine(minCount int) []RecurringIssue {
	if minCount <= 0 {
		minCount = 2
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prune(time.Now())

	byKey := make(map[string]*RecurringIssue)
	for _, o := range m.obs {
		key := o.ruleID + "|" + o.subject
		issue, ok := byKey[key]
		if !ok {
			issue = &RecurringIssue{RuleID: o.ruleID, Subject: o.subject}
			byKey[key] = issue
		}
		issue.Count++
		if o.severity > issue.MaxSeverity {
			issue.MaxSeverity = o.severity
		}
		if o.seenAt.After(issue.LastSeen) {
			issue.LastSeen = o.seenAt
		}
	}

	out := make([]RecurringIssue, 0, len(byKey))
	for _, issue := range byKey {
		if issue.Count >= minCount {
			out = append(out, *issue)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if out[i].MaxSeverity != out[j].MaxSeverity {
			return out[i].MaxSeverity > out[j].MaxSeverity
		}
		return out[i].RuleID < out[j].RuleID
	})
	return out
}

// prune drops observations older than the window; callers hold the lock.
func (m *Miner) prune(now time.Time) {
	cutoff := now.Add(-m.window)
	kept := m.obs[:0]
	for _, o := range m.obs {
		if o.seenAt.After(cutoff) {
			kept = append(kept, o)
		}
	}
	if len(kept) > m.maxObs {
		kept = kept[len(kept)-m.maxObs:]
	}
	m.obs = kept
}
