package engine

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/advisorstack/oracle-advisor/internal/models"
)

// Scorer evaluates findings against a profile's rule pack.
type Scorer struct {
	now func() time.Time
}

// NewScorer creates a scorer.
func NewScorer() *Scorer {
	return &Scorer{now: time.Now}
}

// Score applies the profile to the findings and returns deduplicated,
// totally ordered assessments.
//
// Scalar rules evaluate per finding; when several rules match the same
// finding, the highest severity wins, ties broken by registration order.
// Window rules aggregate findings per subject over a sliding window. Repeat
// evaluations of a (rule, subject) pair keep only the latest assessment.
// Output order: severity desc, confidence desc, rule ID asc.
func (s *Scorer) Score(findings []models.Finding, profile *Profile) []models.Assessment {
	if profile == nil || len(findings) == 0 {
		return nil
	}
	now := s.now()
	byKey := make(map[string]models.Assessment)

	for _, f := range findings {
		if a, ok := s.scoreScalar(f, profile, now); ok {
			keep(byKey, a)
		}
	}
	for _, a := range s.scoreWindows(findings, profile, now) {
		keep(byKey, a)
	}

	out := make([]models.Assessment, 0, len(byKey))
	for _, a := range byKey {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Severity != out[j].Severity {
			return out[i].Severity > out[j].Severity
		}
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].RuleID < out[j].RuleID
	})
	return out
}

// keep applies latest-supersedes dedup by (rule, subject).
func keep(byKey map[string]models.Assessment, a models.Assessment) {
	prev, exists := byKey[a.Key()]
	if exists && prev.Finding.ObservedAt.After(a.Finding.ObservedAt) {
		return
	}
	byKey[a.Key()] = a
}

// scoreScalar evaluates every non-window rule against one finding and
// returns the winning assessment, if any rule matched.
func (s *Scorer) scoreScalar(f models.Finding, profile *Profile, now time.Time) (models.Assessment, bool) {
	var (
		winner Rule
		found  bool
	)
	for _, r := range profile.Rules {
		if r.Window != nil || r.Metric != f.Metric {
			continue
		}
		if !matches(r, f) {
			continue
		}
		// registration order breaks severity ties, so strict > keeps the
		// earlier rule
		if !found || r.Severity > winner.Severity {
			winner = r
			found = true
		}
	}
	if !found {
		return models.Assessment{}, false
	}
	return models.Assessment{
		RuleID:     winner.ID,
		Subject:    f.Subject,
		Severity:   winner.Severity,
		Confidence: winner.Confidence,
		Summary:    summarize(winner, f),
		Finding:    f,
		CreatedAt:  now,
	}, true
}

// scoreWindows evaluates aggregate rules. For each (rule, subject) the
// findings are time-sorted and a window slides across them; the rule fires
// when any window of the configured duration holds at least min_count
// findings. The assessment's finding carries the latest observation and all
// contributing record IDs.
func (s *Scorer) scoreWindows(findings []models.Finding, profile *Profile, now time.Time) []models.Assessment {
	var out []models.Assessment
	for _, r := range profile.Rules {
		if r.Window == nil {
			continue
		}
		bySubject := make(map[string][]models.Finding)
		for _, f := range findings {
			if f.Metric == r.Metric {
				bySubject[f.Subject] = append(bySubject[f.Subject], f)
			}
		}
		for subject, group := range bySubject {
			sort.Slice(group, func(i, j int) bool {
				return group[i].ObservedAt.Before(group[j].ObservedAt)
			})
			hit, hitWindow := slideWindow(group, r.Window.Duration, r.Window.MinCount)
			if !hit {
				continue
			}
			agg := hitWindow[len(hitWindow)-1]
			agg.Value = float64(len(hitWindow))
			agg.RecordIDs = collectRecordIDs(hitWindow)
			out = append(out, models.Assessment{
				RuleID:     r.ID,
				Subject:    subject,
				Severity:   r.Severity,
				Confidence: r.Confidence,
				Summary:    summarize(r, agg),
				Finding:    agg,
				CreatedAt:  now,
			})
		}
	}
	return out
}

// slideWindow returns the densest qualifying window, preferring later ones.
func slideWindow(sorted []models.Finding, duration time.Duration, minCount int) (bool, []models.Finding) {
	var best []models.Finding
	for start := 0; start < len(sorted); start++ {
		end := start
		for end < len(sorted) && sorted[end].ObservedAt.Sub(sorted[start].ObservedAt) <= duration {
			end++
		}
		if end-start >= minCount && end-start >= len(best) {
			best = sorted[start:end]
		}
	}
	return len(best) > 0, best
}

func collectRecordIDs(findings []models.Finding) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, f := range findings {
		for _, id := range f.RecordIDs {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}

func matches(r Rule, f models.Finding) bool {
	switch r.Op {
	case "gt":
		return f.Value > r.Threshold
	case "ge":
		return f.Value >= r.Threshold
	case "lt":
		return f.Value < r.Threshold
	case "eq":
		return f.Value == r.Threshold
	case "contains":
		return strings.Contains(strings.ToLower(f.Label), strings.ToLower(r.Match))
	default:
		return false
	}
}

func summarize(r Rule, f models.Finding) string {
	base := r.Summary
	if base == "" {
		base = fmt.Sprintf("rule %s matched on %s", r.ID, f.Metric)
	}
	if f.Label != "" {
		return fmt.Sprintf("%s (%s: %s=%s, %s)", base, f.Subject, f.Metric, formatValue(f.Value), f.Label)
	}
	return fmt.Sprintf("%s (%s: %s=%s)", base, f.Subject, f.Metric, formatValue(f.Value))
}

// formatValue renders values in plain decimal. Scientific notation would
// defeat the grounding check's token matching for large counts.
func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
