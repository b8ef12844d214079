package models

import (
	"fmt"
	"strings"
	"time"
)

// Severity captures impact levels with a total order: info < warning < critical.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeverityWarning:
		return "warning"
	default:
		return "info"
	}
}

// ParseSeverity maps a string to a Severity, defaulting unknown values to info.
func ParseSeverity(value string) Severity {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "critical":
		return SeverityCritical
	case "warning":
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// MarshalYAML renders severities as their lowercase names in rule packs.
func (s Severity) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}

// UnmarshalYAML accepts the lowercase severity names used by profile files.
func (s *Severity) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	*s = ParseSeverity(raw)
	return nil
}

// MarshalJSON renders severities as strings on the wire.
func (s Severity) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", s.String())), nil
}

// UnmarshalJSON accepts quoted severity names.
func (s *Severity) UnmarshalJSON(data []byte) error {
	*s = ParseSeverity(strings.Trim(string(data), `"`))
	return nil
}

// Assessment is a scored, classified finding. Deduplicated by (RuleID, Subject);
// the most recent evaluation supersedes earlier ones.
type Assessment struct {
	RuleID     string    `json:"rule_id"`
	Subject    string    `json:"subject"`
	Severity   Severity  `json:"severity"`
	Confidence float64   `json:"confidence"`
	Summary    string    `json:"summary"`
	Finding    Finding   `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// Key returns the deduplication key for the assessment.
func (a Assessment) Key() string {
	return a.RuleID + "|" + a.Subject
}
