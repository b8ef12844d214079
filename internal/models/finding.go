package models

import "time"

// Domain tags group findings by the analysis area they feed.
type Domain string

const (
	DomainPerformance Domain = "performance"
	DomainSecurity    Domain = "security"
	DomainAnomaly     Domain = "anomaly"
	DomainBackup      Domain = "backup"
	DomainRecovery    Domain = "recovery"
)

// Finding is a normalized fact derived from one or more records. Never
// mutated after creation.
type Finding struct {
	Metric     string
	Value      float64
	Label      string
	Domain     Domain
	Subject    string
	RecordIDs  []string
	ObservedAt time.Time
}

// ExtractionWarning reports a record the extractor could not interpret.
// Warnings are collected, never fatal to a batch.
type ExtractionWarning struct {
	RecordID string
	Source   SourceType
	Reason   string
}
