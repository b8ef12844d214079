package models

import "time"

// SourceType enumerates the telemetry feeds the pipeline understands.
type SourceType string

const (
	SourceQueryPlan    SourceType = "query_plan"
	SourceAuditEvent   SourceType = "audit_event"
	SourceBackupConfig SourceType = "backup_config"
)

// AllSourceTypes lists every known feed in a stable order.
func AllSourceTypes() []SourceType {
	return []SourceType{SourceQueryPlan, SourceAuditEvent, SourceBackupConfig}
}

// Record is one telemetry unit. Exactly one payload pointer is set, matching
// Source; records are never mutated after extraction.
type Record struct {
	ID        string
	Source    SourceType
	Timestamp time.Time
	Raw       string

	Plan   *PlanPayload
	Audit  *AuditPayload
	Backup *BackupPayload
}

// PlanPayload holds the fields of one captured SQL execution plan.
type PlanPayload struct {
	SQLID         string          `json:"sql_id"`
	Statement     string          `json:"statement"`
	OptimizerCost float64         `json:"optimizer_cost"`
	ElapsedMs     float64         `json:"elapsed_ms"`
	RowsProcessed float64         `json:"rows_processed"`
	Operations    []PlanOperation `json:"operations,omitempty"`
}

// PlanOperation is a single step of an execution plan.
type PlanOperation struct {
	Depth      int     `json:"depth"`
	Operation  string  `json:"operation"`
	ObjectName string  `json:"object_name,omitempty"`
	Cost       float64 `json:"cost"`
	Rows       float64 `json:"rows"`
}

// AuditPayload holds one audit trail entry (UNIFIED_AUDIT_TRAIL / AUD$ shape).
type AuditPayload struct {
	Username   string `json:"username"`
	Action     string `json:"action"`
	ObjectName string `json:"object_name,omitempty"`
	SQLText    string `json:"sql_text,omitempty"`
	ClientIP   string `json:"client_ip,omitempty"`
	ReturnCode int    `json:"return_code"`
	SessionID  string `json:"session_id,omitempty"`
}

// BackupPayload holds a backup/recovery configuration snapshot.
type BackupPayload struct {
	DatabaseName       string        `json:"database_name"`
	LastBackupAt       time.Time     `json:"last_backup_at"`
	BackupType         string        `json:"backup_type"`
	RedundancyLevel    int           `json:"redundancy_level"`
	ArchivelogEnabled  bool          `json:"archivelog_enabled"`
	TargetRPOHours     float64       `json:"target_rpo_hours"`
	SizeGB             float64       `json:"size_gb,omitempty"`
	LastBackupDuration time.Duration `json:"last_backup_duration,omitempty"`
}
