package extractors

import (
	"time"

	"github.com/advisorstack/oracle-advisor/internal/models"
)

// BackupExtractor derives continuity metrics from backup configuration
// records. Subjects are keyed by database name.
type BackupExtractor struct {
	now func() time.Time
}

// NewBackupExtractor creates a backup configuration extractor.
func NewBackupExtractor() *BackupExtractor {
	return &BackupExtractor{now: time.Now}
}

// Source returns the source type this extractor handles.
func (e *BackupExtractor) Source() models.SourceType {
	return models.SourceBackupConfig
}

// Extract emits backup_age_hours, rpo_gap_hours, redundancy_level and
// archivelog_disabled findings per database.
func (e *BackupExtractor) Extract(records []models.Record) ([]models.Finding, []models.ExtractionWarning) {
	var findings []models.Finding
	var warnings []models.ExtractionWarning
	now := e.now()

	for _, rec := range records {
		if rec.Backup == nil {
			warnings = append(warnings, models.ExtractionWarning{
				RecordID: rec.ID,
				Source:   rec.Source,
				Reason:   "missing backup payload",
			})
			continue
		}
		backup := rec.Backup
		if backup.DatabaseName == "" {
			warnings = append(warnings, models.ExtractionWarning{
				RecordID: rec.ID,
				Source:   rec.Source,
				Reason:   "backup record has no database name",
			})
			continue
		}
		subject := "db:" + backup.DatabaseName

		ageHours := now.Sub(backup.LastBackupAt).Hours()
		if backup.LastBackupAt.IsZero() {
			// never backed up: report an age beyond any sane RPO tier
			ageHours = 24 * 365
		}
		findings = append(findings, models.Finding{
			Metric:     "backup_age_hours",
			Value:      ageHours,
			Domain:     models.DomainBackup,
			Subject:    subject,
			RecordIDs:  []string{rec.ID},
			ObservedAt: rec.Timestamp,
		})

		if backup.TargetRPOHours > 0 {
			gap := ageHours - backup.TargetRPOHours
			if gap < 0 {
				gap = 0
			}
			findings = append(findings, models.Finding{
				Metric:     "rpo_gap_hours",
				Value:      gap,
				Domain:     models.DomainBackup,
				Subject:    subject,
				RecordIDs:  []string{rec.ID},
				ObservedAt: rec.Timestamp,
			})
		}

		findings = append(findings, models.Finding{
			Metric:     "redundancy_level",
			Value:      float64(backup.RedundancyLevel),
			Domain:     models.DomainBackup,
			Subject:    subject,
			RecordIDs:  []string{rec.ID},
			ObservedAt: rec.Timestamp,
		})

		if !backup.ArchivelogEnabled {
			findings = append(findings, models.Finding{
				Metric:     "archivelog_disabled",
				Value:      1,
				Domain:     models.DomainRecovery,
				Subject:    subject,
				RecordIDs:  []string{rec.ID},
				ObservedAt: rec.Timestamp,
			})
		}
	}
	return findings, warnings
}
