package extractors

import (
	"fmt"
	"strings"

	"github.com/advisorstack/oracle-advisor/internal/models"
)

// PlanExtractor derives performance metrics from Oracle execution plan
// records. Subjects are keyed by SQL ID so repeated captures of the same
// statement fold into one scoring subject.
type PlanExtractor struct{}

// NewPlanExtractor creates a query plan extractor.
func NewPlanExtractor() *PlanExtractor {
	return &PlanExtractor{}
}

// Source returns the source type this extractor handles.
func (e *PlanExtractor) Source() models.SourceType {
	return models.SourceQueryPlan
}

// Extract emits plan_cost, elapsed_ms, rows_processed and full_table_scan
// findings per plan record.
func (e *PlanExtractor) Extract(records []models.Record) ([]models.Finding, []models.ExtractionWarning) {
	var findings []models.Finding
	var warnings []models.ExtractionWarning

	for _, rec := range records {
		if rec.Plan == nil {
			warnings = append(warnings, models.ExtractionWarning{
				RecordID: rec.ID,
				Source:   rec.Source,
				Reason:   "missing plan payload",
			})
			continue
		}
		plan := rec.Plan
		if plan.SQLID == "" {
			warnings = append(warnings, models.ExtractionWarning{
				RecordID: rec.ID,
				Source:   rec.Source,
				Reason:   "plan record has no sql_id",
			})
			continue
		}
		subject := "sql:" + plan.SQLID

		findings = append(findings,
			models.Finding{
				Metric:     "plan_cost",
				Value:      plan.OptimizerCost,
				Domain:     models.DomainPerformance,
				Subject:    subject,
				RecordIDs:  []string{rec.ID},
				ObservedAt: rec.Timestamp,
			},
			models.Finding{
				Metric:     "elapsed_ms",
				Value:      plan.ElapsedMs,
				Domain:     models.DomainPerformance,
				Subject:    subject,
				RecordIDs:  []string{rec.ID},
				ObservedAt: rec.Timestamp,
			},
			models.Finding{
				Metric:     "rows_processed",
				Value:      plan.RowsProcessed,
				Domain:     models.DomainPerformance,
				Subject:    subject,
				RecordIDs:  []string{rec.ID},
				ObservedAt: rec.Timestamp,
			},
		)

		if obj, ok := fullTableScan(plan.Operations); ok {
			findings = append(findings, models.Finding{
				Metric:     "full_table_scan",
				Value:      1,
				Label:      obj,
				Domain:     models.DomainPerformance,
				Subject:    subject,
				RecordIDs:  []string{rec.ID},
				ObservedAt: rec.Timestamp,
			})
		}
	}
	return findings, warnings
}

// fullTableScan reports the first TABLE ACCESS FULL operation in a plan tree.
func fullTableScan(ops []models.PlanOperation) (string, bool) {
	for _, op := range ops {
		if strings.EqualFold(strings.TrimSpace(op.Operation), "TABLE ACCESS FULL") {
			if op.ObjectName != "" {
				return op.ObjectName, true
			}
			return fmt.Sprintf("depth-%d", op.Depth), true
		}
	}
	return "", false
}
