package extractors

import (
	"github.com/advisorstack/oracle-advisor/internal/models"
)

// Extractor converts records of one source type into findings. Extractors are
// pure: a malformed record yields a warning, never an error for the batch.
type Extractor interface {
	Source() models.SourceType
	Extract(records []models.Record) ([]models.Finding, []models.ExtractionWarning)
}

// Registry dispatches records to the extractor registered for their source
// type. Records of unknown source types become warnings.
type Registry struct {
	extractors map[models.SourceType]Extractor
}

// NewRegistry builds a registry over the given extractors.
func NewRegistry(extractors ...Extractor) *Registry {
	byType := make(map[models.SourceType]Extractor, len(extractors))
	for _, ex := range extractors {
		byType[ex.Source()] = ex
	}
	return &Registry{extractors: byType}
}

// DefaultRegistry wires the three Oracle telemetry extractors.
func DefaultRegistry() *Registry {
	return NewRegistry(NewPlanExtractor(), NewAuditExtractor(), NewBackupExtractor())
}

// Extract groups records by source type and runs each group through its
// extractor. Output ordering follows the input record ordering per group.
func (r *Registry) Extract(records []models.Record) ([]models.Finding, []models.ExtractionWarning) {
	grouped := make(map[models.SourceType][]models.Record)
	var findings []models.Finding
	var warnings []models.ExtractionWarning

	for _, rec := range records {
		if _, ok := r.extractors[rec.Source]; !ok {
			warnings = append(warnings, models.ExtractionWarning{
				RecordID: rec.ID,
				Source:   rec.Source,
				Reason:   "no extractor registered for source type",
			})
			continue
		}
		grouped[rec.Source] = append(grouped[rec.Source], rec)
	}

	for _, source := range models.AllSourceTypes() {
		ex, ok := r.extractors[source]
		if !ok {
			continue
		}
		batch := grouped[source]
		if len(batch) == 0 {
			continue
		}
		f, w := ex.Extract(batch)
		findings = append(findings, f...)
		warnings = append(warnings, w...)
	}
	return findings, warnings
}
