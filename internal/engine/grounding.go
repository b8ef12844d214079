package engine

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/advisorstack/oracle-advisor/internal/models"
)

// GroundingMode selects how narrative claims are matched against facts.
type GroundingMode string

const (
	// GroundingExact requires each numeric token to appear verbatim in the
	// supplied facts.
	GroundingExact GroundingMode = "exact"
	// GroundingTolerant compares numeric tokens as values with a relative
	// tolerance, so "25,000 ms" grounds against 25000.
	GroundingTolerant GroundingMode = "tolerant"
)

const tolerantRelativeError = 0.01

var (
	numericToken = regexp.MustCompile(`\d+(?:[.,]\d+)*(?:[eE][+-]?\d+)?`)
	// Oracle-style identifiers quoted or upper-cased in narratives.
	entityToken = regexp.MustCompile(`\b[A-Z][A-Z0-9_$]{2,}\b`)
)

// entityAllowlist covers upper-case tokens that are prose, not claims.
var entityAllowlist = map[string]struct{}{
	"SQL": {}, "DBA": {}, "RMAN": {}, "ORACLE": {}, "RPO": {}, "RTO": {},
	"DDL": {}, "DML": {}, "CPU": {}, "THE": {}, "AND": {}, "FOR": {},
	"NOT": {}, "WITH": {}, "TODO": {},
}

// GroundingCheck verifies that a narrative only makes claims traceable to
// the supplied assessments and chunks.
type GroundingCheck struct {
	Mode GroundingMode
}

// Verify returns the ungrounded claims found in the narrative. An empty
// slice means the narrative passes.
func (g GroundingCheck) Verify(narrative string, assessments []models.Assessment, chunks []models.RetrievedChunk) []string {
	facts := factCorpus(assessments, chunks)
	var ungrounded []string

	for _, token := range numericToken.FindAllString(narrative, -1) {
		if g.numberGrounded(token, facts) {
			continue
		}
		ungrounded = append(ungrounded, token)
	}
	for _, token := range entityToken.FindAllString(narrative, -1) {
		if _, skip := entityAllowlist[token]; skip {
			continue
		}
		if strings.Contains(strings.ToLower(facts.text), strings.ToLower(token)) {
			continue
		}
		ungrounded = append(ungrounded, token)
	}
	return ungrounded
}

type corpus struct {
	text   string
	values []float64
}

func factCorpus(assessments []models.Assessment, chunks []models.RetrievedChunk) corpus {
	var b strings.Builder
	for _, a := range assessments {
		b.WriteString(a.Summary)
		b.WriteByte('\n')
		b.WriteString(a.Subject)
		b.WriteByte('\n')
	}
	for _, c := range chunks {
		b.WriteString(c.Chunk.Text)
		b.WriteByte('\n')
	}
	text := b.String()

	var values []float64
	for _, token := range numericToken.FindAllString(text, -1) {
		if v, err := parseNumeric(token); err == nil {
			values = append(values, v)
		}
	}
	return corpus{text: text, values: values}
}

func (g GroundingCheck) numberGrounded(token string, facts corpus) bool {
	if strings.Contains(facts.text, token) {
		return true
	}
	if g.Mode != GroundingTolerant {
		return false
	}
	v, err := parseNumeric(token)
	if err != nil {
		return false
	}
	for _, fact := range facts.values {
		if fact == 0 {
			if v == 0 {
				return true
			}
			continue
		}
		if math.Abs(v-fact)/math.Abs(fact) <= tolerantRelativeError {
			return true
		}
	}
	return false
}

func parseNumeric(token string) (float64, error) {
	// narratives write 25,000 where facts carry 25000
	return strconv.ParseFloat(strings.ReplaceAll(token, ",", ""), 64)
}
