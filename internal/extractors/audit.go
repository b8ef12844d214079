package extractors

import (
	"regexp"
	"time"

	"github.com/advisorstack/oracle-advisor/internal/models"
)

// AttackPattern names a known Oracle attack signature matched against audit
// SQL text.
type AttackPattern struct {
	Name     string
	Patterns []*regexp.Regexp
}

// attackPatterns is the ordered signature registry. Order matters: the first
// matching pattern labels the finding, so the most severe signatures come
// first.
var attackPatterns = []AttackPattern{
	{
		Name: "sql_injection",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(union\s+select|or\s+1\s*=\s*1|'\s*or\s*'1'\s*=\s*'1)`),
			regexp.MustCompile(`(?i)(;--|\*/|/\*|xp_cmdshell)`),
			regexp.MustCompile(`(?i)(drop\s+table|exec\s*\(|execute\s+immediate)`),
		},
	},
	{
		Name: "privilege_escalation",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(grant\s+dba|grant\s+sysdba|grant\s+all)`),
			regexp.MustCompile(`(?i)(alter\s+user.*identified|create\s+user.*dba)`),
		},
	},
	{
		Name: "data_exfiltration",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(select.*from.*password|select.*from.*credit)`),
			regexp.MustCompile(`(?i)(utl_http|utl_smtp|utl_file\.put_line)`),
		},
	},
	{
		Name: "suspicious_ddl",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(drop\s+table.*audit|truncate.*audit|alter.*audit)`),
			regexp.MustCompile(`(?i)(drop\s+user\s+sys|drop\s+tablespace)`),
		},
	},
	{
		Name: "sensitive_access",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(sys\.aud\$|dba_users|dba_tab_privs)`),
			regexp.MustCompile(`(?i)(all_passwords|user_history|dba_roles)`),
		},
	},
}

var (
	failedLoginPattern    = regexp.MustCompile(`(?i)(failed\s+login|authentication\s+failed|invalid\s+password)`)
	privilegeGrantPattern = regexp.MustCompile(`(?i)^\s*grant\s+`)
)

// Oracle audit return code 1017 is "invalid username/password; logon denied".
const returnCodeLogonDenied = 1017

// AuditExtractor derives security findings from Oracle audit trail records.
// Subjects are keyed by username so repeated activity from one account folds
// into one scoring subject.
type AuditExtractor struct{}

// NewAuditExtractor creates an audit trail extractor.
func NewAuditExtractor() *AuditExtractor {
	return &AuditExtractor{}
}

// Source returns the source type this extractor handles.
func (e *AuditExtractor) Source() models.SourceType {
	return models.SourceAuditEvent
}

// Extract emits attack_pattern, failed_login, off_hours_access and
// privilege_grant findings.
func (e *AuditExtractor) Extract(records []models.Record) ([]models.Finding, []models.ExtractionWarning) {
	var findings []models.Finding
	var warnings []models.ExtractionWarning

	for _, rec := range records {
		if rec.Audit == nil {
			warnings = append(warnings, models.ExtractionWarning{
				RecordID: rec.ID,
				Source:   rec.Source,
				Reason:   "missing audit payload",
			})
			continue
		}
		audit := rec.Audit
		if audit.Username == "" {
			warnings = append(warnings, models.ExtractionWarning{
				RecordID: rec.ID,
				Source:   rec.Source,
				Reason:   "audit record has no username",
			})
			continue
		}
		subject := "user:" + audit.Username

		if name, ok := matchAttack(audit.SQLText); ok {
			findings = append(findings, models.Finding{
				Metric:     "attack_pattern",
				Value:      1,
				Label:      name,
				Domain:     models.DomainSecurity,
				Subject:    subject,
				RecordIDs:  []string{rec.ID},
				ObservedAt: rec.Timestamp,
			})
		}

		if audit.ReturnCode == returnCodeLogonDenied || failedLoginPattern.MatchString(audit.SQLText) {
			findings = append(findings, models.Finding{
				Metric:     "failed_login",
				Value:      1,
				Domain:     models.DomainSecurity,
				Subject:    subject,
				RecordIDs:  []string{rec.ID},
				ObservedAt: rec.Timestamp,
			})
		}

		if offHours(rec) {
			findings = append(findings, models.Finding{
				Metric:     "off_hours_access",
				Value:      1,
				Domain:     models.DomainAnomaly,
				Subject:    subject,
				RecordIDs:  []string{rec.ID},
				ObservedAt: rec.Timestamp,
			})
		}

		if privilegeGrantPattern.MatchString(audit.SQLText) {
			findings = append(findings, models.Finding{
				Metric:     "privilege_grant",
				Value:      1,
				Label:      audit.ObjectName,
				Domain:     models.DomainSecurity,
				Subject:    subject,
				RecordIDs:  []string{rec.ID},
				ObservedAt: rec.Timestamp,
			})
		}
	}
	return findings, warnings
}

func matchAttack(sqlText string) (string, bool) {
	if sqlText == "" {
		return "", false
	}
	for _, ap := range attackPatterns {
		for _, re := range ap.Patterns {
			if re.MatchString(sqlText) {
				return ap.Name, true
			}
		}
	}
	return "", false
}

// offHours flags access at night (22:00–06:59) or on weekends, in the
// record's own timezone.
func offHours(rec models.Record) bool {
	if rec.Timestamp.IsZero() {
		return false
	}
	hour := rec.Timestamp.Hour()
	if hour >= 22 || hour <= 6 {
		return true
	}
	wd := rec.Timestamp.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
