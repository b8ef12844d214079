package models

import "strings"

// Intent is the closed set of analysis tasks the pipeline can run.
type Intent string

const (
	IntentPerformanceAnalysis Intent = "performance_analysis"
	IntentSecurityAudit       Intent = "security_audit"
	IntentAnomalyTriage       Intent = "anomaly_triage"
	IntentBackupStrategy      Intent = "backup_strategy"
	IntentRecoveryPlanning    Intent = "recovery_planning"
	IntentGeneralChat         Intent = "general_chat"
)

// IntentBinding ties an intent to its scoring profile and retrieval namespace.
// An empty namespace means retrieval is skipped for that intent.
type IntentBinding struct {
	Profile   string
	Namespace string
}

var intentBindings = map[Intent]IntentBinding{
	IntentPerformanceAnalysis: {Profile: "performance", Namespace: "query-optimization"},
	IntentSecurityAudit:       {Profile: "security", Namespace: "security-audit"},
	IntentAnomalyTriage:       {Profile: "anomaly", Namespace: "anomaly-detection"},
	IntentBackupStrategy:      {Profile: "backup", Namespace: "backup-strategy"},
	IntentRecoveryPlanning:    {Profile: "recovery", Namespace: "recovery-guide"},
	IntentGeneralChat:         {Profile: "general", Namespace: ""},
}

// AllIntents lists the closed intent set in a stable order.
func AllIntents() []Intent {
	return []Intent{
		IntentPerformanceAnalysis,
		IntentSecurityAudit,
		IntentAnomalyTriage,
		IntentBackupStrategy,
		IntentRecoveryPlanning,
		IntentGeneralChat,
	}
}

// Binding returns the profile/namespace pair for the intent. Unknown intents
// resolve to the general_chat binding.
func (i Intent) Binding() IntentBinding {
	if b, ok := intentBindings[i]; ok {
		return b
	}
	return intentBindings[IntentGeneralChat]
}

// Valid reports whether the intent belongs to the closed set.
func (i Intent) Valid() bool {
	_, ok := intentBindings[i]
	return ok
}

// ParseIntent maps arbitrary classifier output onto the closed set. Anything
// unrecognised resolves to general_chat so classification failure never blocks
// the pipeline.
func ParseIntent(value string) Intent {
	candidate := Intent(strings.ToLower(strings.TrimSpace(value)))
	if candidate.Valid() {
		return candidate
	}
	for _, intent := range AllIntents() {
		if strings.Contains(string(candidate), string(intent)) {
			return intent
		}
	}
	return IntentGeneralChat
}
