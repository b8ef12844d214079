package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/advisorstack/oracle-advisor/internal/llm"
	"github.com/advisorstack/oracle-advisor/internal/models"
)

// triggerPhrases maps fixed request phrases (menu entries from the
// presentation layer) to intents without touching the classifier.
var triggerPhrases = map[string]models.Intent{
	"analyze slow queries":   models.IntentPerformanceAnalysis,
	"optimize query":         models.IntentPerformanceAnalysis,
	"run security audit":     models.IntentSecurityAudit,
	"check audit logs":       models.IntentSecurityAudit,
	"detect anomalies":       models.IntentAnomalyTriage,
	"review backup strategy": models.IntentBackupStrategy,
	"plan disaster recovery": models.IntentRecoveryPlanning,
	"build recovery plan":    models.IntentRecoveryPlanning,
}

const classifyPromptTemplate = `Classify this Oracle database request into exactly one category.
Categories: %s

Request: %s

Respond with only the category name, nothing else.`

// Router resolves the intent of an analysis request. An explicit intent on
// the request wins; known trigger phrases resolve deterministically; anything
// else goes through a constrained generative classification that degrades to
// general_chat on any failure.
type Router struct {
	client  llm.Client
	limiter *llm.RateLimiter
	policy  llm.RetryPolicy
	logger  *slog.Logger
}

// NewRouter creates a router backed by the given classifier client. The
// limiter is the bucket shared with every other caller of the same backend
// credential.
func NewRouter(client llm.Client, limiter *llm.RateLimiter, policy llm.RetryPolicy, logger *slog.Logger) *Router {
	return &Router{client: client, limiter: limiter, policy: policy, logger: logger}
}

// Classify returns the resolved intent and whether the resolution fell back
// to general_chat because classification failed or returned an unknown
// category.
func (r *Router) Classify(ctx context.Context, requestText string, explicit models.Intent) (models.Intent, bool) {
	if explicit != "" && explicit.Valid() {
		return explicit, false
	}

	normalized := strings.ToLower(strings.TrimSpace(requestText))
	if intent, ok := triggerPhrases[normalized]; ok {
		return intent, false
	}
	if normalized == "" {
		return models.IntentGeneralChat, true
	}

	prompt := fmt.Sprintf(classifyPromptTemplate, strings.Join(intentNames(), ", "), requestText)
	raw, err := llm.Do(ctx, r.policy, func(ctx context.Context) (string, error) {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return "", err
			}
		}
		return r.client.Complete(ctx, prompt, 16)
	})
	if err != nil {
		if r.logger != nil {
			r.logger.Warn("intent classification failed, using general_chat", "error", err)
		}
		return models.IntentGeneralChat, true
	}

	intent := models.ParseIntent(raw)
	if intent == models.IntentGeneralChat && !mentionsGeneral(raw) {
		if r.logger != nil {
			r.logger.Warn("classifier returned unknown category", "raw", raw)
		}
		return models.IntentGeneralChat, true
	}
	return intent, false
}

func intentNames() []string {
	all := models.AllIntents()
	names := make([]string, len(all))
	for i, intent := range all {
		names[i] = string(intent)
	}
	return names
}

func mentionsGeneral(raw string) bool {
	return strings.Contains(strings.ToLower(raw), "general")
}
