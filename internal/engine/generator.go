package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/advisorstack/oracle-advisor/internal/llm"
	"github.com/advisorstack/oracle-advisor/internal/metrics"
	"github.com/advisorstack/oracle-advisor/internal/models"
)

// ErrGenerationUnavailable signals that the generative backend exhausted its
// retries. Callers still receive the assessments (partial result).
var ErrGenerationUnavailable = errors.New("generative backend unavailable after retries")

const generatorMaxTokens = 1024

const basePromptHeader = `You are an Oracle database advisor. Write a concise recommendation narrative
for the analysis below. Cite ONLY the facts and reference excerpts supplied;
do not invent numbers, object names or behaviours.`

const strictPromptHeader = `You are an Oracle database advisor. Write a concise recommendation narrative
for the analysis below. STRICT MODE: every number and every object name you
mention MUST be copied verbatim from the facts or excerpts supplied. If a
detail is not present below, leave it out entirely.`

// Generator produces grounded narratives from assessments and retrieved
// chunks.
type Generator struct {
	client    llm.Client
	limiter   *llm.RateLimiter
	policy    llm.RetryPolicy
	grounding GroundingCheck
	logger    *slog.Logger
}

// NewGenerator creates a generator. The limiter may be shared with other
// components talking to the same backend credential.
func NewGenerator(client llm.Client, limiter *llm.RateLimiter, policy llm.RetryPolicy, grounding GroundingCheck, logger *slog.Logger) *Generator {
	return &Generator{
		client:    client,
		limiter:   limiter,
		policy:    policy,
		grounding: grounding,
		logger:    logger,
	}
}

// Generate returns the narrative for the given analysis context and whether
// the grounding check failed after the single stricter regeneration
// (low-confidence narrative). A wrapped ErrGenerationUnavailable means no
// narrative could be produced at all.
func (g *Generator) Generate(ctx context.Context, intent models.Intent, assessments []models.Assessment, chunks []models.RetrievedChunk) (string, bool, error) {
	narrative, err := g.complete(ctx, buildPrompt(basePromptHeader, intent, assessments, chunks))
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
	}

	ungrounded := g.grounding.Verify(narrative, assessments, chunks)
	if len(ungrounded) == 0 {
		return narrative, false, nil
	}
	if g.logger != nil {
		g.logger.Warn("narrative failed grounding, regenerating",
			"intent", intent, "ungrounded", ungrounded)
	}

	retried, err := g.complete(ctx, buildPrompt(strictPromptHeader, intent, assessments, chunks))
	if err != nil {
		// the first narrative exists; degrade rather than discard
		return narrative, true, nil
	}
	if rest := g.grounding.Verify(retried, assessments, chunks); len(rest) > 0 {
		if g.logger != nil {
			g.logger.Warn("regenerated narrative still ungrounded",
				"intent", intent, "ungrounded", rest)
		}
		return retried, true, nil
	}
	return retried, false, nil
}

func (g *Generator) complete(ctx context.Context, prompt string) (string, error) {
	out, err := llm.Do(ctx, g.policy, func(ctx context.Context) (string, error) {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return "", err
			}
		}
		return g.client.Complete(ctx, prompt, generatorMaxTokens)
	})
	if err != nil {
		metrics.ObserveGeneratorCall("error")
	} else {
		metrics.ObserveGeneratorCall("success")
	}
	return out, err
}

// buildPrompt renders assessment summaries and chunk excerpts. Raw telemetry
// records never reach the prompt.
func buildPrompt(header string, intent models.Intent, assessments []models.Assessment, chunks []models.RetrievedChunk) string {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n\nTask: ")
	b.WriteString(string(intent))
	b.WriteString("\n\nFacts:\n")
	if len(assessments) == 0 {
		b.WriteString("(no findings scored for this request)\n")
	}
	for _, a := range assessments {
		fmt.Fprintf(&b, "- [%s] %s\n", a.Severity, a.Summary)
	}
	if len(chunks) > 0 {
		b.WriteString("\nReference excerpts:\n")
		for i, c := range chunks {
			fmt.Fprintf(&b, "[%d] %s\n", i+1, c.Chunk.Text)
		}
	}
	b.WriteString("\nRecommendation:")
	return b.String()
}
