package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/advisorstack/oracle-advisor/internal/cache"
	"github.com/advisorstack/oracle-advisor/internal/extractors"
	"github.com/advisorstack/oracle-advisor/internal/index"
	"github.com/advisorstack/oracle-advisor/internal/llm"
	"github.com/advisorstack/oracle-advisor/internal/models"
	"github.com/advisorstack/oracle-advisor/internal/repo"
	"github.com/advisorstack/oracle-advisor/internal/utils"
)

// TelemetrySource supplies records per source type for an analysis window.
type TelemetrySource interface {
	FetchRecords(ctx context.Context, source models.SourceType, window models.TimeRange) ([]models.Record, error)
}

// Pipeline wires extraction, scoring, routing, retrieval and generation into
// one analysis cycle, with a fingerprint cache in front of the generator.
type Pipeline struct {
	source    TelemetrySource
	registry  *extractors.Registry
	scorer    *Scorer
	profiles  map[models.Intent]*Profile
	router    *Router
	embedder  llm.Embedder
	index     *index.Index
	generator *Generator
	cache     cache.Provider
	cacheTTL  time.Duration
	topK      int
	group     singleflight.Group
	logger    *slog.Logger
}

// PipelineConfig collects the pipeline's collaborators.
type PipelineConfig struct {
	Source    TelemetrySource
	Registry  *extractors.Registry
	Scorer    *Scorer
	Profiles  map[models.Intent]*Profile
	Router    *Router
	Embedder  llm.Embedder
	Index     *index.Index
	Generator *Generator
	Cache     cache.Provider
	CacheTTL  time.Duration
	TopK      int
	Logger    *slog.Logger
}

// NewPipeline creates the orchestrator.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.Cache == nil {
		cfg.Cache = &cache.NoopProvider{}
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	return &Pipeline{
		source:    cfg.Source,
		registry:  cfg.Registry,
		scorer:    cfg.Scorer,
		profiles:  cfg.Profiles,
		router:    cfg.Router,
		embedder:  cfg.Embedder,
		index:     cfg.Index,
		generator: cfg.Generator,
		cache:     cfg.Cache,
		cacheTTL:  cfg.CacheTTL,
		topK:      cfg.TopK,
		logger:    cfg.Logger,
	}
}

// Run executes one analysis cycle. Unavailable telemetry sources are skipped
// and reported in the recommendation metadata; a generation outage returns
// the scored assessments without narrative alongside
// ErrGenerationUnavailable.
func (p *Pipeline) Run(ctx context.Context, req models.AnalysisRequest) (*models.Recommendation, error) {
	records, skipped := p.fetchAll(ctx, req.TimeRange)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	findings, warnings := p.registry.Extract(records)
	for _, w := range warnings {
		if p.logger != nil {
			p.logger.Warn("record skipped during extraction",
				"record_id", w.RecordID, "source", w.Source, "reason", w.Reason)
		}
	}

	// classification and query embedding only depend on the request text,
	// so they run concurrently
	var (
		intent   models.Intent
		fallback bool
		queryVec []float32
		embedErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		intent, fallback = p.router.Classify(gctx, req.RequestText, req.Intent)
		return nil
	})
	g.Go(func() error {
		if p.embedder == nil {
			return nil
		}
		queryVec, embedErr = p.embedder.Embed(gctx, req.RequestText)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	assessments := p.scorer.Score(findings, p.profiles[intent])

	chunks, err := p.retrieve(ctx, intent, queryVec, embedErr, req.TopK)
	if err != nil {
		return nil, err
	}

	meta := models.RecommendationMeta{
		SkippedSources:         skipped,
		ExtractionWarnings:     len(warnings),
		ClassificationFallback: fallback,
	}

	fp := fingerprint(intent, assessments, p.namespaceVersion(intent))
	if rec, ok := p.cached(ctx, fp); ok {
		rec.Meta.CacheHit = true
		return rec, nil
	}

	result, err, _ := p.group.Do(fp, func() (any, error) {
		return p.generate(ctx, fp, intent, assessments, chunks, meta)
	})
	if err != nil {
		if rec, ok := result.(*models.Recommendation); ok {
			return rec, err
		}
		return nil, err
	}
	return result.(*models.Recommendation), nil
}

func (p *Pipeline) fetchAll(ctx context.Context, window models.TimeRange) ([]models.Record, []models.SourceType) {
	var (
		records []models.Record
		skipped []models.SourceType
	)
	for _, source := range models.AllSourceTypes() {
		batch, err := p.source.FetchRecords(ctx, source, window)
		if err != nil {
			if errors.Is(err, repo.ErrSourceUnavailable) {
				if p.logger != nil {
					p.logger.Warn("telemetry source unavailable, skipping",
						"source", source, "error", err)
				}
			} else if p.logger != nil {
				p.logger.Error("telemetry fetch failed", "source", source, "error", err)
			}
			skipped = append(skipped, source)
			continue
		}
		records = append(records, batch...)
	}
	if p.logger != nil {
		p.logger.Debug("telemetry fetched",
			"records", len(records), "skipped", len(skipped),
			"window_minutes", utils.DurationMinutes(window.Start, window.End))
	}
	return records, skipped
}

func (p *Pipeline) retrieve(ctx context.Context, intent models.Intent, queryVec []float32, embedErr error, topK int) ([]models.RetrievedChunk, error) {
	namespace := intent.Binding().Namespace
	if namespace == "" || p.index == nil {
		return nil, nil
	}
	if embedErr != nil {
		if p.logger != nil {
			p.logger.Warn("query embedding failed, skipping retrieval", "error", embedErr)
		}
		return nil, nil
	}
	if queryVec == nil {
		return nil, nil
	}
	if topK <= 0 {
		topK = p.topK
	}
	chunks, err := p.index.Query(ctx, namespace, queryVec, topK)
	if err != nil {
		var mismatch *index.DimensionMismatchError
		if errors.As(err, &mismatch) {
			return nil, err
		}
		return nil, fmt.Errorf("retrieval query: %w", err)
	}
	return chunks, nil
}

func (p *Pipeline) generate(ctx context.Context, fp string, intent models.Intent, assessments []models.Assessment, chunks []models.RetrievedChunk, meta models.RecommendationMeta) (*models.Recommendation, error) {
	rec := &models.Recommendation{
		ID:          uuid.NewString(),
		Intent:      intent,
		Assessments: assessments,
		Chunks:      chunks,
		Meta:        meta,
		CreatedAt:   time.Now().UTC(),
	}

	narrative, lowConfidence, err := p.generator.Generate(ctx, intent, assessments, chunks)
	if err != nil {
		if errors.Is(err, ErrGenerationUnavailable) {
			rec.Meta.GenerationUnavailable = true
			return rec, err
		}
		return nil, err
	}
	rec.Narrative = narrative
	rec.LowConfidence = lowConfidence

	// cache writes survive request cancellation
	p.store(context.WithoutCancel(ctx), fp, rec)
	return rec, nil
}

func (p *Pipeline) cached(ctx context.Context, fp string) (*models.Recommendation, bool) {
	data, err := p.cache.Get(ctx, fp)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) && p.logger != nil {
			p.logger.Warn("recommendation cache read failed", "error", err)
		}
		return nil, false
	}
	var rec models.Recommendation
	if err := json.Unmarshal(data, &rec); err != nil {
		if p.logger != nil {
			p.logger.Warn("dropping corrupt cache entry", "key", fp, "error", err)
		}
		_ = p.cache.Del(ctx, fp)
		return nil, false
	}
	return &rec, true
}

func (p *Pipeline) store(ctx context.Context, fp string, rec *models.Recommendation) {
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	// SetNX keeps a concurrent duplicate compute from clobbering the entry
	if _, err := p.cache.SetNX(ctx, fp, data, p.cacheTTL); err != nil && p.logger != nil {
		p.logger.Warn("recommendation cache write failed", "error", err)
	}
}

func (p *Pipeline) namespaceVersion(intent models.Intent) uint64 {
	if p.index == nil {
		return 0
	}
	return p.index.Version(intent.Binding().Namespace)
}

// fingerprint derives the cache key from the intent, the sorted assessment
// identities and the namespace version, so any change in facts or corpus
// invalidates the entry.
func fingerprint(intent models.Intent, assessments []models.Assessment, namespaceVersion uint64) string {
	keys := make([]string, len(assessments))
	for i, a := range assessments {
		keys[i] = a.Key()
	}
	sort.Strings(keys)

	h := sha256.New()
	fmt.Fprintf(h, "%s\n%d\n", intent, namespaceVersion)
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{'\n'})
	}
	return "rec:" + hex.EncodeToString(h.Sum(nil))
}
