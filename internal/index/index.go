package index

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/advisorstack/oracle-advisor/internal/models"
)

// DimensionMismatchError is returned when a vector's dimensionality differs
// from the index's configured dimensionality. Queries failing this way return
// no results at all rather than a partial set.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("vector dimension mismatch: index expects %d, got %d", e.Want, e.Got)
}

// MaxTopK bounds how many chunks a single query may request.
const MaxTopK = 50

// DefaultMinSimilarity filters out chunks with no meaningful relation to the
// query. Matches below this score add noise to generation prompts.
const DefaultMinSimilarity = 0.3

// Index is an in-memory cosine-similarity index partitioned by namespace.
// Each mutation bumps the namespace's version counter, which participates in
// recommendation cache fingerprints so stale cached answers die with the
// corpus revision that produced them.
type Index struct {
	mu        sync.RWMutex
	dims      int
	chunks    map[string][]models.DocumentChunk // namespace -> chunks
	versions  map[string]uint64
	store     *Store
	minScore  float64
	logger    *slog.Logger
}

// Option configures an Index.
type Option func(*Index)

// WithStore attaches a persistence backend; chunks are loaded on New and
// every upsert/delete is written through.
func WithStore(s *Store) Option {
	return func(ix *Index) { ix.store = s }
}

// WithMinSimilarity overrides the retrieval score cutoff.
func WithMinSimilarity(min float64) Option {
	return func(ix *Index) { ix.minScore = min }
}

// New creates an index for vectors of the given dimensionality.
func New(dims int, logger *slog.Logger, opts ...Option) (*Index, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("index dimensionality must be positive, got %d", dims)
	}
	ix := &Index{
		dims:     dims,
		chunks:   make(map[string][]models.DocumentChunk),
		versions: make(map[string]uint64),
		minScore: DefaultMinSimilarity,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(ix)
	}
	if ix.store != nil {
		loaded, err := ix.store.LoadAll(context.Background(), dims)
		if err != nil {
			return nil, fmt.Errorf("load persisted chunks: %w", err)
		}
		for ns, chunks := range loaded {
			ix.chunks[ns] = chunks
		}
		if logger != nil {
			total := 0
			for _, c := range loaded {
				total += len(c)
			}
			logger.Info("retrieval index loaded", "namespaces", len(loaded), "chunks", total)
		}
	}
	return ix, nil
}

// Dims returns the configured vector dimensionality.
func (ix *Index) Dims() int { return ix.dims }

// Version returns the mutation counter for a namespace. Zero means the
// namespace has never been written.
func (ix *Index) Version(namespace string) uint64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.versions[namespace]
}

// Upsert inserts or replaces chunks by ID within their namespaces. All
// vectors are validated before any mutation happens, so a mismatched batch
// leaves the index untouched.
func (ix *Index) Upsert(ctx context.Context, chunks []models.DocumentChunk) error {
	for _, c := range chunks {
		if len(c.Embedding) != ix.dims {
			return &DimensionMismatchError{Want: ix.dims, Got: len(c.Embedding)}
		}
		if c.ID == "" || c.Namespace == "" {
			return fmt.Errorf("chunk requires id and namespace, got id=%q namespace=%q", c.ID, c.Namespace)
		}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	touched := make(map[string]struct{})
	for _, c := range chunks {
		existing := ix.chunks[c.Namespace]
		replaced := false
		for i := range existing {
			if existing[i].ID == c.ID {
				existing[i] = c
				replaced = true
				break
			}
		}
		if !replaced {
			existing = append(existing, c)
		}
		ix.chunks[c.Namespace] = existing
		touched[c.Namespace] = struct{}{}
	}
	for ns := range touched {
		ix.versions[ns]++
	}

	if ix.store != nil {
		if err := ix.store.SaveChunks(ctx, chunks); err != nil {
			return fmt.Errorf("persist chunks: %w", err)
		}
	}
	return nil
}

// Delete removes a chunk by ID from a namespace. Removing an absent chunk is
// a no-op and does not bump the version.
func (ix *Index) Delete(ctx context.Context, namespace, id string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	existing := ix.chunks[namespace]
	for i := range existing {
		if existing[i].ID == id {
			ix.chunks[namespace] = append(existing[:i], existing[i+1:]...)
			ix.versions[namespace]++
			if ix.store != nil {
				if err := ix.store.DeleteChunk(ctx, namespace, id); err != nil {
					return fmt.Errorf("persist delete: %w", err)
				}
			}
			return nil
		}
	}
	return nil
}

// Query returns up to topK chunks from the namespace ranked by cosine
// similarity (descending, ties broken by chunk ID ascending). Chunks scoring
// below the similarity cutoff are dropped. topK values above MaxTopK are
// clamped; non-positive topK returns an empty result.
func (ix *Index) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]models.RetrievedChunk, error) {
	if len(vector) != ix.dims {
		return nil, &DimensionMismatchError{Want: ix.dims, Got: len(vector)}
	}
	if topK <= 0 {
		return []models.RetrievedChunk{}, nil
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	candidates := ix.chunks[namespace]
	results := make([]models.RetrievedChunk, 0, len(candidates))
	for _, c := range candidates {
		score := cosineSimilarity(vector, c.Embedding)
		if score < ix.minScore {
			continue
		}
		results = append(results, models.RetrievedChunk{Chunk: c, Similarity: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Count returns the number of chunks in a namespace.
func (ix *Index) Count(namespace string) int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.chunks[namespace])
}

// Namespaces lists namespaces currently holding chunks, sorted.
func (ix *Index) Namespaces() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]string, 0, len(ix.chunks))
	for ns := range ix.chunks {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
