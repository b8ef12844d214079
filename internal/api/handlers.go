package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/advisorstack/oracle-advisor/internal/engine"
	"github.com/advisorstack/oracle-advisor/internal/index"
	"github.com/advisorstack/oracle-advisor/internal/llm"
	"github.com/advisorstack/oracle-advisor/internal/models"
	"github.com/advisorstack/oracle-advisor/internal/patterns"
	"github.com/advisorstack/oracle-advisor/internal/utils"
)

// Advisor is the analysis capability the HTTP surface exposes.
type Advisor interface {
	Analyze(ctx context.Context, req models.AnalysisRequest) (*models.Recommendation, error)
}

// Handler exposes the advisor over HTTP.
type Handler struct {
	advisor  Advisor
	index    *index.Index
	embedder llm.Embedder
	miner    *patterns.Miner
	logger   *slog.Logger
}

// NewHandler constructs the HTTP handler set. Index, embedder and miner are
// optional; their endpoints degrade gracefully when absent.
func NewHandler(advisor Advisor, ix *index.Index, embedder llm.Embedder, miner *patterns.Miner, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{advisor: advisor, index: ix, embedder: embedder, miner: miner, logger: logger}
}

// Routes returns the configured mux.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/analyze", h.handleAnalyze)
	mux.HandleFunc("POST /api/v1/documents", h.handleUpsertDocuments)
	mux.HandleFunc("GET /api/v1/patterns", h.handlePatterns)
	mux.HandleFunc("GET /api/v1/health", h.handleHealth)
	return mux
}

type analyzeRequest struct {
	RequestText string `json:"request_text"`
	Intent      string `json:"intent,omitempty"`
	Start       string `json:"start,omitempty"`
	End         string `json:"end,omitempty"`
	TopK        int    `json:"top_k,omitempty"`
}

func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var body analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req := models.AnalysisRequest{
		RequestText: body.RequestText,
		Intent:      models.Intent(body.Intent),
		TopK:        body.TopK,
	}
	if body.Start != "" {
		start, err := utils.ParseRFC3339(body.Start)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid start time")
			return
		}
		req.TimeRange.Start = start
	}
	if body.End != "" {
		end, err := utils.ParseRFC3339(body.End)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid end time")
			return
		}
		req.TimeRange.End = end
	}

	rec, err := h.advisor.Analyze(r.Context(), req)
	switch {
	case errors.Is(err, engine.ErrGenerationUnavailable):
		// partial result: assessments without narrative
		h.writeJSON(w, http.StatusOK, rec)
	case err != nil:
		var appErr *utils.AppError
		var mismatch *index.DimensionMismatchError
		switch {
		case errors.As(err, &mismatch):
			h.writeError(w, http.StatusUnprocessableEntity, mismatch.Error())
		case errors.As(err, &appErr) && appErr.Err == nil:
			h.writeError(w, http.StatusBadRequest, appErr.Msg)
		default:
			h.logger.Error("analyze request failed", slog.Any("error", err))
			h.writeError(w, http.StatusInternalServerError, "analysis failed")
		}
	default:
		h.writeJSON(w, http.StatusOK, rec)
	}
}

type documentPayload struct {
	ID        string    `json:"id"`
	DocID     string    `json:"doc_id"`
	Namespace string    `json:"namespace"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding,omitempty"`
}

type upsertRequest struct {
	Documents []documentPayload `json:"documents"`
}

type upsertResponse struct {
	Upserted int `json:"upserted"`
}

func (h *Handler) handleUpsertDocuments(w http.ResponseWriter, r *http.Request) {
	if h.index == nil {
		h.writeError(w, http.StatusServiceUnavailable, "retrieval index not configured")
		return
	}
	var body upsertRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(body.Documents) == 0 {
		h.writeError(w, http.StatusBadRequest, "documents are required")
		return
	}

	chunks := make([]models.DocumentChunk, 0, len(body.Documents))
	for _, doc := range body.Documents {
		embedding := doc.Embedding
		if len(embedding) == 0 {
			if h.embedder == nil {
				h.writeError(w, http.StatusBadRequest, "document "+doc.ID+" has no embedding and no embedder is configured")
				return
			}
			vec, err := h.embedder.Embed(r.Context(), doc.Text)
			if err != nil {
				h.logger.Error("document embedding failed", slog.String("id", doc.ID), slog.Any("error", err))
				h.writeError(w, http.StatusBadGateway, "embedding backend failed")
				return
			}
			embedding = vec
		}
		chunks = append(chunks, models.DocumentChunk{
			ID:        doc.ID,
			DocID:     doc.DocID,
			Namespace: doc.Namespace,
			Text:      doc.Text,
			Embedding: embedding,
		})
	}

	if err := h.index.Upsert(r.Context(), chunks); err != nil {
		var mismatch *index.DimensionMismatchError
		if errors.As(err, &mismatch) {
			h.writeError(w, http.StatusUnprocessableEntity, mismatch.Error())
			return
		}
		h.logger.Error("chunk upsert failed", slog.Any("error", err))
		h.writeError(w, http.StatusInternalServerError, "upsert failed")
		return
	}
	h.writeJSON(w, http.StatusOK, upsertResponse{Upserted: len(chunks)})
}

type patternsResponse struct {
	Patterns []patterns.RecurringIssue `json:"patterns"`
}

func (h *Handler) handlePatterns(w http.ResponseWriter, r *http.Request) {
	if h.miner == nil {
		h.writeError(w, http.StatusServiceUnavailable, "pattern mining not configured")
		return
	}
	minCount := 2
	if raw := r.URL.Query().Get("min_count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.writeError(w, http.StatusBadRequest, "min_count must be a positive integer")
			return
		}
		minCount = n
	}
	issues := h.miner.Mine(minCount)
	if issues == nil {
		issues = []patterns.RecurringIssue{}
	}
	h.writeJSON(w, http.StatusOK, patternsResponse{Patterns: issues})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if h.index != nil {
		resp["namespaces"] = h.index.Namespaces()
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("write response failed", slog.Any("error", err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}
