// Command mock-core is a localdev stand-in for the telemetry collector and
// the LLM backend. It serves canned Oracle telemetry on the records
// endpoints and an OpenAI-shaped completion/embedding surface, enough to run
// advisor-engine end to end without real infrastructure.
package main

import (
	"encoding/json"
	"hash/fnv"
	"log"
	"net/http"
	"time"
)

type recordEnvelope struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Raw       string         `json:"raw,omitempty"`
	Plan      *planPayload   `json:"plan,omitempty"`
	Audit     *auditPayload  `json:"audit,omitempty"`
	Backup    *backupPayload `json:"backup,omitempty"`
}

type planPayload struct {
	SQLID         string          `json:"sql_id"`
	Statement     string          `json:"statement"`
	OptimizerCost float64         `json:"optimizer_cost"`
	ElapsedMs     float64         `json:"elapsed_ms"`
	RowsProcessed float64         `json:"rows_processed"`
	Operations    []planOperation `json:"operations,omitempty"`
}

type planOperation struct {
	Depth      int     `json:"depth"`
	Operation  string  `json:"operation"`
	ObjectName string  `json:"object_name,omitempty"`
	Cost       float64 `json:"cost"`
	Rows       float64 `json:"rows"`
}

type auditPayload struct {
	Username   string `json:"username"`
	Action     string `json:"action"`
	ObjectName string `json:"object_name,omitempty"`
	SQLText    string `json:"sql_text,omitempty"`
	ClientIP   string `json:"client_ip,omitempty"`
	ReturnCode int    `json:"return_code"`
	SessionID  string `json:"session_id,omitempty"`
}

type backupPayload struct {
	DatabaseName      string    `json:"database_name"`
	LastBackupAt      time.Time `json:"last_backup_at"`
	BackupType        string    `json:"backup_type"`
	RedundancyLevel   int       `json:"redundancy_level"`
	ArchivelogEnabled bool      `json:"archivelog_enabled"`
	TargetRPOHours    float64   `json:"target_rpo_hours"`
}

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/v1/records/query_plan", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		writeJSON(w, map[string]any{
			"records": []recordEnvelope{
				{
					ID:        "plan-1",
					Timestamp: time.Now().Add(-5 * time.Minute),
					Plan: &planPayload{
						SQLID:         "8fj2k1xq9p3za",
						Statement:     "SELECT * FROM orders WHERE customer_id = :1",
						OptimizerCost: 48231,
						ElapsedMs:     25400,
						RowsProcessed: 1_250_000,
						Operations: []planOperation{
							{Depth: 0, Operation: "SELECT STATEMENT", Cost: 48231, Rows: 1_250_000},
							{Depth: 1, Operation: "TABLE ACCESS FULL", ObjectName: "ORDERS", Cost: 48100, Rows: 1_250_000},
						},
					},
				},
				{
					ID:        "plan-2",
					Timestamp: time.Now().Add(-4 * time.Minute),
					Plan: &planPayload{
						SQLID:         "c2m8wq44hnbt1",
						Statement:     "SELECT order_id FROM orders WHERE order_id = :1",
						OptimizerCost: 3,
						ElapsedMs:     12,
						RowsProcessed: 1,
					},
				},
			},
		})
	})

	mux.HandleFunc("/api/v1/records/audit_event", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		writeJSON(w, map[string]any{
			"records": []recordEnvelope{
				{
					ID:        "audit-1",
					Timestamp: time.Now().Add(-3 * time.Minute),
					Audit: &auditPayload{
						Username:   "APP_USER",
						Action:     "LOGON",
						ReturnCode: 1017,
						ClientIP:   "10.20.0.14",
					},
				},
				{
					ID:        "audit-2",
					Timestamp: time.Now().Add(-2 * time.Minute),
					Audit: &auditPayload{
						Username: "APP_USER",
						Action:   "SELECT",
						SQLText:  "SELECT * FROM dba_users WHERE 1=1 OR username LIKE '%'",
						ClientIP: "10.20.0.14",
					},
				},
			},
		})
	})

	mux.HandleFunc("/api/v1/records/backup_config", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		writeJSON(w, map[string]any{
			"records": []recordEnvelope{
				{
					ID:        "backup-1",
					Timestamp: time.Now().Add(-time.Minute),
					Backup: &backupPayload{
						DatabaseName:      "ORCLPROD",
						LastBackupAt:      time.Now().Add(-30 * time.Hour),
						BackupType:        "incremental",
						RedundancyLevel:   1,
						ArchivelogEnabled: false,
						TargetRPOHours:    24,
					},
				},
			},
		})
	})

	mux.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		writeJSON(w, map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{
					"role":    "assistant",
					"content": "performance_analysis",
				}},
			},
		})
	})

	mux.HandleFunc("/embeddings", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		var body struct {
			Input []string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		text := ""
		if len(body.Input) > 0 {
			text = body.Input[0]
		}
		writeJSON(w, map[string]any{
			"data": []map[string]any{
				{"embedding": fakeEmbedding(text, 384)},
			},
		})
	})

	logger := log.New(log.Writer(), "mock-core ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    ":9080",
		Handler: logRequests(logger, mux),
	}

	logger.Println("listening on :9080")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

// fakeEmbedding derives a deterministic unit-ish vector from the text so
// identical documents land near each other in the index.
func fakeEmbedding(text string, dims int) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()
	vec := make([]float32, dims)
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed>>33))/float32(1<<30) - 1
	}
	return vec
}

func enforcePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
