package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/advisorstack/oracle-advisor/internal/models"
)

// ErrSourceUnavailable wraps failures reaching one telemetry source. The
// orchestrator skips the source and continues with the rest.
var ErrSourceUnavailable = errors.New("telemetry source unavailable")

// TelemetryClient fetches Oracle telemetry records from the collector
// service, one endpoint per source type.
type TelemetryClient struct {
	baseURL     string
	sourcePaths map[models.SourceType]string
	httpClient  *http.Client
}

// NewTelemetryClient constructs a client for the configured collector. Empty
// path entries fall back to /api/v1/records/<source>.
func NewTelemetryClient(baseURL string, sourcePaths map[models.SourceType]string, timeout time.Duration) *TelemetryClient {
	paths := make(map[models.SourceType]string, len(models.AllSourceTypes()))
	for _, source := range models.AllSourceTypes() {
		p := sourcePaths[source]
		if p == "" {
			p = "/api/v1/records/" + string(source)
		}
		paths[source] = p
	}
	return &TelemetryClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		sourcePaths: paths,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// recordEnvelope is the collector's wire shape for one record. Exactly one
// payload field is set, matching the source type.
type recordEnvelope struct {
	ID        string                `json:"id"`
	Timestamp time.Time             `json:"timestamp"`
	Raw       string                `json:"raw,omitempty"`
	Plan      *models.PlanPayload   `json:"plan,omitempty"`
	Audit     *models.AuditPayload  `json:"audit,omitempty"`
	Backup    *models.BackupPayload `json:"backup,omitempty"`
}

// FetchRecords retrieves all records of one source type inside the window.
// Transport failures and non-200 responses wrap ErrSourceUnavailable.
func (c *TelemetryClient) FetchRecords(ctx context.Context, source models.SourceType, window models.TimeRange) ([]models.Record, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("%w: collector base URL not configured", ErrSourceUnavailable)
	}

	payload := map[string]any{
		"source": string(source),
		"start":  window.Start.Format(time.RFC3339),
		"end":    window.End.Format(time.RFC3339),
	}

	var response struct {
		Records []recordEnvelope `json:"records"`
	}
	if err := c.postJSON(ctx, c.resolvePath(c.sourcePaths[source]), payload, &response); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, source, err)
	}

	records := make([]models.Record, 0, len(response.Records))
	for _, env := range response.Records {
		records = append(records, models.Record{
			ID:        env.ID,
			Source:    source,
			Timestamp: env.Timestamp,
			Raw:       env.Raw,
			Plan:      env.Plan,
			Audit:     env.Audit,
			Backup:    env.Backup,
		})
	}
	return records, nil
}

func (c *TelemetryClient) resolvePath(p string) string {
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func (c *TelemetryClient) postJSON(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) {
			return fmt.Errorf("collector unreachable: %w", err)
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("collector returned %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
