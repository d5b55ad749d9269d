package offline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"tillpoint/backend/internal/domain"
)

// HTTPClient is the agent-side ingestor talking to the backend over HTTP.
type HTTPClient struct {
	baseURL string
	token   string
	hc      *http.Client
}

func NewHTTPClient(baseURL string, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		hc:      &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *HTTPClient) Ingest(ctx context.Context, tx domain.Transaction) (domain.IngestResult, error) {
	payload, err := json.Marshal(tx)
	if err != nil {
		return domain.IngestResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/transactions", bytes.NewReader(payload))
	if err != nil {
		return domain.IngestResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return domain.IngestResult{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var result domain.IngestResult
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return domain.IngestResult{}, err
		}
		return result, nil
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		if body.Error == "" {
			body.Error = resp.Status
		}
		return domain.IngestResult{}, &RejectionError{Reason: body.Error}
	default:
		// auth failures, 5xx and the like are worth retrying later
		return domain.IngestResult{}, fmt.Errorf("ingest: unexpected status %s", resp.Status)
	}
}

// Probe satisfies the connectivity monitor contract against the backend
// health endpoint.
func (c *HTTPClient) Probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return false
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
