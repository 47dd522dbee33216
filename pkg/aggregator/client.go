// Package aggregator provides a client for a remote intent aggregator API.
package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/speedrun-hq/railsettle/pkg/ledger"
	"github.com/speedrun-hq/railsettle/pkg/logger"
	"github.com/speedrun-hq/railsettle/pkg/models"
)

// solutionsResponse is the body of GET /api/intents/{id}/solutions
type solutionsResponse struct {
	Solutions []remoteSolution `json:"solutions"`
}

// sqliteTimestamp is the CURRENT_TIMESTAMP text format, always UTC
const sqliteTimestamp = "2006-01-02 15:04:05"

// remoteTime accepts RFC 3339 and SQLite timestamps
type remoteTime struct {
	time.Time
}

func (t *remoteTime) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		t.Time = time.Time{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		t.Time = time.Time{}
		return nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		t.Time = ts
		return nil
	}
	ts, err := time.ParseInLocation(sqliteTimestamp, raw, time.UTC)
	if err != nil {
		return fmt.Errorf("unsupported timestamp %q", raw)
	}
	t.Time = ts
	return nil
}

// remoteIntent overrides the timestamp fields of the embedded intent
type remoteIntent struct {
	models.Intent
	CreatedAt remoteTime  `json:"createdAt"`
	UpdatedAt remoteTime  `json:"updatedAt"`
	ClaimedAt *remoteTime `json:"claimedAt"`
}

func (r remoteIntent) decode() models.Intent {
	intent := r.Intent
	intent.CreatedAt = r.CreatedAt.Time
	intent.UpdatedAt = r.UpdatedAt.Time
	intent.ClaimedAt = nil
	if r.ClaimedAt != nil && !r.ClaimedAt.IsZero() {
		claimedAt := r.ClaimedAt.Time
		intent.ClaimedAt = &claimedAt
	}
	return intent
}

// remoteSolution accepts paymentMetadata either as an object or as a JSON encoded string
type remoteSolution struct {
	models.Solution
	CreatedAt          remoteTime      `json:"createdAt"`
	RawPaymentMetadata json.RawMessage `json:"paymentMetadata"`
}

func (s remoteSolution) decode() (models.Solution, error) {
	solution := s.Solution
	solution.CreatedAt = s.CreatedAt.Time
	solution.PaymentMetadata = nil

	raw := strings.TrimSpace(string(s.RawPaymentMetadata))
	if raw == "" || raw == "null" {
		return solution, nil
	}
	if strings.HasPrefix(raw, `"`) {
		var encoded string
		if err := json.Unmarshal(s.RawPaymentMetadata, &encoded); err != nil {
			return models.Solution{}, err
		}
		metadata, err := models.DecodePaymentMetadata(encoded)
		if err != nil {
			return models.Solution{}, err
		}
		solution.PaymentMetadata = metadata
		return solution, nil
	}
	var metadata models.PaymentMetadata
	if err := json.Unmarshal(s.RawPaymentMetadata, &metadata); err != nil {
		return models.Solution{}, err
	}
	solution.PaymentMetadata = &metadata
	return solution, nil
}

// Client represents an aggregator API client
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     logger.Logger
}

// New creates a new aggregator API client
func New(endpoint string, log logger.Logger) *Client {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: createHTTPClient(),
		logger:     log,
	}
}

// GetIntent fetches an intent, returning ledger.ErrNotFound for unknown ids
func (c *Client) GetIntent(ctx context.Context, id string) (models.Intent, error) {
	var intent remoteIntent
	if err := c.getJSON(ctx, "/api/intents/"+url.PathEscape(id), &intent); err != nil {
		return models.Intent{}, fmt.Errorf("intent %s: %w", id, err)
	}
	return intent.decode(), nil
}

// ListSolutions fetches the current solution pool of an intent
func (c *Client) ListSolutions(ctx context.Context, intentID string) ([]models.Solution, error) {
	var resp solutionsResponse
	if err := c.getJSON(ctx, "/api/intents/"+url.PathEscape(intentID)+"/solutions", &resp); err != nil {
		return nil, fmt.Errorf("solutions of intent %s: %w", intentID, err)
	}

	solutions := make([]models.Solution, 0, len(resp.Solutions))
	for _, remote := range resp.Solutions {
		solution, err := remote.decode()
		if err != nil {
			return nil, fmt.Errorf("failed to decode payment metadata of solution %s: %v", remote.ID, err)
		}
		solutions = append(solutions, solution)
	}
	return solutions, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %v", path, err)
	}
	defer func(Body io.ReadCloser) {
		err := Body.Close()
		if err != nil {
			c.logger.Error("Failed to close response body: %v", err)
		}
	}(resp.Body)

	// Read the response body regardless of status code
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %v", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ledger.ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(bodyBytes))
	}

	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("failed to decode response: %v, body: %s", err, string(bodyBytes))
	}
	return nil
}

// Helper function to create an HTTP client with timeouts
func createHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
