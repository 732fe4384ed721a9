// Package ai wraps the external summarization and task-extraction service.
// The call is treated as an opaque collaborator: potentially slow, potentially
// failing, returning a structured summary plus a task list.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"discubot/backend/internal/pipeline"
	"discubot/backend/pkg/models"
)

// Summarizer is the interface consumed by the discussion processor.
type Summarizer interface {
	// SummarizeAndExtract returns a summary of the discussion and the
	// actionable tasks detected in it.
	SummarizeAndExtract(ctx context.Context, d *models.ParsedDiscussion) (*models.AISummary, []models.DetectedTask, error)
}

// HTTPClient is an HTTP implementation of the Summarizer interface.
type HTTPClient struct {
	url    string
	apiKey string
	client *http.Client
}

// NewHTTPClient creates a new HTTPClient.
func NewHTTPClient(url, apiKey string) *HTTPClient {
	return &HTTPClient{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

type extractResponse struct {
	Summary models.AISummary      `json:"summary"`
	Tasks   []models.DetectedTask `json:"tasks"`
}

// SummarizeAndExtract posts the discussion to the extraction endpoint.
func (c *HTTPClient) SummarizeAndExtract(ctx context.Context, d *models.ParsedDiscussion) (*models.AISummary, []models.DetectedTask, error) {
	requestBody, err := json.Marshal(d)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal discussion: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/v1/extract", bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, nil, pipeline.Wrap(pipeline.KindTransient, "ai", "extraction request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500:
		return nil, nil, pipeline.New(pipeline.KindTransient, "ai",
			fmt.Sprintf("extraction service returned %d", resp.StatusCode))
	default:
		return nil, nil, pipeline.New(pipeline.KindPermanent, "ai",
			fmt.Sprintf("extraction service returned %d", resp.StatusCode))
	}

	var out extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, nil, fmt.Errorf("failed to decode extraction response: %w", err)
	}

	return &out.Summary, out.Tasks, nil
}
