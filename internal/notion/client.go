// Package notion implements the task sink: it turns detected tasks into pages
// in a Notion database, resolving source identities to Notion users and
// pacing writes to respect the Notion API rate limit.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"discubot/backend/internal/pipeline"
	"discubot/backend/internal/repository"
	"discubot/backend/internal/retry"
	"discubot/backend/pkg/models"
)

const defaultBaseURL = "https://api.notion.com"

// writeInterval is the fixed delay between sequential page creations. Notion
// allows an average of ~3 requests per second per integration.
const writeInterval = 200 * time.Millisecond

// Logger is the logging interface the client needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Debug(msg string, args ...any)
}

// MappingResolver resolves source identities to Notion users.
type MappingResolver interface {
	GetUserMapping(ctx context.Context, teamID string, sourceType models.SourceType, workspaceID, sourceUserID string) (*models.UserMapping, error)
}

// Client talks to the Notion API with bearer-token auth and a fixed API
// version header.
type Client struct {
	token    string
	version  string
	baseURL  string
	http     *http.Client
	limiter  *rate.Limiter
	mappings MappingResolver
	logger   Logger

	createPolicy   retry.Config
	validatePolicy retry.Config
}

// NewClient creates a Client. An empty token is tolerated at construction so
// the service can start while secrets are provisioned; delivery calls fail
// with a permanent error until one is configured.
func NewClient(token, version string, mappings MappingResolver, logger Logger) *Client {
	if version == "" {
		version = "2022-06-28"
	}
	if token == "" {
		logger.Warn("notion token not configured, task delivery will fail until it is set")
	}
	return &Client{
		token:    token,
		version:  version,
		baseURL:  defaultBaseURL,
		http:     &http.Client{Timeout: 15 * time.Second},
		limiter:  rate.NewLimiter(rate.Every(writeInterval), 1),
		mappings: mappings,
		logger:   logger,

		createPolicy:   retry.TaskCreation,
		validatePolicy: retry.Validation,
	}
}

// CreateTaskInput carries everything needed to build one destination page.
type CreateTaskInput struct {
	Task       *models.DetectedTask
	Summary    *models.AISummary
	Discussion *models.ParsedDiscussion
	Output     *models.FlowOutput
}

// CreateTask creates one page in the output's database. Retried with the
// task-creation policy; Notion 4xx responses are permanent, 5xx and timeouts
// transient.
func (c *Client) CreateTask(ctx context.Context, in CreateTaskInput) (*models.NotionTaskResult, error) {
	if c.token == "" {
		return nil, pipeline.New(pipeline.KindPermanent, "notion", "notion token not configured")
	}

	assigneeID := c.resolveAssignee(ctx, in)

	body := map[string]any{
		"parent":     map[string]any{"database_id": in.Output.DatabaseID},
		"properties": buildProperties(in.Task, in.Output, assigneeID),
		"children":   buildChildren(in.Discussion, in.Summary, in.Task),
	}

	return retry.Do(ctx, c.createPolicy, func(ctx context.Context) (*models.NotionTaskResult, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		var page struct {
			ID          string    `json:"id"`
			URL         string    `json:"url"`
			CreatedTime time.Time `json:"created_time"`
		}
		if err := c.do(ctx, "POST", "/v1/pages", body, &page); err != nil {
			return nil, err
		}
		return &models.NotionTaskResult{ID: page.ID, URL: page.URL, CreatedAt: page.CreatedTime}, nil
	})
}

// DatabaseInfo is human-readable destination metadata.
type DatabaseInfo struct {
	Title string
	URL   string
}

// CheckConnectivity verifies the database id and credential are valid without
// creating anything.
func (c *Client) CheckConnectivity(ctx context.Context, databaseID string) (*DatabaseInfo, error) {
	if c.token == "" {
		return nil, pipeline.New(pipeline.KindPermanent, "notion", "notion token not configured")
	}

	return retry.Do(ctx, c.validatePolicy, func(ctx context.Context) (*DatabaseInfo, error) {
		var db struct {
			URL   string `json:"url"`
			Title []struct {
				PlainText string `json:"plain_text"`
			} `json:"title"`
		}
		if err := c.do(ctx, "GET", "/v1/databases/"+databaseID, nil, &db); err != nil {
			return nil, err
		}
		info := &DatabaseInfo{URL: db.URL}
		for _, t := range db.Title {
			info.Title += t.PlainText
		}
		return info, nil
	})
}

// resolveAssignee returns a Notion user id for the task's assignee, or ""
// when it cannot be resolved. An unresolved assignee degrades to omitting the
// property rather than failing the task.
func (c *Client) resolveAssignee(ctx context.Context, in CreateTaskInput) string {
	assignee := in.Task.Assignee
	if assignee == "" {
		return ""
	}
	// Already shaped like a Notion user id.
	if isUUID(assignee) {
		return assignee
	}

	d := in.Discussion
	mapping, err := c.mappings.GetUserMapping(ctx, d.TeamID, d.SourceType,
		d.Metadata[models.MetaWorkspaceID], assignee)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			c.logger.Warn("user mapping lookup failed", "source_user", assignee, "error", err)
		} else {
			c.logger.Debug("no user mapping for assignee, omitting", "source_user", assignee)
		}
		return ""
	}
	return mapping.NotionUserID
}

// do performs one API call and decodes the response, classifying failures as
// transient or permanent.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return retry.Permanent(fmt.Errorf("marshaling request: %w", err))
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Notion-Version", c.version)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return pipeline.Wrap(pipeline.KindTransient, "notion", "request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return pipeline.New(pipeline.KindTransient, "notion",
			fmt.Sprintf("%s %s returned %d", method, path, resp.StatusCode))
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return retry.Permanent(pipeline.New(pipeline.KindPermanent, "notion",
			fmt.Sprintf("%s %s returned %d: %s", method, path, resp.StatusCode, msg)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return retry.Permanent(fmt.Errorf("decoding response: %w", err))
	}
	return nil
}
