// Package api contains the HTTP handlers for the intake service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"discubot/backend/internal/adapters"
	"discubot/backend/internal/config"
	"discubot/backend/internal/metrics"
	"discubot/backend/internal/pipeline"
	"discubot/backend/internal/processor"
	"discubot/backend/internal/ratelimit"
	"discubot/backend/internal/repository"
	"discubot/backend/internal/verify"
	"discubot/backend/pkg/models"
)

// Logger is the logging interface the handlers need.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Server holds the dependencies for the API server. Source adapters are
// resolved per request from the registry, keyed by the endpoint's source type.
type Server struct {
	cfg       *config.Config
	repo      repository.Repository
	processor *processor.Processor
	verifier  *verify.Verifier
	metrics   *metrics.Pipeline
	registry  *adapters.Registry
	logger    Logger
}

// NewServer creates a new Server.
func NewServer(cfg *config.Config, repo repository.Repository, p *processor.Processor,
	v *verify.Verifier, m *metrics.Pipeline, registry *adapters.Registry, logger Logger) *Server {
	return &Server{
		cfg:       cfg,
		repo:      repo,
		processor: p,
		verifier:  v,
		metrics:   m,
		registry:  registry,
		logger:    logger,
	}
}

// RegisterRoutes mounts all handlers on the Echo instance.
func (s *Server) RegisterRoutes(e *echo.Echo, limits *ratelimit.Store) {
	e.GET("/health", s.HandleHealth)

	hooks := e.Group("/webhooks", ratelimit.Middleware(limits, ratelimit.PresetWebhook))
	hooks.POST("/mailgun", s.HandleMailgunWebhook)
	hooks.POST("/resend", s.HandleResendWebhook)
	hooks.POST("/slack", s.HandleSlackWebhook)
	hooks.POST("/notion", s.HandleNotionWebhook)

	api := e.Group("/api/v1", ratelimit.Middleware(limits, ratelimit.PresetRead))
	api.GET("/tasks/notion/:page_id", s.HandleTaskByPage)
}

// HealthStatus represents the health check response.
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
}

// HandleHealth returns basic health status (always returns 200 OK).
func (s *Server) HandleHealth(c echo.Context) error {
	status := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Service:   "discubot",
		Version:   "1.0.0",
	}
	return c.JSON(http.StatusOK, status)
}

// TaskContext is the completion-callback read chain: a destination page id
// resolved back to the task, its discussion, and the input that produced it.
// Input credentials are never included.
type TaskContext struct {
	Task       *models.Task       `json:"task"`
	Discussion *models.Discussion `json:"discussion"`
	Input      struct {
		ID         string            `json:"id"`
		FlowID     string            `json:"flow_id"`
		SourceType models.SourceType `json:"source_type"`
	} `json:"input"`
}

// HandleTaskByPage resolves a destination page back to its originating
// records.
// (GET /api/v1/tasks/notion/:page_id)
func (s *Server) HandleTaskByPage(c echo.Context) error {
	ctx := c.Request().Context()
	pageID := c.Param("page_id")

	task, err := s.repo.GetTaskByNotionPageID(ctx, pageID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return problem(c, http.StatusNotFound, "Not Found", "no task for page "+pageID)
		}
		return problem(c, http.StatusInternalServerError, "Internal Server Error", err.Error())
	}

	var out TaskContext
	out.Task = task
	if disc, err := s.repo.GetDiscussion(ctx, task.DiscussionID); err == nil {
		out.Discussion = disc
		if input, err := s.repo.GetFlowInput(ctx, disc.FlowInputID); err == nil {
			out.Input.ID = input.ID
			out.Input.FlowID = input.FlowID
			out.Input.SourceType = input.SourceType
		}
	}
	return c.JSON(http.StatusOK, out)
}

// ProblemDetails represents an RFC 7807 Problem Details response.
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

// problem writes an RFC 7807 Problem Details JSON error response.
func problem(c echo.Context, status int, title, detail string) error {
	p := ProblemDetails{
		Type:   "about:blank",
		Title:  title,
		Status: status,
		Detail: detail,
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/problem+json")
	c.Response().WriteHeader(status)
	return json.NewEncoder(c.Response()).Encode(p)
}

// ignoredResponse acknowledges an event that was received but intentionally
// not processed, so the upstream platform stops redelivering it.
type ignoredResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func ignored(c echo.Context, reason string) error {
	return c.JSON(http.StatusOK, ignoredResponse{Status: "ignored", Reason: reason})
}

// webhookError maps a pipeline failure to the webhook response. Kinds that
// resolve to 200 acknowledge without processing; auth failures reject with a
// detail that does not reveal which check failed.
func (s *Server) webhookError(c echo.Context, source string, err error) error {
	ctx := c.Request().Context()
	status := pipeline.HTTPStatus(err)
	if status == http.StatusOK {
		s.metrics.EventIgnored(ctx, source)
		s.logger.Info("webhook acknowledged without processing", "source", source, "reason", err.Error())
		return ignored(c, err.Error())
	}

	s.metrics.EventRejected(ctx, source)
	detail := err.Error()
	if pipeline.KindOf(err) == pipeline.KindAuth {
		detail = "signature verification failed"
	}
	s.logger.Warn("webhook rejected", "source", source, "status", status, "error", err)
	return problem(c, status, http.StatusText(status), detail)
}
