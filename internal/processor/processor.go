// Package processor runs the intake state machine: de-duplicate the inbound
// discussion, summarize and extract tasks, route each task to its outputs,
// deliver to the destination tool and record the outcome.
package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"discubot/backend/internal/ai"
	"discubot/backend/internal/metrics"
	"discubot/backend/internal/notion"
	"discubot/backend/internal/pipeline"
	"discubot/backend/internal/repository"
	"discubot/backend/internal/router"
	"discubot/backend/pkg/models"
)

// Logger is the logging interface the processor needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// TaskSink creates one task record in the destination tool.
type TaskSink interface {
	CreateTask(ctx context.Context, in notion.CreateTaskInput) (*models.NotionTaskResult, error)
}

// CreatedTask describes one delivered task in a processing result.
type CreatedTask struct {
	TaskID string `json:"task_id"`
	Title  string `json:"title"`
	PageID string `json:"notion_page_id"`
	URL    string `json:"notion_url"`
}

// Result is the outcome of processing one parsed discussion.
type Result struct {
	DiscussionID string        `json:"discussion_id,omitempty"`
	Summary      string        `json:"summary,omitempty"`
	Tasks        []CreatedTask `json:"tasks,omitempty"`

	// Ignored carries the reason when the discussion was a normal
	// non-processing outcome (duplicate delivery).
	Ignored string `json:"ignored,omitempty"`
}

// Processor coordinates one discussion through the pipeline.
type Processor struct {
	repo       repository.Repository
	summarizer ai.Summarizer
	router     *router.Router
	sink       TaskSink
	metrics    *metrics.Pipeline
	logger     Logger
}

// New creates a Processor.
func New(repo repository.Repository, summarizer ai.Summarizer, r *router.Router, sink TaskSink, m *metrics.Pipeline, logger Logger) *Processor {
	return &Processor{
		repo:       repo,
		summarizer: summarizer,
		router:     r,
		sink:       sink,
		metrics:    m,
		logger:     logger,
	}
}

// Process runs one parsed discussion end to end. Redelivered events resolve to
// an ignore outcome via the stable source thread id. Delivery is sequential
// and fail-fast: a failed creation aborts the rest of the batch, but tasks
// already created stay committed and are reported in the result.
func (p *Processor) Process(ctx context.Context, d *models.ParsedDiscussion, input *models.FlowInput) (*Result, error) {
	source := string(d.SourceType)

	existing, err := p.repo.GetDiscussionBySourceThread(ctx, d.TeamID, d.SourceType, d.SourceThreadID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("checking for duplicate discussion: %w", err)
	}
	if existing != nil {
		p.metrics.EventIgnored(ctx, source)
		p.logger.Info("duplicate discussion delivery ignored",
			"discussion_id", existing.ID, "source_thread_id", d.SourceThreadID)
		return &Result{DiscussionID: existing.ID, Ignored: "discussion already processed"}, nil
	}

	summary, detected, err := p.summarizer.SummarizeAndExtract(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("summarizing discussion: %w", err)
	}

	disc := &models.Discussion{
		ID:             uuid.New().String(),
		FlowInputID:    input.ID,
		TeamID:         d.TeamID,
		SourceType:     d.SourceType,
		SourceThreadID: d.SourceThreadID,
		Title:          d.Title,
		Status:         models.DiscussionStatusReceived,
		CreatedAt:      time.Now().UTC(),
	}
	if err := p.repo.CreateDiscussion(ctx, disc); err != nil {
		return nil, fmt.Errorf("persisting discussion: %w", err)
	}

	result := &Result{DiscussionID: disc.ID, Summary: summary.Summary}
	if len(detected) == 0 {
		p.finishDiscussion(ctx, disc.ID, models.DiscussionStatusProcessed, summary.Summary)
		p.logger.Info("discussion processed, no tasks detected", "discussion_id", disc.ID)
		return result, nil
	}

	outputs, err := p.repo.ListOutputs(ctx, input.FlowID)
	if err != nil {
		p.finishDiscussion(ctx, disc.ID, models.DiscussionStatusFailed, summary.Summary)
		return nil, fmt.Errorf("loading flow outputs: %w", err)
	}

	for i := range detected {
		task := &detected[i]
		routed, err := p.router.RouteTask(task, outputs)
		if err != nil {
			p.finishDiscussion(ctx, disc.ID, models.DiscussionStatusFailed, summary.Summary)
			return result, err
		}

		for _, out := range routed {
			created, err := p.deliverTask(ctx, disc, d, summary, task, out)
			if err != nil {
				p.metrics.DeliveryFailed(ctx, source)
				p.finishDiscussion(ctx, disc.ID, models.DiscussionStatusFailed, summary.Summary)
				return result, pipeline.Wrap(deliveryKind(err), "deliver",
					fmt.Sprintf("delivering task %d of %d (after %d succeeded)",
						i+1, len(detected), len(result.Tasks)), err)
			}
			p.metrics.TaskCreated(ctx, source)
			p.metrics.TaskDelivered(ctx, source)
			result.Tasks = append(result.Tasks, *created)
		}
	}

	p.finishDiscussion(ctx, disc.ID, models.DiscussionStatusProcessed, summary.Summary)
	p.logger.Info("discussion processed",
		"discussion_id", disc.ID, "tasks", len(result.Tasks), "source", source)
	return result, nil
}

// deliverTask persists one task record for one routed output and creates the
// destination page. A task routed to several outputs gets one record per
// output so the page-id lookup used by completion callbacks stays one-to-one.
func (p *Processor) deliverTask(ctx context.Context, disc *models.Discussion, d *models.ParsedDiscussion,
	summary *models.AISummary, task *models.DetectedTask, out *models.FlowOutput) (*CreatedTask, error) {

	rec := &models.Task{
		ID:           uuid.New().String(),
		DiscussionID: disc.ID,
		FlowOutputID: out.ID,
		Title:        task.Title,
		Description:  task.Description,
		Domain:       task.Domain,
		Status:       models.TaskStatusPending,
		CreatedAt:    time.Now().UTC(),
	}
	if err := p.repo.CreateTask(ctx, rec); err != nil {
		return nil, fmt.Errorf("persisting task record: %w", err)
	}

	res, err := p.sink.CreateTask(ctx, notion.CreateTaskInput{
		Task:       task,
		Summary:    summary,
		Discussion: d,
		Output:     out,
	})
	if err != nil {
		if uerr := p.repo.UpdateTaskDelivery(ctx, rec.ID, models.TaskStatusFailed, "", ""); uerr != nil {
			p.logger.Warn("failed to record task delivery failure", "task_id", rec.ID, "error", uerr)
		}
		return nil, err
	}

	if err := p.repo.UpdateTaskDelivery(ctx, rec.ID, models.TaskStatusDelivered, res.ID, res.URL); err != nil {
		p.logger.Warn("task created in destination but delivery record update failed",
			"task_id", rec.ID, "notion_page_id", res.ID, "error", err)
	}
	return &CreatedTask{TaskID: rec.ID, Title: task.Title, PageID: res.ID, URL: res.URL}, nil
}

// deliveryKind preserves the sink's classification; an unclassified failure
// is treated as transient so the upstream platform redelivers.
func deliveryKind(err error) pipeline.Kind {
	if k := pipeline.KindOf(err); k != "" {
		return k
	}
	return pipeline.KindTransient
}

func (p *Processor) finishDiscussion(ctx context.Context, id string, status models.DiscussionStatus, summary string) {
	if err := p.repo.UpdateDiscussionStatus(ctx, id, status, summary); err != nil {
		p.logger.Warn("failed to update discussion status",
			"discussion_id", id, "status", status, "error", err)
	}
}

// ProcessAsync runs Process detached from the caller's request context, for
// sources whose webhook must be acknowledged before processing completes. The
// outcome is only observable through logs, metrics and the stored records.
func (p *Processor) ProcessAsync(ctx context.Context, d *models.ParsedDiscussion, input *models.FlowInput) {
	detached := context.WithoutCancel(ctx)
	go func() {
		if _, err := p.Process(detached, d, input); err != nil {
			p.logger.Error("async discussion processing failed",
				"source_thread_id", d.SourceThreadID, "error", err)
		}
	}()
}
