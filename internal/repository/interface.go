package repository

import (
	"context"

	"discubot/backend/pkg/models"
)

// Repository is the keyed store behind the pipeline. Point queries only; the
// one multi-step read is the completion-callback chain (task by Notion page
// id, then its discussion, then its flow input).
type Repository interface {
	// Flow configuration (read-only to the pipeline, except metadata capture).
	GetFlow(ctx context.Context, id string) (*models.Flow, error)
	GetFlowInput(ctx context.Context, id string) (*models.FlowInput, error)
	GetFlowInputByRecipient(ctx context.Context, recipient string) (*models.FlowInput, error)
	ListActiveInputs(ctx context.Context, sourceType models.SourceType) ([]*models.FlowInput, error)
	ListOutputs(ctx context.Context, flowID string) ([]*models.FlowOutput, error)
	UpdateInputMetadata(ctx context.Context, inputID string, metadata map[string]string) error

	// Discussions and tasks.
	GetDiscussion(ctx context.Context, id string) (*models.Discussion, error)
	GetDiscussionBySourceThread(ctx context.Context, teamID string, sourceType models.SourceType, threadID string) (*models.Discussion, error)
	CreateDiscussion(ctx context.Context, d *models.Discussion) error
	UpdateDiscussionStatus(ctx context.Context, id string, status models.DiscussionStatus, summary string) error
	CreateTask(ctx context.Context, t *models.Task) error
	UpdateTaskDelivery(ctx context.Context, id string, status models.TaskStatus, pageID, url string) error
	GetTaskByNotionPageID(ctx context.Context, pageID string) (*models.Task, error)

	// Identity mapping, read-only to the pipeline.
	GetUserMapping(ctx context.Context, teamID string, sourceType models.SourceType, workspaceID, sourceUserID string) (*models.UserMapping, error)

	// Auxiliary email inbox.
	CreateInboxMessage(ctx context.Context, m *models.InboxMessage) error

	Ping(ctx context.Context) error
}
