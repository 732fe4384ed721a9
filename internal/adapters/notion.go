package adapters

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"discubot/backend/pkg/models"
)

// notionTokenCredential is the per-input credential key holding the source
// workspace's integration token.
const notionTokenCredential = "notion_token"

// NotionWebhook is the event Notion posts. A first-time subscription sends
// only a verification token, which must be echoed back verbatim.
type NotionWebhook struct {
	VerificationToken string `json:"verification_token,omitempty"`

	ID            string `json:"id"`
	Timestamp     string `json:"timestamp"`
	WorkspaceID   string `json:"workspace_id"`
	IntegrationID string `json:"integration_id"`
	Type          string `json:"type"`
	Entity        struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	} `json:"entity"`
	Data struct {
		PageID       string `json:"page_id"`
		DiscussionID string `json:"discussion_id"`
		Parent       struct {
			ID   string `json:"id"`
			Type string `json:"type"`
		} `json:"parent"`
	} `json:"data"`
}

// EventTime parses the payload timestamp, used for the replay-window check.
func (w *NotionWebhook) EventTime() time.Time {
	ts, err := time.Parse(time.RFC3339, w.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return ts
}

// Comment is one comment fetched from the wiki platform.
type Comment struct {
	ID           string
	DiscussionID string
	PageID       string
	Text         string
	AuthorID     string
	AuthorName   string
	CreatedTime  time.Time
}

// CommentFetcher retrieves the comments of a page; the webhook payload itself
// carries only identifiers.
type CommentFetcher interface {
	ListComments(ctx context.Context, token, blockID string) ([]Comment, error)
}

// NotionAdapter handles wiki-platform comment webhooks.
type NotionAdapter struct {
	store   InputStore
	fetcher CommentFetcher
	logger  Logger
}

// NewNotionAdapter creates a NotionAdapter.
func NewNotionAdapter(store InputStore, fetcher CommentFetcher, logger Logger) *NotionAdapter {
	return &NotionAdapter{store: store, fetcher: fetcher, logger: logger}
}

// SourceType implements Adapter.
func (a *NotionAdapter) SourceType() models.SourceType {
	return models.SourceTypeNotion
}

// Parse implements Adapter. Only comment.created events with the trigger
// keyword in the comment text proceed to full parsing; everything else is a
// normal ignore outcome.
func (a *NotionAdapter) Parse(ctx context.Context, payload []byte) (*Result, error) {
	var hook NotionWebhook
	if err := json.Unmarshal(payload, &hook); err != nil {
		return nil, parseErr("invalid notion payload: " + err.Error())
	}

	if hook.VerificationToken != "" {
		return &Result{Challenge: hook.VerificationToken}, nil
	}
	if hook.Type != "comment.created" {
		return &Result{Ignored: "unsupported notion event type: " + hook.Type}, nil
	}
	if hook.Entity.ID == "" || hook.Data.PageID == "" {
		return nil, parseErr("notion event missing comment or page id")
	}

	input, err := a.matchInput(ctx, &hook)
	if err != nil {
		return nil, err
	}
	a.captureMetadata(ctx, input, &hook)

	token := input.Credentials[notionTokenCredential]
	comments, err := a.fetcher.ListComments(ctx, token, hook.Data.PageID)
	if err != nil {
		return nil, err
	}

	var triggering *Comment
	for i := range comments {
		if comments[i].ID == hook.Entity.ID {
			triggering = &comments[i]
			break
		}
	}
	if triggering == nil {
		return nil, parseErr("comment not found on page")
	}

	keyword := input.TriggerKeyword(DefaultTriggerKeyword)
	if !strings.Contains(strings.ToLower(triggering.Text), strings.ToLower(keyword)) {
		return &Result{Ignored: "trigger keyword absent", Input: input}, nil
	}

	// The discussion is the comment thread the trigger belongs to.
	var thread []Comment
	for _, c := range comments {
		if c.DiscussionID == triggering.DiscussionID {
			thread = append(thread, c)
		}
	}

	d := &models.ParsedDiscussion{
		TeamID:         input.TeamID,
		SourceType:     models.SourceTypeNotion,
		SourceThreadID: threadIdentifier(triggering),
		Title:          discussionTitle(thread[0].Text),
		PageID:         hook.Data.PageID,
		Metadata: map[string]string{
			models.MetaWorkspaceID: hook.WorkspaceID,
		},
	}
	for i, c := range thread {
		msg := models.Message{
			ID:         c.ID,
			AuthorID:   c.AuthorID,
			AuthorName: c.AuthorName,
			Content:    c.Text,
			Timestamp:  c.CreatedTime,
		}
		if i == 0 {
			d.Root = msg
		} else {
			d.Replies = append(d.Replies, msg)
		}
		d.Participants = appendUnique(d.Participants, c.AuthorID)
	}

	return &Result{Discussion: d, Input: input}, nil
}

func threadIdentifier(c *Comment) string {
	if c.DiscussionID != "" {
		return c.DiscussionID
	}
	return c.ID
}

// matchInput matches the event to a configured input: workspace id first,
// then a single candidate with a usable credential, then the integration id
// as a tiebreaker. A remaining ambiguity resolves to the first candidate with
// a logged warning — a documented degradation, not a silent choice.
func (a *NotionAdapter) matchInput(ctx context.Context, hook *NotionWebhook) (*models.FlowInput, error) {
	inputs, err := a.store.ListActiveInputs(ctx, models.SourceTypeNotion)
	if err != nil {
		return nil, err
	}

	for _, in := range inputs {
		if in.WorkspaceID() != "" && in.WorkspaceID() == hook.WorkspaceID {
			return in, nil
		}
	}

	var candidates []*models.FlowInput
	for _, in := range inputs {
		if in.WorkspaceID() == "" && in.Credentials[notionTokenCredential] != "" {
			candidates = append(candidates, in)
		}
	}
	switch len(candidates) {
	case 0:
		return nil, noConfigErr("no notion input configured for workspace " + hook.WorkspaceID)
	case 1:
		return candidates[0], nil
	}

	if hook.IntegrationID != "" {
		for _, in := range candidates {
			if in.IntegrationID() == hook.IntegrationID {
				return in, nil
			}
		}
	}

	a.logger.Warn("ambiguous notion input match, using first candidate",
		"workspace_id", hook.WorkspaceID, "candidates", len(candidates),
		"input_id", candidates[0].ID)
	return candidates[0], nil
}

// captureMetadata persists workspace/integration identifiers learned from the
// first successful webhook so future matching is precise.
func (a *NotionAdapter) captureMetadata(ctx context.Context, input *models.FlowInput, hook *NotionWebhook) {
	changed := false
	if input.Metadata == nil {
		input.Metadata = make(map[string]string)
	}
	if input.WorkspaceID() == "" && hook.WorkspaceID != "" {
		input.Metadata[models.MetaWorkspaceID] = hook.WorkspaceID
		changed = true
	}
	if input.IntegrationID() == "" && hook.IntegrationID != "" {
		input.Metadata[models.MetaIntegrationID] = hook.IntegrationID
		changed = true
	}
	if !changed {
		return
	}
	if err := a.store.UpdateInputMetadata(ctx, input.ID, input.Metadata); err != nil {
		a.logger.Warn("failed to persist captured input metadata",
			"input_id", input.ID, "error", err)
	} else {
		a.logger.Info("captured input metadata from webhook",
			"input_id", input.ID, "workspace_id", hook.WorkspaceID)
	}
}
