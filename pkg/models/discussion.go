package models

import (
	"time"
)

// Message is a single message inside a discussion thread.
type Message struct {
	ID         string    `json:"id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
}

// ParsedDiscussion is the canonical normalized representation every source
// adapter produces. SourceThreadID is stable across repeated deliveries of the
// same underlying event, which is what makes de-duplication possible.
type ParsedDiscussion struct {
	TeamID         string            `json:"team_id"`
	SourceType     SourceType        `json:"source_type"`
	SourceThreadID string            `json:"source_thread_id"`
	Title          string            `json:"title"`
	Root           Message           `json:"root"`
	Replies        []Message         `json:"replies,omitempty"`
	Participants   []string          `json:"participants,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`

	// PageID is set by the Notion adapter so deep links can point at the
	// commented page rather than the workspace root.
	PageID string `json:"page_id,omitempty"`
}

// Messages returns the root message followed by the replies, in order.
func (d *ParsedDiscussion) Messages() []Message {
	out := make([]Message, 0, len(d.Replies)+1)
	out = append(out, d.Root)
	out = append(out, d.Replies...)
	return out
}

// DiscussionStatus is the lifecycle state of a persisted discussion.
type DiscussionStatus string

const (
	DiscussionStatusReceived  DiscussionStatus = "received"
	DiscussionStatusProcessed DiscussionStatus = "processed"
	DiscussionStatusIgnored   DiscussionStatus = "ignored"
	DiscussionStatusFailed    DiscussionStatus = "failed"
)

// Discussion is the persisted record of a processed inbound thread.
type Discussion struct {
	ID             string           `json:"id"`
	FlowInputID    string           `json:"flow_input_id"`
	TeamID         string           `json:"team_id"`
	SourceType     SourceType       `json:"source_type"`
	SourceThreadID string           `json:"source_thread_id"`
	Title          string           `json:"title"`
	Summary        string           `json:"summary,omitempty"`
	Status         DiscussionStatus `json:"status"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// AISummary is the summary half of the AI collaborator's output.
type AISummary struct {
	Summary    string   `json:"summary"`
	KeyPoints  []string `json:"key_points,omitempty"`
	Sentiment  string   `json:"sentiment,omitempty"`
	Confidence float64  `json:"confidence"`
}
