package models

import (
	"time"
)

// DetectedTask is one AI-extracted actionable item from a discussion. It only
// lives for the duration of a processing run unless persisted as a Task.
type DetectedTask struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Domain      string   `json:"domain,omitempty"`
	Priority    string   `json:"priority,omitempty"`
	Type        string   `json:"type,omitempty"`
	Assignee    string   `json:"assignee,omitempty"`
	DueDate     string   `json:"due_date,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	ActionItems []string `json:"action_items,omitempty"`
}

// TaskStatus is the delivery state of a persisted task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusDelivered TaskStatus = "delivered"
	TaskStatusFailed    TaskStatus = "failed"
)

// Task is the persisted record of a detected task and its delivery outcome.
// NotionPageID is what the completion-notification callback chain resolves by.
type Task struct {
	ID           string     `json:"id"`
	DiscussionID string     `json:"discussion_id"`
	FlowOutputID string     `json:"flow_output_id,omitempty"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	Domain       string     `json:"domain,omitempty"`
	Status       TaskStatus `json:"status"`
	NotionPageID string     `json:"notion_page_id,omitempty"`
	NotionURL    string     `json:"notion_url,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// NotionTaskResult describes a task record created in the destination tool.
type NotionTaskResult struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}
