package models

import (
	"time"
)

// UserMapping links a source platform identity to a Notion user. Written by an
// out-of-band reconciliation process; the pipeline only reads it when
// resolving @mentions and assignees.
type UserMapping struct {
	ID                string     `json:"id"`
	TeamID            string     `json:"team_id"`
	SourceType        SourceType `json:"source_type"`
	SourceWorkspaceID string     `json:"source_workspace_id,omitempty"`
	SourceUserID      string     `json:"source_user_id"`
	NotionUserID      string     `json:"notion_user_id"`
	Confidence        float64    `json:"confidence,omitempty"`
	Active            bool       `json:"active"`
	CreatedAt         time.Time  `json:"created_at"`
}
