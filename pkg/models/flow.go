// Package models defines the domain models for the discussion-intake pipeline
package models

import (
	"time"
)

// SourceType identifies the platform an inbound channel listens to
type SourceType string

const (
	SourceTypeEmailComment SourceType = "email_comment"
	SourceTypeSlack        SourceType = "slack"
	SourceTypeNotion       SourceType = "notion"
)

// DestinationType identifies where routed tasks are created
type DestinationType string

const (
	DestinationTypeNotion DestinationType = "notion"
)

// Metadata keys auto-captured from the first successful webhook match.
const (
	MetaWorkspaceID    = "workspace_id"
	MetaIntegrationID  = "integration_id"
	MetaChannelID      = "channel_id"
	MetaTriggerKeyword = "trigger_keyword"
)

// FlowInput is one configured inbound channel (a mailbox alias, a Slack
// integration, a Notion webhook). Created by user configuration; the pipeline
// only mutates its Metadata via auto-capture.
type FlowInput struct {
	ID          string            `json:"id"`
	FlowID      string            `json:"flow_id"`
	TeamID      string            `json:"team_id"`
	SourceType  SourceType        `json:"source_type"`
	Credentials map[string]string `json:"credentials,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Active      bool              `json:"active"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// WorkspaceID returns the source workspace identifier captured for this input,
// if any.
func (f *FlowInput) WorkspaceID() string {
	return f.Metadata[MetaWorkspaceID]
}

// IntegrationID returns the source integration identifier captured for this
// input, if any.
func (f *FlowInput) IntegrationID() string {
	return f.Metadata[MetaIntegrationID]
}

// TriggerKeyword returns the configured trigger keyword, or the provided
// default when none is configured.
func (f *FlowInput) TriggerKeyword(def string) string {
	if kw := f.Metadata[MetaTriggerKeyword]; kw != "" {
		return kw
	}
	return def
}

// FieldMapping maps a detected-task field onto a destination property, with an
// optional per-value transform table.
type FieldMapping struct {
	Property string            `json:"property"`
	Type     string            `json:"type,omitempty"`
	Values   map[string]string `json:"values,omitempty"`
}

// FlowOutput is one configured destination sink with an optional domain filter
// and a default flag. Read-only to the pipeline.
type FlowOutput struct {
	ID            string                  `json:"id"`
	FlowID        string                  `json:"flow_id"`
	Destination   DestinationType         `json:"destination"`
	DatabaseID    string                  `json:"database_id"`
	Credentials   map[string]string       `json:"credentials,omitempty"`
	DomainFilter  []string                `json:"domain_filter,omitempty"`
	IsDefault     bool                    `json:"is_default"`
	FieldMappings map[string]FieldMapping `json:"field_mappings,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
}

// MatchesDomain reports whether this output's domain filter contains the tag.
func (o *FlowOutput) MatchesDomain(domain string) bool {
	for _, d := range o.DomainFilter {
		if d == domain {
			return true
		}
	}
	return false
}

// Flow groups one or more inputs with one or more outputs under a team.
// Invariant: at least one output, exactly one flagged IsDefault.
type Flow struct {
	ID        string        `json:"id"`
	TeamID    string        `json:"team_id"`
	Name      string        `json:"name"`
	Active    bool          `json:"active"`
	Inputs    []*FlowInput  `json:"inputs,omitempty"`
	Outputs   []*FlowOutput `json:"outputs,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}
