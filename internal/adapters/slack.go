package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"discubot/backend/pkg/models"
)

// SlackEvent is the envelope Slack posts to the events endpoint.
type SlackEvent struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge,omitempty"`
	TeamID    string `json:"team_id"`
	Event     struct {
		Type     string `json:"type"`
		Subtype  string `json:"subtype,omitempty"`
		Channel  string `json:"channel"`
		User     string `json:"user"`
		Username string `json:"username,omitempty"`
		Text     string `json:"text"`
		TS       string `json:"ts"`
		ThreadTS string `json:"thread_ts,omitempty"`
		// Populated when a relay forwards the whole thread at once.
		Messages []struct {
			User     string `json:"user"`
			Username string `json:"username,omitempty"`
			Text     string `json:"text"`
			TS       string `json:"ts"`
		} `json:"messages,omitempty"`
	} `json:"event"`
}

// SlackAdapter parses chat message/thread payloads directly.
type SlackAdapter struct {
	store  InputStore
	logger Logger
}

// NewSlackAdapter creates a SlackAdapter.
func NewSlackAdapter(store InputStore, logger Logger) *SlackAdapter {
	return &SlackAdapter{store: store, logger: logger}
}

// SourceType implements Adapter.
func (a *SlackAdapter) SourceType() models.SourceType {
	return models.SourceTypeSlack
}

// Parse implements Adapter.
func (a *SlackAdapter) Parse(ctx context.Context, payload []byte) (*Result, error) {
	var ev SlackEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, parseErr("invalid slack payload: " + err.Error())
	}

	if ev.Type == "url_verification" {
		return &Result{Challenge: ev.Challenge}, nil
	}
	if ev.Type != "event_callback" || ev.Event.Type != "message" {
		return &Result{Ignored: "unsupported slack event type"}, nil
	}
	if ev.Event.Subtype != "" {
		// Edits, joins and bot messages are not new discussion content.
		return &Result{Ignored: "ignored slack message subtype: " + ev.Event.Subtype}, nil
	}
	if ev.Event.Channel == "" || ev.Event.TS == "" {
		return nil, parseErr("slack message missing channel or timestamp")
	}

	input, err := a.matchInput(ctx, &ev)
	if err != nil {
		return nil, err
	}

	threadTS := ev.Event.ThreadTS
	if threadTS == "" {
		threadTS = ev.Event.TS
	}

	d := &models.ParsedDiscussion{
		TeamID:         input.TeamID,
		SourceType:     models.SourceTypeSlack,
		SourceThreadID: fmt.Sprintf("%s:%s", ev.Event.Channel, threadTS),
		Title:          discussionTitle(ev.Event.Text),
		Metadata: map[string]string{
			models.MetaWorkspaceID: ev.TeamID,
			models.MetaChannelID:   ev.Event.Channel,
		},
	}

	if len(ev.Event.Messages) > 0 {
		for i, m := range ev.Event.Messages {
			msg := models.Message{
				ID:         m.TS,
				AuthorID:   m.User,
				AuthorName: m.Username,
				Content:    m.Text,
				Timestamp:  slackTime(m.TS),
			}
			if i == 0 {
				d.Root = msg
			} else {
				d.Replies = append(d.Replies, msg)
			}
			d.Participants = appendUnique(d.Participants, m.User)
		}
	} else {
		d.Root = models.Message{
			ID:         ev.Event.TS,
			AuthorID:   ev.Event.User,
			AuthorName: ev.Event.Username,
			Content:    ev.Event.Text,
			Timestamp:  slackTime(ev.Event.TS),
		}
		d.Participants = []string{ev.Event.User}
	}

	return &Result{Discussion: d, Input: input}, nil
}

// matchInput finds the configured input for the event's workspace, preferring
// a channel match when one is configured.
func (a *SlackAdapter) matchInput(ctx context.Context, ev *SlackEvent) (*models.FlowInput, error) {
	inputs, err := a.store.ListActiveInputs(ctx, models.SourceTypeSlack)
	if err != nil {
		return nil, fmt.Errorf("listing slack inputs: %w", err)
	}

	var workspaceMatch *models.FlowInput
	for _, in := range inputs {
		if in.WorkspaceID() != ev.TeamID {
			continue
		}
		if ch := in.Metadata[models.MetaChannelID]; ch != "" && ch == ev.Event.Channel {
			return in, nil
		}
		if workspaceMatch == nil {
			workspaceMatch = in
		}
	}
	if workspaceMatch != nil {
		return workspaceMatch, nil
	}
	return nil, noConfigErr("no slack input configured for workspace " + ev.TeamID)
}

// slackTime converts a Slack ts ("1700000000.000100") to a time.
func slackTime(ts string) time.Time {
	secs, _, _ := strings.Cut(ts, ".")
	unix, err := strconv.ParseInt(secs, 10, 64)
	if err != nil {
		return time.Now().UTC()
	}
	return time.Unix(unix, 0).UTC()
}

// discussionTitle derives a short title from the first message. Truncation
// counts runes so a multi-byte character is never split.
func discussionTitle(text string) string {
	title := strings.TrimSpace(text)
	if i := strings.IndexByte(title, '\n'); i > 0 {
		title = title[:i]
	}
	if runes := []rune(title); len(runes) > 80 {
		title = string(runes[:77]) + "..."
	}
	return title
}

func appendUnique(list []string, v string) []string {
	if v == "" {
		return list
	}
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
