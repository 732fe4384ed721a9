package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"discubot/backend/pkg/models"
)

// MailgunPayload is the forwarded-email shape delivered by Mailgun routes.
// Resend webhooks are transformed into this shape so a single parser serves
// both providers.
type MailgunPayload struct {
	Recipient    string `json:"recipient"`
	Sender       string `json:"sender"`
	From         string `json:"from"`
	Subject      string `json:"subject"`
	BodyPlain    string `json:"body-plain"`
	StrippedText string `json:"stripped-text"`
	BodyHTML     string `json:"body-html"`
	MessageID    string `json:"Message-Id"`
	InReplyTo    string `json:"In-Reply-To"`
	References   string `json:"References"`
	Timestamp    string `json:"timestamp"`
}

// MailgunPayloadFromForm builds the payload from a form-encoded webhook body.
func MailgunPayloadFromForm(form url.Values) *MailgunPayload {
	return &MailgunPayload{
		Recipient:    form.Get("recipient"),
		Sender:       form.Get("sender"),
		From:         form.Get("from"),
		Subject:      form.Get("subject"),
		BodyPlain:    form.Get("body-plain"),
		StrippedText: form.Get("stripped-text"),
		BodyHTML:     form.Get("body-html"),
		MessageID:    form.Get("Message-Id"),
		InReplyTo:    form.Get("In-Reply-To"),
		References:   form.Get("References"),
		Timestamp:    form.Get("timestamp"),
	}
}

// Body returns the best available text body.
func (p *MailgunPayload) Body() string {
	if p.StrippedText != "" {
		return p.StrippedText
	}
	if p.BodyPlain != "" {
		return p.BodyPlain
	}
	return p.BodyHTML
}

// EmailAdapter parses forwarded-email webhooks into discussions. Auxiliary
// emails (verification, password reset, invitations, generic notifications)
// are stored as inbox records instead.
type EmailAdapter struct {
	store   InputStore
	fetcher EmailFetcher
	logger  Logger
}

// NewEmailAdapter creates an EmailAdapter. fetcher retrieves message bodies
// for metadata-only Resend events; it may be nil when only full-body payloads
// are expected.
func NewEmailAdapter(store InputStore, fetcher EmailFetcher, logger Logger) *EmailAdapter {
	return &EmailAdapter{store: store, fetcher: fetcher, logger: logger}
}

// SourceType implements Adapter.
func (a *EmailAdapter) SourceType() models.SourceType {
	return models.SourceTypeEmailComment
}

// Parse implements Adapter. Both email providers land here: a form-encoded
// Mailgun route body, a metadata-only Resend event (recognized by its "type"
// field, body fetched from the Resend API), or an already Mailgun-shaped
// JSON message.
func (a *EmailAdapter) Parse(ctx context.Context, payload []byte) (*Result, error) {
	body := bytes.TrimSpace(payload)
	if len(body) == 0 {
		return nil, parseErr("empty email payload")
	}

	if body[0] != '{' {
		form, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, parseErr("invalid email form payload: " + err.Error())
		}
		return a.ParsePayload(ctx, MailgunPayloadFromForm(form))
	}

	var hook ResendWebhook
	if err := json.Unmarshal(body, &hook); err != nil {
		return nil, parseErr("invalid email payload: " + err.Error())
	}
	if hook.Type != "" {
		return a.parseResendEvent(ctx, &hook)
	}

	var p MailgunPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, parseErr("invalid email payload: " + err.Error())
	}
	return a.ParsePayload(ctx, &p)
}

// ParsePayload normalizes an already-decoded payload. This is the single
// downstream parser both providers feed.
func (a *EmailAdapter) ParsePayload(ctx context.Context, p *MailgunPayload) (*Result, error) {
	if p.Recipient == "" || p.From == "" {
		return nil, parseErr("email payload missing recipient or sender")
	}

	input, err := a.store.GetFlowInputByRecipient(ctx, normalizeAddress(p.Recipient))
	if err != nil {
		return nil, noConfigErr("no input configured for recipient")
	}

	category, isComment := ClassifyEmail(p)
	if !isComment {
		msg := &models.InboxMessage{
			ID:          uuid.New().String(),
			FlowInputID: input.ID,
			Category:    category,
			From:        p.From,
			Subject:     p.Subject,
			Body:        p.Body(),
			ReceivedAt:  time.Now().UTC(),
		}
		if err := a.store.CreateInboxMessage(ctx, msg); err != nil {
			a.logger.Warn("failed to store inbox message", "input_id", input.ID, "error", err)
		}
		a.logger.Info("stored auxiliary email", "input_id", input.ID, "category", category)
		return &Result{Ignored: "auxiliary email stored as inbox record", Input: input}, nil
	}

	ts := time.Now().UTC()
	if p.Timestamp != "" {
		if unix, err := strconv.ParseInt(p.Timestamp, 10, 64); err == nil {
			ts = time.Unix(unix, 0).UTC()
		}
	}

	d := &models.ParsedDiscussion{
		TeamID:         input.TeamID,
		SourceType:     models.SourceTypeEmailComment,
		SourceThreadID: emailThreadID(p),
		Title:          stripReplyPrefix(p.Subject),
		Root: models.Message{
			ID:         p.MessageID,
			AuthorID:   normalizeAddress(p.From),
			AuthorName: displayName(p.From),
			Content:    p.Body(),
			Timestamp:  ts,
		},
		Participants: []string{normalizeAddress(p.From)},
		Metadata:     map[string]string{"recipient": p.Recipient},
	}
	return &Result{Discussion: d, Input: input}, nil
}

// emailThreadID derives a stable thread identifier so redelivered or replied
// messages de-duplicate to the same discussion: the first References entry
// when present, then In-Reply-To, then the message id itself. References is
// an arbitrary inbound header and may be blank-padded or whitespace-only.
func emailThreadID(p *MailgunPayload) string {
	if refs := strings.Fields(p.References); len(refs) > 0 {
		return refs[0]
	}
	if p.InReplyTo != "" {
		return p.InReplyTo
	}
	return p.MessageID
}

// normalizeAddress reduces "Name <a@b.c>" to "a@b.c".
func normalizeAddress(s string) string {
	if i := strings.IndexByte(s, '<'); i >= 0 {
		if j := strings.IndexByte(s[i:], '>'); j > 0 {
			return strings.ToLower(strings.TrimSpace(s[i+1 : i+j]))
		}
	}
	return strings.ToLower(strings.TrimSpace(s))
}

// displayName extracts the human name from "Name <a@b.c>", if any.
func displayName(s string) string {
	if i := strings.IndexByte(s, '<'); i > 0 {
		return strings.Trim(strings.TrimSpace(s[:i]), `"`)
	}
	return ""
}

func stripReplyPrefix(subject string) string {
	s := subject
	for {
		trimmed := strings.TrimSpace(s)
		lower := strings.ToLower(trimmed)
		switch {
		case strings.HasPrefix(lower, "re:"):
			s = trimmed[3:]
		case strings.HasPrefix(lower, "fwd:"):
			s = trimmed[4:]
		default:
			return trimmed
		}
	}
}

var auxiliaryPatterns = []struct {
	category models.InboxCategory
	keywords []string
}{
	{models.InboxCategoryVerification, []string{"verify your email", "confirm your email", "email verification", "verification code"}},
	{models.InboxCategoryPasswordReset, []string{"reset your password", "password reset"}},
	{models.InboxCategoryInvitation, []string{"invited you", "invitation to join", "has invited you"}},
}

var commentMarkers = []string{"commented", "replied to", "mentioned you", "new comment"}

// ClassifyEmail decides whether a forwarded email is a genuine
// comment-notification or an auxiliary message. Auxiliary messages carry a
// category; comment notifications report isComment=true.
func ClassifyEmail(p *MailgunPayload) (models.InboxCategory, bool) {
	haystack := strings.ToLower(p.Subject + " " + p.Body())

	for _, pat := range auxiliaryPatterns {
		for _, kw := range pat.keywords {
			if strings.Contains(haystack, kw) {
				return pat.category, false
			}
		}
	}
	for _, marker := range commentMarkers {
		if strings.Contains(haystack, marker) {
			return "", true
		}
	}
	return models.InboxCategoryNotification, false
}
