package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"discubot/backend/internal/pipeline"
)

// ResendWebhook is the Svix-signed event Resend delivers. It is metadata-only;
// the message body must be fetched from the Resend API before classification.
type ResendWebhook struct {
	Type string `json:"type"`
	Data struct {
		EmailID string `json:"email_id"`
	} `json:"data"`
}

// ResendEmail is the message record returned by the Resend API.
type ResendEmail struct {
	ID      string   `json:"id"`
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text"`
}

// EmailFetcher fetches a message body for a metadata-only webhook.
type EmailFetcher interface {
	FetchEmail(ctx context.Context, emailID string) (*ResendEmail, error)
}

// ResendClient fetches messages from the Resend API.
type ResendClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewResendClient creates a ResendClient.
func NewResendClient(apiKey string) *ResendClient {
	return &ResendClient{
		apiKey:  apiKey,
		baseURL: "https://api.resend.com",
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// FetchEmail retrieves one message by id.
func (c *ResendClient) FetchEmail(ctx context.Context, emailID string) (*ResendEmail, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/emails/"+emailID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, pipeline.Wrap(pipeline.KindTransient, "resend", "fetch failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500:
		return nil, pipeline.New(pipeline.KindTransient, "resend",
			fmt.Sprintf("fetch returned %d", resp.StatusCode))
	default:
		return nil, pipeline.New(pipeline.KindPermanent, "resend",
			fmt.Sprintf("fetch returned %d", resp.StatusCode))
	}

	var email ResendEmail
	if err := json.NewDecoder(resp.Body).Decode(&email); err != nil {
		return nil, fmt.Errorf("decoding resend email: %w", err)
	}
	return &email, nil
}

// TransformResendEmail converts a fetched Resend message into the Mailgun
// payload shape: recipient is the first "to" address and the body fields come
// from html/text.
func TransformResendEmail(email *ResendEmail) (*MailgunPayload, error) {
	if len(email.To) == 0 {
		return nil, parseErr("resend email has no recipients")
	}
	return &MailgunPayload{
		Recipient: email.To[0],
		Sender:    normalizeAddress(email.From),
		From:      email.From,
		Subject:   email.Subject,
		BodyPlain: email.Text,
		BodyHTML:  email.HTML,
		MessageID: email.ID,
	}, nil
}

// parseResendEvent handles one Resend webhook end to end: fetch the message,
// transform it to the Mailgun shape, and hand it to the shared email parser.
// Non-inbound event types are a normal ignore outcome.
func (a *EmailAdapter) parseResendEvent(ctx context.Context, hook *ResendWebhook) (*Result, error) {
	if !strings.HasPrefix(hook.Type, "email.") || hook.Data.EmailID == "" {
		return &Result{Ignored: "unsupported resend event type: " + hook.Type}, nil
	}
	if a.fetcher == nil {
		return nil, pipeline.New(pipeline.KindPermanent, "resend", "resend api client not configured")
	}

	email, err := a.fetcher.FetchEmail(ctx, hook.Data.EmailID)
	if err != nil {
		return nil, err
	}

	p, err := TransformResendEmail(email)
	if err != nil {
		return nil, err
	}
	return a.ParsePayload(ctx, p)
}
