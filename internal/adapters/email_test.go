package adapters

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"discubot/backend/internal/pipeline"
	"discubot/backend/internal/repository"
	"discubot/backend/pkg/models"
)

type noopLogger struct{}

func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Debug(msg string, args ...any) {}

// MockInputStore satisfies InputStore
type MockInputStore struct {
	mock.Mock
}

func (m *MockInputStore) GetFlowInputByRecipient(ctx context.Context, recipient string) (*models.FlowInput, error) {
	args := m.Called(ctx, recipient)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FlowInput), args.Error(1)
}

func (m *MockInputStore) ListActiveInputs(ctx context.Context, sourceType models.SourceType) ([]*models.FlowInput, error) {
	args := m.Called(ctx, sourceType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.FlowInput), args.Error(1)
}

func (m *MockInputStore) UpdateInputMetadata(ctx context.Context, inputID string, metadata map[string]string) error {
	args := m.Called(ctx, inputID, metadata)
	return args.Error(0)
}

func (m *MockInputStore) CreateInboxMessage(ctx context.Context, msg *models.InboxMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func emailInput() *models.FlowInput {
	return &models.FlowInput{
		ID:         "input-1",
		FlowID:     "flow-1",
		TeamID:     "team-1",
		SourceType: models.SourceTypeEmailComment,
		Active:     true,
		Metadata:   map[string]string{"recipient": "intake@team.discubot.dev"},
	}
}

func TestParsePayload_CommentNotification(t *testing.T) {
	store := new(MockInputStore)
	store.On("GetFlowInputByRecipient", mock.Anything, "intake@team.discubot.dev").
		Return(emailInput(), nil)

	a := NewEmailAdapter(store, nil, noopLogger{})
	res, err := a.ParsePayload(context.Background(), &MailgunPayload{
		Recipient:    "intake@team.discubot.dev",
		From:         `Ana Torres <ana@acme.com>`,
		Subject:      "Re: Ana commented on Launch plan",
		StrippedText: "We should split this into two tasks.",
		MessageID:    "<msg-2@acme.com>",
		References:   "<msg-1@acme.com> <msg-2@acme.com>",
		Timestamp:    "1700000000",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Discussion)

	d := res.Discussion
	assert.Equal(t, "team-1", d.TeamID)
	assert.Equal(t, "<msg-1@acme.com>", d.SourceThreadID, "thread id comes from References")
	assert.Equal(t, "Ana commented on Launch plan", d.Title)
	assert.Equal(t, "ana@acme.com", d.Root.AuthorID)
	assert.Equal(t, "Ana Torres", d.Root.AuthorName)
	assert.Equal(t, []string{"ana@acme.com"}, d.Participants)
	store.AssertExpectations(t)
}

func TestParsePayload_AuxiliaryEmailStoredAsInbox(t *testing.T) {
	store := new(MockInputStore)
	store.On("GetFlowInputByRecipient", mock.Anything, "intake@team.discubot.dev").
		Return(emailInput(), nil)
	store.On("CreateInboxMessage", mock.Anything, mock.MatchedBy(func(m *models.InboxMessage) bool {
		return m.Category == models.InboxCategoryVerification && m.FlowInputID == "input-1"
	})).Return(nil)

	a := NewEmailAdapter(store, nil, noopLogger{})
	res, err := a.ParsePayload(context.Background(), &MailgunPayload{
		Recipient: "intake@team.discubot.dev",
		From:      "no-reply@notion.so",
		Subject:   "Verify your email address",
		BodyPlain: "Click here to verify your email.",
	})
	require.NoError(t, err)
	assert.Nil(t, res.Discussion)
	assert.NotEmpty(t, res.Ignored)
	store.AssertExpectations(t)
}

func TestParsePayload_NoMatchingInput(t *testing.T) {
	store := new(MockInputStore)
	store.On("GetFlowInputByRecipient", mock.Anything, mock.Anything).
		Return(nil, repository.ErrNotFound)

	a := NewEmailAdapter(store, nil, noopLogger{})
	_, err := a.ParsePayload(context.Background(), &MailgunPayload{
		Recipient: "nobody@team.discubot.dev",
		From:      "ana@acme.com",
	})
	assert.Equal(t, pipeline.KindNoConfig, pipeline.KindOf(err))
}

func TestParsePayload_MissingFields(t *testing.T) {
	a := NewEmailAdapter(new(MockInputStore), nil, noopLogger{})
	_, err := a.ParsePayload(context.Background(), &MailgunPayload{})
	assert.Equal(t, pipeline.KindParse, pipeline.KindOf(err))
}

func TestClassifyEmail(t *testing.T) {
	tests := []struct {
		name      string
		subject   string
		body      string
		category  models.InboxCategory
		isComment bool
	}{
		{"comment", "Ana commented on Launch plan", "see thread", "", true},
		{"mention", "Bo mentioned you in Roadmap", "ping", "", true},
		{"verification", "Verify your email address", "", models.InboxCategoryVerification, false},
		{"password reset", "Reset your password", "", models.InboxCategoryPasswordReset, false},
		{"invitation", "Ana has invited you to Acme", "", models.InboxCategoryInvitation, false},
		{"generic", "Weekly digest", "here is your digest", models.InboxCategoryNotification, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat, isComment := ClassifyEmail(&MailgunPayload{Subject: tt.subject, BodyPlain: tt.body})
			assert.Equal(t, tt.isComment, isComment)
			assert.Equal(t, tt.category, cat)
		})
	}
}

func TestTransformResendEmail(t *testing.T) {
	email := &ResendEmail{
		ID:      "re-msg-1",
		From:    "Bo <bo@acme.com>",
		To:      []string{"intake@team.discubot.dev", "cc@acme.com"},
		Subject: "Bo commented on Pricing",
		HTML:    "<p>Thoughts?</p>",
		Text:    "Thoughts?",
	}

	p, err := TransformResendEmail(email)
	require.NoError(t, err)
	assert.Equal(t, "intake@team.discubot.dev", p.Recipient, "recipient is the first to address")
	assert.Equal(t, "Bo <bo@acme.com>", p.From)
	assert.Equal(t, "Thoughts?", p.BodyPlain)
	assert.Equal(t, "<p>Thoughts?</p>", p.BodyHTML)
	assert.Equal(t, "re-msg-1", p.MessageID)

	_, err = TransformResendEmail(&ResendEmail{From: "a@b.c"})
	assert.Error(t, err)
}

type staticFetcher struct{ email *ResendEmail }

func (f staticFetcher) FetchEmail(ctx context.Context, id string) (*ResendEmail, error) {
	return f.email, nil
}

func TestParse_ResendEvent(t *testing.T) {
	store := new(MockInputStore)
	store.On("GetFlowInputByRecipient", mock.Anything, "intake@team.discubot.dev").
		Return(emailInput(), nil)

	fetcher := staticFetcher{email: &ResendEmail{
		ID:      "re-1",
		From:    "ana@acme.com",
		To:      []string{"intake@team.discubot.dev"},
		Subject: "Ana commented on Launch plan",
		Text:    "What about the deadline?",
	}}
	a := NewEmailAdapter(store, fetcher, noopLogger{})

	res, err := a.Parse(context.Background(),
		[]byte(`{"type":"email.received","data":{"email_id":"re-1"}}`))
	require.NoError(t, err)
	require.NotNil(t, res.Discussion)
	assert.Equal(t, "re-1", res.Discussion.SourceThreadID)

	res, err = a.Parse(context.Background(),
		[]byte(`{"type":"contact.created","data":{}}`))
	require.NoError(t, err)
	assert.NotEmpty(t, res.Ignored)
}

// A form-encoded Mailgun route body parses through the same entry point as
// the JSON shapes.
func TestParse_FormEncoded(t *testing.T) {
	store := new(MockInputStore)
	store.On("GetFlowInputByRecipient", mock.Anything, "intake@team.discubot.dev").
		Return(emailInput(), nil)

	form := url.Values{
		"recipient":     {"intake@team.discubot.dev"},
		"from":          {"Ana Torres <ana@acme.com>"},
		"subject":       {"Ana commented on Launch plan"},
		"stripped-text": {"Let's track this."},
		"Message-Id":    {"<msg-9@acme.com>"},
	}

	a := NewEmailAdapter(store, nil, noopLogger{})
	res, err := a.Parse(context.Background(), []byte(form.Encode()))
	require.NoError(t, err)
	require.NotNil(t, res.Discussion)
	assert.Equal(t, "<msg-9@acme.com>", res.Discussion.SourceThreadID)
	assert.Equal(t, "Ana Torres", res.Discussion.Root.AuthorName)
}

// References is copied from arbitrary inbound mail headers; a whitespace-only
// value must fall through to In-Reply-To instead of being indexed.
func TestParsePayload_WhitespaceReferences(t *testing.T) {
	store := new(MockInputStore)
	store.On("GetFlowInputByRecipient", mock.Anything, "intake@team.discubot.dev").
		Return(emailInput(), nil)

	a := NewEmailAdapter(store, nil, noopLogger{})
	res, err := a.ParsePayload(context.Background(), &MailgunPayload{
		Recipient:    "intake@team.discubot.dev",
		From:         "ana@acme.com",
		Subject:      "Ana commented on Launch plan",
		StrippedText: "see thread",
		MessageID:    "<msg-3@acme.com>",
		InReplyTo:    "<msg-1@acme.com>",
		References:   "   ",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Discussion)
	assert.Equal(t, "<msg-1@acme.com>", res.Discussion.SourceThreadID)
}
