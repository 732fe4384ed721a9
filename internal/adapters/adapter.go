// Package adapters normalizes each source platform's webhook payload into the
// canonical ParsedDiscussion. The source set is closed and small, so dispatch
// is a registry lookup keyed by source type rather than open-ended dynamic
// dispatch.
package adapters

import (
	"context"

	"discubot/backend/internal/pipeline"
	"discubot/backend/pkg/models"
)

// DefaultTriggerKeyword is the mention that makes the wiki adapter process a
// comment. Configurable per input via metadata.
const DefaultTriggerKeyword = "@discubot"

// Logger is the logging interface adapters need.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Debug(msg string, args ...any)
}

// InputStore is the subset of the repository adapters use to match events to
// configured inputs and to persist auto-captured metadata.
type InputStore interface {
	GetFlowInputByRecipient(ctx context.Context, recipient string) (*models.FlowInput, error)
	ListActiveInputs(ctx context.Context, sourceType models.SourceType) ([]*models.FlowInput, error)
	UpdateInputMetadata(ctx context.Context, inputID string, metadata map[string]string) error
	CreateInboxMessage(ctx context.Context, m *models.InboxMessage) error
}

// Result is the outcome of parsing one inbound payload.
type Result struct {
	// Discussion and Input are set when the event parsed into a processable
	// discussion.
	Discussion *models.ParsedDiscussion
	Input      *models.FlowInput

	// Ignored carries the reason for a normal non-processing outcome (wrong
	// event type, trigger keyword absent, auxiliary email).
	Ignored string

	// Challenge is the verification token to echo back verbatim for a
	// one-time URL-verification handshake.
	Challenge string
}

// Adapter parses one source platform's raw payload.
type Adapter interface {
	SourceType() models.SourceType
	// Parse normalizes a raw payload. Malformed payloads fail with a parse
	// error (non-retryable); events with no matching configuration fail with
	// a no-config error.
	Parse(ctx context.Context, payload []byte) (*Result, error)
}

// Registry holds the closed set of adapters.
type Registry struct {
	adapters map[models.SourceType]Adapter
}

// NewRegistry creates a registry from the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[models.SourceType]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.SourceType()] = a
	}
	return r
}

// Get returns the adapter for a source type.
func (r *Registry) Get(sourceType models.SourceType) (Adapter, error) {
	a, ok := r.adapters[sourceType]
	if !ok {
		return nil, pipeline.New(pipeline.KindParse, "adapt", "unknown source type: "+string(sourceType))
	}
	return a, nil
}

func parseErr(msg string) error {
	return pipeline.New(pipeline.KindParse, "adapt", msg)
}

func noConfigErr(msg string) error {
	return pipeline.New(pipeline.KindNoConfig, "adapt", msg)
}
