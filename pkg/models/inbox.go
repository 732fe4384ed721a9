package models

import (
	"time"
)

// InboxCategory classifies an auxiliary email that is not a comment
// notification.
type InboxCategory string

const (
	InboxCategoryVerification  InboxCategory = "verification"
	InboxCategoryPasswordReset InboxCategory = "password_reset"
	InboxCategoryInvitation    InboxCategory = "invitation"
	InboxCategoryNotification  InboxCategory = "notification"
)

// InboxMessage is an auxiliary email stored instead of being processed into a
// discussion (account verification, password reset, invitations and the like).
type InboxMessage struct {
	ID          string        `json:"id"`
	FlowInputID string        `json:"flow_input_id"`
	Category    InboxCategory `json:"category"`
	From        string        `json:"from"`
	Subject     string        `json:"subject"`
	Body        string        `json:"body,omitempty"`
	ReceivedAt  time.Time     `json:"received_at"`
}
