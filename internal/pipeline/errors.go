// Package pipeline defines the error taxonomy shared by every stage of the
// intake pipeline. Classification decides the HTTP status a webhook caller
// sees, which in turn decides whether the upstream platform redelivers.
package pipeline

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	// KindAuth covers signature and replay-window failures. Rejected without
	// processing; the response must not reveal which check failed.
	KindAuth Kind = "auth"
	// KindParse covers malformed payloads. Resubmission will not help.
	KindParse Kind = "parse"
	// KindNoConfig means no flow/input matched the event. Reported as a
	// success no-op so the upstream platform stops retrying.
	KindNoConfig Kind = "no_config"
	// KindIgnored covers normal non-processing outcomes: wrong event type,
	// trigger keyword absent, non-comment email classification.
	KindIgnored Kind = "ignored"
	// KindTransient covers downstream timeouts and 5xx responses; surfaced
	// as 5xx so the upstream platform's retry mechanism redelivers.
	KindTransient Kind = "transient"
	// KindPermanent covers downstream 4xx and validation failures.
	KindPermanent Kind = "permanent"
)

// Error is a classified pipeline failure.
type Error struct {
	Kind  Kind
	Stage string
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error.
func New(kind Kind, stage, msg string) *Error {
	return &Error{Kind: kind, Stage: stage, Msg: msg}
}

// Wrap creates a classified error wrapping a cause.
func Wrap(kind Kind, stage, msg string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Msg: msg, Err: err}
}

// KindOf extracts the classification of err, or "" when it is unclassified.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// Retryable reports whether the upstream platform should redeliver the event.
func Retryable(err error) bool {
	return KindOf(err) == KindTransient
}

// HTTPStatus maps a classified error to the status returned to the webhook
// caller. Auth failures are 401 without detail, no-config and ignored
// outcomes are 200 (prevents upstream retry storms), transient failures are
// 502 so the platform retries, permanent ones 422 so it does not.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindAuth:
		return http.StatusUnauthorized
	case KindParse:
		return http.StatusBadRequest
	case KindNoConfig, KindIgnored:
		return http.StatusOK
	case KindTransient:
		return http.StatusBadGateway
	case KindPermanent:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
