// Package verify implements webhook signature verification for each inbound
// source: Mailgun's timestamp+token HMAC, Notion's raw-body HMAC, Slack's
// versioned raw-body HMAC and Resend's Svix-style multi-signature header.
//
// Every scheme degrades the same way: a missing secret means "verification
// disabled" (pass with a warning, for environments still being provisioned),
// while missing or wrong headers reject the request without revealing which
// check failed.
package verify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"discubot/backend/internal/pipeline"
)

// ReplayTolerance is how old a signed payload timestamp may be before the
// request is rejected as a possible replay.
const ReplayTolerance = 5 * time.Minute

// Logger is the logging interface the verifier needs.
type Logger interface {
	Warn(msg string, args ...any)
	Debug(msg string, args ...any)
}

// Verifier checks webhook signatures.
type Verifier struct {
	logger Logger
	now    func() time.Time
}

// New creates a Verifier.
func New(logger Logger) *Verifier {
	return &Verifier{logger: logger, now: time.Now}
}

func reject(msg string) error {
	return pipeline.New(pipeline.KindAuth, "verify", msg)
}

// Mailgun verifies the signature of a Mailgun webhook:
// hex(HMAC-SHA256(signing_key, timestamp + token)).
func (v *Verifier) Mailgun(signingKey, timestamp, token, signature string) error {
	if signingKey == "" {
		v.logger.Warn("mailgun signing key not configured, skipping signature verification")
		return nil
	}
	if timestamp == "" || token == "" || signature == "" {
		return reject("mailgun signature fields missing")
	}

	mac := hmac.New(sha256.New, []byte(signingKey))
	mac.Write([]byte(timestamp + token))

	provided, err := hex.DecodeString(signature)
	if err != nil {
		return reject("mailgun signature malformed")
	}
	if !hmac.Equal(mac.Sum(nil), provided) {
		return reject("mailgun signature mismatch")
	}
	return nil
}

// Notion verifies the signature of a Notion webhook:
// hex(HMAC-SHA256(secret, raw_body)) with an optional "v1=" or "sha256="
// prefix on the header value. Only the exact raw bytes received may be
// hashed; a re-serialized body produces a different digest.
func (v *Verifier) Notion(secret string, rawBody []byte, signature string) error {
	if secret == "" {
		v.logger.Warn("notion webhook secret not configured, skipping signature verification")
		return nil
	}
	if signature == "" {
		return reject("notion signature header missing")
	}

	signature = strings.TrimPrefix(signature, "sha256=")
	signature = strings.TrimPrefix(signature, "v1=")

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	expected := mac.Sum(nil)

	provided, err := hex.DecodeString(signature)
	if err != nil || len(provided) != len(expected) {
		return reject("notion signature malformed")
	}
	if !hmac.Equal(expected, provided) {
		return reject("notion signature mismatch")
	}
	return nil
}

// Timestamp rejects payloads older than the replay tolerance window.
func (v *Verifier) Timestamp(ts time.Time) error {
	if ts.IsZero() {
		return reject("payload timestamp missing")
	}
	if v.now().Sub(ts) > ReplayTolerance {
		return reject("payload timestamp outside replay window")
	}
	return nil
}

// Slack verifies a Slack request signature:
// "v0=" + hex(HMAC-SHA256(secret, "v0:" + timestamp + ":" + raw_body)),
// with the request timestamp checked against the replay window.
func (v *Verifier) Slack(secret, timestamp string, rawBody []byte, signature string) error {
	if secret == "" {
		v.logger.Warn("slack signing secret not configured, skipping signature verification")
		return nil
	}
	if timestamp == "" || signature == "" {
		return reject("slack signature headers missing")
	}

	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return reject("slack timestamp malformed")
	}
	if err := v.Timestamp(time.Unix(unix, 0)); err != nil {
		return err
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("v0:" + timestamp + ":"))
	mac.Write(rawBody)
	expected := "v0=" + hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return reject("slack signature mismatch")
	}
	return nil
}

// Svix verifies a Svix-style webhook signature (used by Resend). The signed
// content is "{id}.{timestamp}.{raw_body}". The secret may be a
// "whsec_"-prefixed base64 blob or a plain-text secret. The signature header
// carries one or more space-separated "version,signature" pairs; verification
// succeeds when the computed signature matches any of them — providers list
// several during secret rotation.
func (v *Verifier) Svix(secret, msgID, timestamp string, rawBody []byte, signatureHeader string) error {
	if secret == "" {
		v.logger.Warn("svix secret not configured, skipping signature verification")
		return nil
	}
	if msgID == "" || timestamp == "" || signatureHeader == "" {
		return reject("svix signature headers missing")
	}

	secretBytes := []byte(secret)
	if trimmed, ok := strings.CutPrefix(secret, "whsec_"); ok {
		decoded, err := base64.StdEncoding.DecodeString(trimmed)
		if err != nil {
			return reject("svix secret malformed")
		}
		secretBytes = decoded
	}

	mac := hmac.New(sha256.New, secretBytes)
	mac.Write([]byte(msgID + "." + timestamp + "."))
	mac.Write(rawBody)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	for _, part := range strings.Fields(signatureHeader) {
		_, sig, ok := strings.Cut(part, ",")
		if !ok {
			continue
		}
		if hmac.Equal([]byte(expected), []byte(sig)) {
			return nil
		}
	}
	return reject("svix signature mismatch")
}
