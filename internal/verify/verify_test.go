package verify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"discubot/backend/internal/pipeline"
)

type noopLogger struct{}

func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Debug(msg string, args ...any) {}

func newTestVerifier(now time.Time) *Verifier {
	v := New(noopLogger{})
	v.now = func() time.Time { return now }
	return v
}

func hexHMAC(key, content string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(content))
	return hex.EncodeToString(mac.Sum(nil))
}

func b64HMAC(key []byte, content string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(content))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestMailgun(t *testing.T) {
	v := New(noopLogger{})
	key := "mg-signing-key"
	ts := "1700000000"
	token := "abcdef123456"
	sig := hexHMAC(key, ts+token)

	assert.NoError(t, v.Mailgun(key, ts, token, sig))

	// Any single-field mutation must reject.
	assert.Error(t, v.Mailgun(key, ts, token, hexHMAC(key, ts+"x"+token)))
	assert.Error(t, v.Mailgun(key, "1700000001", token, sig))
	assert.Error(t, v.Mailgun(key, ts, token, "not-hex"))
	assert.Error(t, v.Mailgun(key, "", token, sig))

	// Missing key skips verification rather than failing.
	assert.NoError(t, v.Mailgun("", ts, token, sig))
}

func TestNotion(t *testing.T) {
	v := New(noopLogger{})
	secret := "notion-secret"
	body := []byte(`{"type":"comment.created","id":"c-1"}`)
	sig := hexHMAC(secret, string(body))

	assert.NoError(t, v.Notion(secret, body, sig))
	assert.NoError(t, v.Notion(secret, body, "v1="+sig), "v1= prefix is stripped")
	assert.NoError(t, v.Notion(secret, body, "sha256="+sig))

	// A single flipped byte in the body invalidates the digest.
	mutated := append([]byte(nil), body...)
	mutated[0] ^= 0x01
	assert.Error(t, v.Notion(secret, mutated, sig))

	// A mutated signature is rejected too.
	badSig := []byte(sig)
	if badSig[0] == 'a' {
		badSig[0] = 'b'
	} else {
		badSig[0] = 'a'
	}
	assert.Error(t, v.Notion(secret, body, string(badSig)))
	assert.Error(t, v.Notion(secret, body, ""))
	assert.Error(t, v.Notion(secret, body, sig[:10]), "length mismatch")

	assert.NoError(t, v.Notion("", body, sig), "missing secret skips verification")

	err := v.Notion(secret, body, "")
	assert.Equal(t, pipeline.KindAuth, pipeline.KindOf(err))
}

func TestTimestamp_ReplayWindow(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	v := newTestVerifier(now)

	assert.NoError(t, v.Timestamp(now.Add(-time.Minute)))
	assert.NoError(t, v.Timestamp(now.Add(-ReplayTolerance)))
	assert.Error(t, v.Timestamp(now.Add(-ReplayTolerance-time.Second)))
	assert.Error(t, v.Timestamp(time.Time{}))
}

func TestSlack(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	v := newTestVerifier(now)
	secret := "slack-signing-secret"
	body := []byte(`{"type":"event_callback"}`)
	ts := "1748779200" // 2025-06-01T12:00:00Z
	sig := "v0=" + hexHMAC(secret, "v0:"+ts+":"+string(body))

	assert.NoError(t, v.Slack(secret, ts, body, sig))

	mutated := append([]byte(nil), body...)
	mutated[0] ^= 0x01
	assert.Error(t, v.Slack(secret, ts, mutated, sig))
	assert.Error(t, v.Slack(secret, ts, body, "v0=deadbeef"))
	assert.Error(t, v.Slack(secret, "", body, sig))
	assert.Error(t, v.Slack(secret, "not-a-number", body, sig))

	// Stale timestamps are replays even with a valid signature.
	old := "1748778000" // 20 minutes earlier
	oldSig := "v0=" + hexHMAC(secret, "v0:"+old+":"+string(body))
	assert.Error(t, v.Slack(secret, old, body, oldSig))

	assert.NoError(t, v.Slack("", ts, body, sig), "missing secret skips verification")
}

func TestSvix_PlainSecret(t *testing.T) {
	v := New(noopLogger{})
	secret := "plain-secret"
	body := []byte(`{"type":"email.delivered"}`)
	sig := b64HMAC([]byte(secret), "msg_1.1700000000."+string(body))

	assert.NoError(t, v.Svix(secret, "msg_1", "1700000000", body, "v1,"+sig))

	mutated := append([]byte(nil), body...)
	mutated[len(mutated)-2] ^= 0x01
	assert.Error(t, v.Svix(secret, "msg_1", "1700000000", mutated, "v1,"+sig))
	assert.Error(t, v.Svix(secret, "msg_2", "1700000000", body, "v1,"+sig))
	assert.Error(t, v.Svix(secret, "msg_1", "1700000000", body, "v1,AAAA"))
}

func TestSvix_WhsecSecret(t *testing.T) {
	v := New(noopLogger{})
	raw := []byte("raw-webhook-secret-bytes")
	secret := "whsec_" + base64.StdEncoding.EncodeToString(raw)
	body := []byte(`{"type":"email.delivered"}`)
	sig := b64HMAC(raw, "msg_9.1700000000."+string(body))

	assert.NoError(t, v.Svix(secret, "msg_9", "1700000000", body, "v1,"+sig))
}

func TestSvix_MatchesAnyListedSignature(t *testing.T) {
	v := New(noopLogger{})
	secret := "rotating-secret"
	body := []byte(`{}`)
	good := b64HMAC([]byte(secret), "msg_1.1.{}")

	header := "v1,bm9wZQ== v1," + good
	assert.NoError(t, v.Svix(secret, "msg_1", "1", body, header))

	assert.Error(t, v.Svix(secret, "msg_1", "1", body, "v1,bm9wZQ== v1,c3RpbGwtbm8="))
}

func TestSvix_MissingHeaders(t *testing.T) {
	v := New(noopLogger{})
	assert.Error(t, v.Svix("secret", "", "1", []byte("{}"), "v1,x"))
	assert.Error(t, v.Svix("secret", "msg", "", []byte("{}"), "v1,x"))
	assert.Error(t, v.Svix("secret", "msg", "1", []byte("{}"), ""))
	assert.NoError(t, v.Svix("", "msg", "1", []byte("{}"), ""), "missing secret skips verification")
}
