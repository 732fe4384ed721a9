package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func newTestStore(start time.Time) (*Store, *time.Time) {
	now := start
	s := NewStore()
	s.now = func() time.Time { return now }
	return s, &now
}

func TestCheck_FixedWindow(t *testing.T) {
	s, now := newTestStore(time.Unix(1000, 0))

	for i := 1; i <= 3; i++ {
		res := s.Check("1.2.3.4", "/webhooks/notion", 3, time.Second)
		assert.True(t, res.Allowed, "call %d should be allowed", i)
		assert.Equal(t, i, res.Current)
	}

	res := s.Check("1.2.3.4", "/webhooks/notion", 3, time.Second)
	assert.False(t, res.Allowed)
	assert.Equal(t, 4, res.Current)

	// After the window elapses the counter resets.
	*now = now.Add(1100 * time.Millisecond)
	res = s.Check("1.2.3.4", "/webhooks/notion", 3, time.Second)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Current)
}

func TestCheck_SeparateKeys(t *testing.T) {
	s, _ := newTestStore(time.Unix(1000, 0))

	s.Check("a", "/webhooks/notion", 1, time.Minute)
	res := s.Check("b", "/webhooks/notion", 1, time.Minute)
	assert.True(t, res.Allowed, "different identifiers do not share a window")

	res = s.Check("a", "/webhooks/mailgun", 1, time.Minute)
	assert.True(t, res.Allowed, "different endpoints do not share a window")
}

func TestCheck_SweepsExpiredEntries(t *testing.T) {
	s, now := newTestStore(time.Unix(1000, 0))

	s.Check("a", "/x", 5, time.Second)
	s.Check("b", "/x", 5, time.Second)
	*now = now.Add(2 * time.Second)
	s.Check("c", "/x", 5, time.Second)

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Len(t, s.entries, 1)
}

func TestLimit_ReturnsLimitError(t *testing.T) {
	s, _ := newTestStore(time.Unix(1000, 0))

	_, err := s.Limit("a", "/x", Preset{MaxRequests: 1, Window: time.Minute})
	assert.NoError(t, err)

	res, err := s.Limit("a", "/x", Preset{MaxRequests: 1, Window: time.Minute})
	assert.Error(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining())
}

func TestClientIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": "9.9.9.9, 10.0.0.1"}, "127.0.0.1:1234", "9.9.9.9"},
		{"real ip", map[string]string{"X-Real-IP": "8.8.8.8"}, "127.0.0.1:1234", "8.8.8.8"},
		{"header priority", map[string]string{"X-Forwarded-For": "9.9.9.9", "X-Real-IP": "8.8.8.8"}, "127.0.0.1:1234", "9.9.9.9"},
		{"socket fallback", nil, "192.168.1.5:9999", "192.168.1.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIdentifier(req))
		})
	}
}

func TestMiddleware(t *testing.T) {
	s, _ := newTestStore(time.Unix(1000, 0))
	e := echo.New()
	handler := Middleware(s, Preset{MaxRequests: 1, Window: time.Minute})(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/notion", nil)
		req.RemoteAddr = "1.2.3.4:555"
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetPath("/webhooks/notion")
		err := handler(c)
		if err != nil {
			e.HTTPErrorHandler(err, c)
		}
		return rec
	}

	rec := do()
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = do()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}
