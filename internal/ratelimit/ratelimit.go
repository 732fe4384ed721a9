// Package ratelimit implements a fixed-window request counter keyed by
// (identifier, endpoint). Counters live in process memory behind a mutex; a
// multi-instance deployment must swap the Store for a backend with atomic
// increments (e.g. a key-value store), which is why all access goes through
// Store.hit.
package ratelimit

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Preset bundles the limit and window for a class of endpoints.
type Preset struct {
	MaxRequests int
	Window      time.Duration
}

var (
	// PresetWebhook applies to unauthenticated webhook ingress.
	PresetWebhook = Preset{MaxRequests: 100, Window: time.Minute}
	// PresetAPI applies to authenticated API calls.
	PresetAPI = Preset{MaxRequests: 60, Window: time.Minute}
	// PresetAuth applies to authentication endpoints.
	PresetAuth = Preset{MaxRequests: 5, Window: 15 * time.Minute}
	// PresetRead applies to read-only endpoints.
	PresetRead = Preset{MaxRequests: 300, Window: time.Minute}
	// PresetWrite applies to mutating endpoints.
	PresetWrite = Preset{MaxRequests: 30, Window: time.Minute}
)

// Result describes the outcome of a rate-limit check.
type Result struct {
	Allowed bool
	Current int
	Limit   int
	ResetIn time.Duration
	ResetAt time.Time
}

// Remaining returns how many requests are left in the current window.
func (r Result) Remaining() int {
	if rem := r.Limit - r.Current; rem > 0 {
		return rem
	}
	return 0
}

type entry struct {
	count   int
	resetAt time.Time
}

// Store holds fixed-window counters. The zero value is not usable; create one
// with NewStore.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

// NewStore creates an empty counter store.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Check counts one request against the (identifier, endpoint) window and
// reports whether it is allowed. Expired entries are swept opportunistically
// here rather than by a background timer, so the store stays correct even
// when the process clock only advances while requests arrive.
func (s *Store) Check(identifier, endpoint string, maxRequests int, window time.Duration) Result {
	key := identifier + ":" + endpoint
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep(now)

	e, ok := s.entries[key]
	if !ok || now.After(e.resetAt) {
		e = &entry{count: 1, resetAt: now.Add(window)}
		s.entries[key] = e
	} else {
		e.count++
	}

	return Result{
		Allowed: e.count <= maxRequests,
		Current: e.count,
		Limit:   maxRequests,
		ResetIn: e.resetAt.Sub(now),
		ResetAt: e.resetAt,
	}
}

// sweep drops expired entries. Caller holds the mutex.
func (s *Store) sweep(now time.Time) {
	for k, e := range s.entries {
		if now.After(e.resetAt) {
			delete(s.entries, k)
		}
	}
}

// LimitError is returned when a request exceeds its window.
type LimitError struct {
	Result Result
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %d/%d, resets in %s",
		e.Result.Current, e.Result.Limit, e.Result.ResetIn.Round(time.Second))
}

// Limit checks the request and returns a LimitError carrying the window state
// when it is not allowed.
func (s *Store) Limit(identifier, endpoint string, p Preset) (Result, error) {
	res := s.Check(identifier, endpoint, p.MaxRequests, p.Window)
	if !res.Allowed {
		return res, &LimitError{Result: res}
	}
	return res, nil
}

// Proxy-supplied client IP headers, in priority order.
var clientIPHeaders = []string{"X-Forwarded-For", "X-Real-IP", "CF-Connecting-IP"}

// ClientIdentifier resolves the identifier for an unauthenticated request:
// proxy headers first, falling back to the raw socket address.
func ClientIdentifier(r *http.Request) string {
	for _, h := range clientIPHeaders {
		if v := r.Header.Get(h); v != "" {
			// X-Forwarded-For may carry a chain; the first hop is the client.
			if i := strings.IndexByte(v, ','); i >= 0 {
				v = v[:i]
			}
			return strings.TrimSpace(v)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// SetHeaders annotates a response with the standard rate-limit headers.
func SetHeaders(h http.Header, res Result) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining()))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
}
