package middleware

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(RequestIDFrom(r.Context())))
	})
}

func TestChainRunsOutermostFirst(t *testing.T) {
	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(okHandler(), mark("a"), mark("b"), mark("c"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestSecurityHeaders(t *testing.T) {
	csp := CSP("default-src 'self'", "img-src 'self' data:")
	h := SecurityHeaders(SecurityHeadersConfig{ContentSecurityPolicy: csp})(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "default-src 'self'; img-src 'self' data:", rec.Header().Get("Content-Security-Policy"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
	assert.Empty(t, rec.Header().Get("Cache-Control"))
}

func TestSecurityHeadersOptional(t *testing.T) {
	h := SecurityHeaders(SecurityHeadersConfig{HSTSMaxAge: 24 * time.Hour, NoStore: true})(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "max-age=86400; includeSubDomains", rec.Header().Get("Strict-Transport-Security"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Empty(t, rec.Header().Get("Content-Security-Policy"))
}

func TestRequestIDReusesIncomingHeader(t *testing.T) {
	h := RequestID(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
	assert.Equal(t, "abc-123", rec.Body.String())
}

func TestRequestIDMintsWhenMissing(t *testing.T) {
	h := RequestID(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	id := rec.Header().Get(RequestIDHeader)
	assert.Len(t, id, 36)
	assert.Equal(t, id, rec.Body.String())
}

func TestAccessLogRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}), RequestID, AccessLog(logger))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/wellness", nil))

	line := buf.String()
	assert.Contains(t, line, `"level":"ERROR"`)
	assert.Contains(t, line, `"status":502`)
	assert.Contains(t, line, `"path":"/api/wellness"`)
	assert.Contains(t, line, `"request_id":"`)
}

func TestLocalLimiterBurstThenReject(t *testing.T) {
	l := NewLocalLimiter(0.001, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := l.Allow(ctx, "10.0.0.1")
	assert.False(t, ok)

	ok, _ = l.Allow(ctx, "10.0.0.2")
	assert.True(t, ok, "buckets are per key")
}

func TestLocalLimiterSweep(t *testing.T) {
	l := NewLocalLimiter(1, 1)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	_, _ = l.Allow(context.Background(), "a")
	now = now.Add(time.Minute)
	_, _ = l.Allow(context.Background(), "b")
	now = now.Add(150 * time.Second)

	assert.Equal(t, 1, l.Sweep())
	assert.Len(t, l.visitors, 1)
}

type stubLimiter struct {
	allowed bool
	err     error
}

func (s stubLimiter) Allow(context.Context, string) (bool, error) { return s.allowed, s.err }

func TestRateLimitRejects(t *testing.T) {
	h := RateLimit(stubLimiter{allowed: false}, slog.New(slog.DiscardHandler), nil)(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"too many requests"}`, rec.Body.String())
}

func TestRateLimitFailsOpen(t *testing.T) {
	var buf bytes.Buffer
	h := RateLimit(stubLimiter{err: errors.New("dial tcp: refused")}, slog.New(slog.NewTextHandler(&buf, nil)), nil)(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(buf.String(), "rate limiter unavailable"))
}

func TestNewRedisLimiterRejectsBadURL(t *testing.T) {
	_, _, err := NewRedisLimiter("not-a-url", 1, 1)
	require.Error(t, err)

	l, client, err := NewRedisLimiter("redis://localhost:6379/2", 5, 10)
	require.NoError(t, err)
	defer client.Close()
	assert.Equal(t, 2, client.Options().DB)
	assert.Equal(t, 10, l.burst)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[::1]:5555"
	assert.Equal(t, "::1", ClientIP(req))

	req.RemoteAddr = "192.0.2.7"
	assert.Equal(t, "192.0.2.7", ClientIP(req))
}

func TestTrustedProxiesClientIP(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"127.0.0.1", "::1", "10.0.0.0/8", ""})
	require.NoError(t, err)

	cases := []struct {
		name   string
		remote string
		xff    []string
		want   string
	}{
		{"direct caller", "203.0.113.1:4000", nil, "203.0.113.1"},
		{"untrusted peer cannot spoof", "203.0.113.1:4000", []string{"198.51.100.7"}, "203.0.113.1"},
		{"trusted peer names client", "127.0.0.1:4000", []string{"198.51.100.7"}, "198.51.100.7"},
		{"spoofed prefix ignored", "127.0.0.1:4000", []string{"1.2.3.4, 198.51.100.7"}, "198.51.100.7"},
		{"chain of trusted hops", "[::1]:4000", []string{"198.51.100.7, 10.1.2.3"}, "198.51.100.7"},
		{"repeated headers", "127.0.0.1:4000", []string{"198.51.100.7", "10.0.0.9"}, "198.51.100.7"},
		{"all hops trusted", "127.0.0.1:4000", []string{"127.0.0.1"}, "127.0.0.1"},
		{"trusted peer without header", "127.0.0.1:4000", nil, "127.0.0.1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			for _, v := range tc.xff {
				req.Header.Add(ForwardedForHeader, v)
			}
			assert.Equal(t, tc.want, trusted.ClientIP(req))
		})
	}

	var none *TrustedProxies
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "127.0.0.1:4000"
	req.Header.Set(ForwardedForHeader, "198.51.100.7")
	assert.Equal(t, "127.0.0.1", none.ClientIP(req))
}

func TestParseTrustedProxiesRejectsGarbage(t *testing.T) {
	_, err := ParseTrustedProxies([]string{"localhost"})
	assert.ErrorContains(t, err, "localhost")
	_, err = ParseTrustedProxies([]string{"10.0.0.0/99"})
	assert.Error(t, err)
}

func TestForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.1:4000"
	assert.Equal(t, "203.0.113.1", ForwardedFor(req))

	req.Header.Set(ForwardedForHeader, "198.51.100.7")
	assert.Equal(t, "198.51.100.7, 203.0.113.1", ForwardedFor(req))
}

func TestRateLimitKeysByForwardedClient(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"127.0.0.1"})
	require.NoError(t, err)
	h := RateLimit(NewLocalLimiter(0.001, 1), slog.New(slog.DiscardHandler), trusted)(okHandler())

	var codes []int
	for _, client := range []string{"203.0.113.1", "198.51.100.7", "203.0.113.1"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "127.0.0.1:4000"
		req.Header.Set(ForwardedForHeader, client)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}
