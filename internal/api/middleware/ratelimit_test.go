package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealIP(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded single", map[string]string{"X-Forwarded-For": "1.2.3.4"}, "9.9.9.9:1234", "1.2.3.4"},
		{"forwarded chain", map[string]string{"X-Forwarded-For": "1.2.3.4, 5.6.7.8"}, "9.9.9.9:1234", "1.2.3.4"},
		{"real ip", map[string]string{"X-Real-IP": "2.3.4.5"}, "9.9.9.9:1234", "2.3.4.5"},
		{"remote addr", nil, "9.9.9.9:1234", "9.9.9.9"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tc.remote
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tc.want, RealIP(req))
		})
	}
}

func TestFindLimitMatchesPrefixes(t *testing.T) {
	rl := NewRateLimiter(nil, zerolog.Nop(), RateLimiterConfig{})

	limited := []struct{ method, path string }{
		{"POST", "/api/users"},
		{"POST", "/api/messages"},
		{"GET", "/api/messages/0198..."},
		{"GET", "/ws"},
	}
	for _, tc := range limited {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		require.NotNil(t, rl.findLimit(req), "%s %s should be limited", tc.method, tc.path)
	}

	unlimited := []struct{ method, path string }{
		{"GET", "/healthz"},
		{"GET", "/metrics"},
		{"PATCH", "/api/messages/x/read"},
	}
	for _, tc := range unlimited {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		assert.Nil(t, rl.findLimit(req), "%s %s should not be limited", tc.method, tc.path)
	}
}

func TestTokenOrIPKey(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/messages", nil)
	req.RemoteAddr = "9.9.9.9:1234"
	assert.Equal(t, "ratelimit:ip:9.9.9.9", tokenOrIPKey(req))

	req.Header.Set("Authorization", "Bearer abc123")
	assert.Equal(t, "ratelimit:token:abc123", tokenOrIPKey(req))
}

func TestMiddlewareAllowsWithoutRedis(t *testing.T) {
	rl := NewRateLimiter(nil, zerolog.Nop(), RateLimiterConfig{})

	rec := httptest.NewRecorder()
	called := false
	rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})).ServeHTTP(rec, httptest.NewRequest("POST", "/api/messages", nil))

	require.True(t, called, "no redis means no limiting")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWhitelistParsing(t *testing.T) {
	rl := NewRateLimiter(nil, zerolog.Nop(), RateLimiterConfig{
		Whitelist: []string{"10.0.0.1", "192.168.0.0/16", "not a cidr/99"},
	})

	assert.True(t, rl.isWhitelisted("10.0.0.1"))
	assert.True(t, rl.isWhitelisted("192.168.4.7"))
	assert.False(t, rl.isWhitelisted("8.8.8.8"))
}

func TestRateLimitWindows(t *testing.T) {
	rl := NewRateLimiter(nil, zerolog.Nop(), RateLimiterConfig{})

	limit := rl.limits["POST /api/messages"]
	assert.Equal(t, time.Minute, limit.Window)
	assert.Positive(t, limit.Requests)
}
