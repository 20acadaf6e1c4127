package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitMiddleware_Disabled(t *testing.T) {
	handler := RateLimitMiddleware(RateLimitConfig{Enabled: false})(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/graphql", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRateLimitMiddleware_BurstExceeded(t *testing.T) {
	handler := RateLimitMiddleware(RateLimitConfig{Enabled: true, RPS: 1, Burst: 2})(okHandler())
	req := httptest.NewRequest(http.MethodPost, "/graphql", nil)

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))
	assert.Contains(t, rr.Body.String(), `"code":"rate_limited"`)
}

func TestRateLimitMiddleware_PerClient(t *testing.T) {
	handler := RateLimitMiddleware(RateLimitConfig{Enabled: true, RPS: 0.001, Burst: 1, PerClient: true})(okHandler())

	first := httptest.NewRequest(http.MethodPost, "/graphql", nil)
	first.RemoteAddr = "10.0.0.1:5000"
	second := httptest.NewRequest(http.MethodPost, "/graphql", nil)
	second.RemoteAddr = "10.0.0.2:5000"

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, first)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, second)
	assert.Equal(t, http.StatusOK, rr.Code)

	// Same host, different port: same bucket.
	first.RemoteAddr = "10.0.0.1:6000"
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, first)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}

func TestTokenBucketRefill(t *testing.T) {
	now := time.Now()
	b := newTokenBucket(2, 1, now)
	assert.True(t, b.allow(now))
	assert.False(t, b.allow(now))
	assert.False(t, b.idle(now))
	assert.True(t, b.allow(now.Add(500*time.Millisecond)))
	assert.True(t, b.idle(now.Add(2*time.Second)))
}
