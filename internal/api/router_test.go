package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"preecode/internal/api/middleware"
	"preecode/internal/app/service"
	"preecode/internal/common/security"
	"preecode/internal/platform/metrics"
)

type noRevocations struct{}

func (noRevocations) IsRevoked(context.Context, string) (bool, error) { return false, nil }
func (noRevocations) Cutoff(context.Context, string) (time.Time, error) {
	return time.Time{}, nil
}

type statusOnly struct{}

func (statusOnly) Status(_ context.Context, userID string) (*service.EarlyAccessStatus, error) {
	return &service.EarlyAccessStatus{Active: true}, nil
}

func (statusOnly) ConfirmShare(context.Context, string) (*service.EarlyAccessStatus, error) {
	return &service.EarlyAccessStatus{HasShared: true}, nil
}

func newTestRouter(t *testing.T, limiter *middleware.IPRateLimiter) (http.Handler, *security.TokenIssuer, *metrics.Metrics) {
	t.Helper()
	tokens := security.NewTokenIssuer([]byte("0123456789abcdef0123456789abcdef"), time.Hour)
	m := metrics.New()
	h := NewRouter(
		RouterConfig{Environment: "test", AllowedOrigins: []string{"http://localhost:5500"}, MaxBodyBytes: 64},
		Services{EarlyAccess: statusOnly{}},
		tokens, noRevocations{}, limiter, m, nil,
	)
	return h, tokens, m
}

func TestRootAndHealth(t *testing.T) {
	h, _, _ := newTestRouter(t, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "Preecode backend running", rec.Body.String())
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"OK","environment":"test"}`, rec.Body.String())
}

func TestProtectedRouteWithRealToken(t *testing.T) {
	h, tokens, _ := newTestRouter(t, nil)
	issued, err := tokens.Issue("u1")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/early-access/status", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/early-access/status", nil)
	req.Header.Set("Authorization", "Bearer "+issued.Token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"active":true`)
}

func TestCORSPreflight(t *testing.T) {
	h, _, _ := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/health", nil)
	req.Header.Set("Origin", "http://localhost:5500")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:5500", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestRateLimitOnAPI(t *testing.T) {
	h, _, _ := newTestRouter(t, middleware.NewIPRateLimiter(1, time.Minute))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Contains(t, second.Body.String(), middleware.RateLimitMessage)
}

func TestRateLimitIgnoresForwardedForUnlessTrusted(t *testing.T) {
	send := func(h http.Handler, forwarded string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.RemoteAddr = "203.0.113.7:4711"
		req.Header.Set("X-Forwarded-For", forwarded)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	build := func(trust bool) http.Handler {
		return NewRouter(
			RouterConfig{Environment: "test", TrustProxy: trust},
			Services{EarlyAccess: statusOnly{}},
			security.NewTokenIssuer([]byte("0123456789abcdef0123456789abcdef"), time.Hour),
			noRevocations{}, middleware.NewIPRateLimiter(1, time.Minute), nil, nil,
		)
	}

	direct := build(false)
	assert.Equal(t, http.StatusOK, send(direct, "10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, send(direct, "10.0.0.2"))

	proxied := build(true)
	assert.Equal(t, http.StatusOK, send(proxied, "10.0.0.1"))
	assert.Equal(t, http.StatusOK, send(proxied, "10.0.0.2"))
	assert.Equal(t, http.StatusTooManyRequests, send(proxied, "10.0.0.1"))
}

func TestBodyLimit(t *testing.T) {
	h, tokens, _ := newTestRouter(t, nil)
	issued, err := tokens.Issue("u1")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/google/token", strings.NewReader(`{"idToken":"`+strings.Repeat("x", 200)+`"}`))
	req.Header.Set("Authorization", "Bearer "+issued.Token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h, _, _ := newTestRouter(t, nil)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/health", nil))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `preecode_http_requests_total{method="GET",route="/api/health",status="200"} 1`)
}

func TestUnknownRoute(t *testing.T) {
	h, _, _ := newTestRouter(t, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
