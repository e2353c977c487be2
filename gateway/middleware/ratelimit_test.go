package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"epkfarm/crypto"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	limiter := NewRateLimiter([]RateLimit{
		{ID: "writes", RequestsPerMinute: 1, Burst: 1, Paths: []string{"/v1/farm/stake"}},
	}, nil)
	handler := limiter.Middleware()(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/farm/stake", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be rate limited, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/farm/pool", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected unmatched path to bypass limits, got %d", res.Code)
	}
}

func TestRateLimiterSeparatesClients(t *testing.T) {
	limiter := NewRateLimiter([]RateLimit{
		{ID: "writes", RequestsPerMinute: 1, Burst: 1, Paths: []string{"/v1/farm"}},
	}, nil)
	handler := limiter.Middleware()(okHandler())

	for _, ip := range []string{"10.0.0.1", "10.0.0.2"} {
		req := httptest.NewRequest(http.MethodPost, "/v1/farm/harvest", nil)
		req.Header.Set("X-Real-IP", ip)
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		if res.Code != http.StatusOK {
			t.Fatalf("expected first request from %s to succeed, got %d", ip, res.Code)
		}
	}

	// Authenticated callers are keyed by account rather than address.
	caller := crypto.DeriveAddress("alice")
	req := httptest.NewRequest(http.MethodPost, "/v1/farm/harvest", nil)
	req.Header.Set("X-Real-IP", "10.0.0.1")
	req = req.WithContext(WithCaller(req.Context(), caller))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected authenticated caller to have its own bucket, got %d", res.Code)
	}
}

func TestRateLimiterSweepsIdleVisitors(t *testing.T) {
	limiter := NewRateLimiter([]RateLimit{
		{ID: "writes", RequestsPerMinute: 60, Burst: 1, Paths: []string{"/"}},
	}, nil)
	now := time.Unix(1_700_000_000, 0)
	limiter.clockNow = func() time.Time { return now }
	handler := limiter.Middleware()(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/farm/pool", nil)
	req.Header.Set("X-Real-IP", "10.0.0.9")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if got := limiter.visitorCount(); got != 1 {
		t.Fatalf("expected one visitor, got %d", got)
	}

	now = now.Add(visitorIdleTTL + time.Second)
	other := httptest.NewRequest(http.MethodGet, "/v1/farm/pool", nil)
	other.Header.Set("X-Real-IP", "10.0.0.10")
	handler.ServeHTTP(httptest.NewRecorder(), other)
	if got := limiter.visitorCount(); got != 1 {
		t.Fatalf("expected idle visitor to be swept, got %d visitors", got)
	}
}

func TestClientIDPrefersForwardedAddress(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	if got := clientID(req); got != "192.0.2.1" {
		t.Fatalf("expected remote host, got %q", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	if got := clientID(req); got != "203.0.113.5" {
		t.Fatalf("expected first forwarded address, got %q", got)
	}
}
