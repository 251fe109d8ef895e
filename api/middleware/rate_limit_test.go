package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeLimiter struct {
	counts map[string]int64
	err    error
}

func (f *fakeLimiter) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	if f.err != nil {
		return false, 0, f.err
	}
	if f.counts == nil {
		f.counts = map[string]int64{}
	}
	f.counts[scope]++
	return f.counts[scope] <= limit, f.counts[scope], nil
}

func callAs(handler http.Handler, userID int64) int {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/graph/path", nil)
	req = req.WithContext(WithCaller(req.Context(), userID, "runner"))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp.Code
}

func TestRateLimitPerUser(t *testing.T) {
	limiter := &fakeLimiter{}
	handler := RateLimit(RateLimitPolicy{Window: time.Minute, PerUser: 2}, limiter, nil)(okHandler())

	for i := 0; i < 2; i++ {
		if code := callAs(handler, 41); code != http.StatusOK {
			t.Fatalf("call %d: expected 200 got %d", i, code)
		}
	}
	if code := callAs(handler, 41); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", code)
	}
	if code := callAs(handler, 42); code != http.StatusOK {
		t.Fatalf("other user should not be limited, got %d", code)
	}
}

func TestRateLimitFailsOpen(t *testing.T) {
	limiter := &fakeLimiter{err: errors.New("redis down")}
	handler := RateLimit(RateLimitPolicy{Window: time.Minute, PerUser: 1}, limiter, nil)(okHandler())
	if code := callAs(handler, 41); code != http.StatusOK {
		t.Fatalf("expected 200 got %d", code)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	handler := RateLimit(RateLimitPolicy{}, &fakeLimiter{}, nil)(okHandler())
	for i := 0; i < 5; i++ {
		if code := callAs(handler, 41); code != http.StatusOK {
			t.Fatalf("expected 200 got %d", code)
		}
	}
}
