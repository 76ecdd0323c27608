package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestLimiter(t *testing.T, perMinute, burst int) (*RateLimiter, *fakeClock) {
	t.Helper()
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerMinute: perMinute, BurstSize: burst})
	t.Cleanup(rl.Close)
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	rl.now = clock.now
	return rl, clock
}

func TestRateLimiterBurstAndRefill(t *testing.T) {
	rl, clock := newTestLimiter(t, 60, 3)

	for i := range 3 {
		if !rl.Allow("10.0.0.1") {
			t.Fatalf("request %d denied within burst", i)
		}
	}
	if rl.Allow("10.0.0.1") {
		t.Error("request beyond burst allowed")
	}
	if !rl.Allow("10.0.0.2") {
		t.Error("other client should have its own bucket")
	}

	clock.t = clock.t.Add(time.Second)
	if !rl.Allow("10.0.0.1") {
		t.Error("token not refilled after one second at 60/min")
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl, clock := newTestLimiter(t, 60, 1)
	rl.Allow("10.0.0.1")

	clock.t = clock.t.Add(10 * time.Minute)
	rl.cleanup()

	rl.mu.Lock()
	n := len(rl.buckets)
	rl.mu.Unlock()
	if n != 0 {
		t.Errorf("buckets = %d after cleanup, want 0", n)
	}
}

func TestRateLimiterMiddleware(t *testing.T) {
	rl, _ := newTestLimiter(t, 60, 1)
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = "192.0.2.7:5555"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	if w := do(); w.Code != http.StatusOK || w.Header().Get("X-RateLimit-Limit") != "60" {
		t.Fatalf("first request: status %d, limit %q", w.Code, w.Header().Get("X-RateLimit-Limit"))
	}
	w := do()
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name      string
		forwarded string
		realIP    string
		remote    string
		want      string
	}{
		{"remote addr", "", "", "192.0.2.1:1234", "192.0.2.1"},
		{"forwarded first", "203.0.113.5, 10.0.0.1", "", "192.0.2.1:1234", "203.0.113.5"},
		{"invalid forwarded", "not-an-ip", "198.51.100.2", "192.0.2.1:1234", "198.51.100.2"},
		{"ipv6", "", "", "[2001:db8::1]:80", "2001:db8::1"},
		{"garbage", "", "", "garbage", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			if got := getClientIP(req); got != tt.want {
				t.Errorf("getClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
