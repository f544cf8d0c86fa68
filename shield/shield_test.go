package shield

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	})
}

func TestSecurityHeaders(t *testing.T) {
	// WHAT: Configured headers appear on every response.
	h := SecurityHeaders(DefaultHeaders())(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/clients", nil))

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options: got %q", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options: got %q", got)
	}
}

func TestMaxJSONBody(t *testing.T) {
	// WHAT: Oversized POST bodies fail to read; GET passes through.
	// WHY: The API accepts JSON from the browser — unbounded bodies are a
	// trivial memory DoS.
	var readErr error
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 64)
		for {
			if _, err := r.Body.Read(buf); err != nil {
				if err.Error() != "EOF" {
					readErr = err
				}
				break
			}
		}
	})
	h := MaxJSONBody(16)(inner)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/clients", strings.NewReader(strings.Repeat("x", 64)))
	h.ServeHTTP(rec, req)

	if readErr == nil {
		t.Error("expected body read error for oversized POST")
	}
}

func TestRateLimiterBlocksAfterBudget(t *testing.T) {
	// WHAT: Requests beyond MaxRequests within the window get 429.
	rl := NewRateLimiter(RateLimitConfig{MaxRequests: 2, Window: time.Minute})
	h := rl.Middleware(okHandler())

	var codes []int
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/api/clients", nil)
		req.RemoteAddr = "203.0.113.7:1234"
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	if codes[0] != 200 || codes[1] != 200 {
		t.Errorf("first two requests: got %v, want 200s", codes[:2])
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("third request: got %d, want 429", codes[2])
	}
}

func TestRateLimiterWindowReset(t *testing.T) {
	// WHAT: Budget resets after the window elapses.
	rl := NewRateLimiter(RateLimitConfig{MaxRequests: 1, Window: time.Minute})
	clock := time.Now()
	rl.now = func() time.Time { return clock }

	if !rl.allow("203.0.113.7") {
		t.Fatal("first call should pass")
	}
	if rl.allow("203.0.113.7") {
		t.Fatal("second call within window should fail")
	}

	clock = clock.Add(61 * time.Second)
	if !rl.allow("203.0.113.7") {
		t.Error("call after window should pass")
	}
}

func TestRateLimiterExcludesPrefixes(t *testing.T) {
	// WHAT: Excluded paths are never throttled.
	// WHY: Load balancer health checks hit /health every second.
	rl := NewRateLimiter(RateLimitConfig{MaxRequests: 1, Window: time.Minute}, "/health")
	h := rl.Middleware(okHandler())

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/health", nil)
		req.RemoteAddr = "203.0.113.7:1234"
		h.ServeHTTP(rec, req)
		if rec.Code != 200 {
			t.Fatalf("health check %d: got %d", i, rec.Code)
		}
	}
}

func TestExtractIP(t *testing.T) {
	cases := []struct {
		xff    string
		remote string
		want   string
	}{
		{"", "203.0.113.7:1234", "203.0.113.7"},
		{"198.51.100.2", "203.0.113.7:1234", "198.51.100.2"},
		{"198.51.100.2, 10.0.0.1", "203.0.113.7:1234", "198.51.100.2"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = tc.remote
		if tc.xff != "" {
			req.Header.Set("X-Forwarded-For", tc.xff)
		}
		if got := ExtractIP(req); got != tc.want {
			t.Errorf("ExtractIP(xff=%q): got %q, want %q", tc.xff, got, tc.want)
		}
	}
}
