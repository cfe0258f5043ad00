package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestTokenBucketRefills(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewSimpleTokenBucket(2, 60)
	limiter.now = func() time.Time { return now }

	if !limiter.allow("a") || !limiter.allow("a") {
		t.Fatalf("expected the first two requests to pass")
	}
	if limiter.allow("a") {
		t.Fatalf("expected the bucket to be empty")
	}
	if !limiter.allow("b") {
		t.Fatalf("buckets must be per key")
	}

	now = now.Add(time.Second)
	if !limiter.allow("a") {
		t.Fatalf("expected one token after a second at 60/min")
	}
}

func TestTokenBucketEvictsIdleClients(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewSimpleTokenBucket(2, 60)
	limiter.now = func() time.Time { return now }
	limiter.threshold = 3

	for _, key := range []string{"a", "b", "c"} {
		limiter.allow(key)
	}
	limiter.allow("a")
	limiter.allow("a")
	if limiter.allow("a") {
		t.Fatalf("expected a to be drained")
	}

	now = now.Add(30 * time.Second)
	limiter.allow("d")
	if len(limiter.state) != 4 {
		t.Fatalf("buckets must be kept inside the idle window, got %d", len(limiter.state))
	}

	now = now.Add(45 * time.Second)
	limiter.allow("d")
	if len(limiter.state) != 1 {
		t.Fatalf("expected only the active client to remain, got %d", len(limiter.state))
	}
	if _, ok := limiter.state["d"]; !ok {
		t.Fatalf("active client must not be evicted")
	}
	if !limiter.allow("a") || !limiter.allow("a") {
		t.Fatalf("an evicted client starts with a full bucket")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(NewSimpleTokenBucket(1, 1).GinMiddleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status codes %v", codes)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	r := gin.New()
	r.Use(NewSimpleTokenBucket(0, 0).GinMiddleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200 with limiting disabled, got %d", i, rec.Code)
		}
	}
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set(RequestIDHeader, "abc-123")
	r.ServeHTTP(rec, req)
	if rec.Header().Get(RequestIDHeader) != "abc-123" || rec.Body.String() != "abc-123" {
		t.Fatalf("expected incoming id to be echoed, got header %q body %q", rec.Header().Get(RequestIDHeader), rec.Body.String())
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	if got := rec.Header().Get(RequestIDHeader); len(got) != 36 {
		t.Fatalf("expected a generated uuid, got %q", got)
	}
}

func TestSecurityHeaders(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeaders())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" || rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatalf("missing security headers: %v", rec.Header())
	}
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Fatalf("HSTS must only be sent in release mode")
	}
}
