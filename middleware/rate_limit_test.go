package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestRateLimitMiddlewareBlocksBurst(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/x", RateLimitMiddleware(4), func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := map[int]int{}
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/x", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		r.ServeHTTP(w, req)
		codes[w.Code]++
	}
	// burst is perMinute/2
	if codes[http.StatusOK] != 2 || codes[http.StatusTooManyRequests] != 3 {
		t.Fatalf("codes = %v", codes)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("other client got %d", w.Code)
	}
}

func TestIPLimitersExpireIdleEntries(t *testing.T) {
	l := newIPLimiters(60)
	now := time.Now()
	l.now = func() time.Time { return now }
	l.allow("a")
	now = now.Add(limiterIdleTTL + time.Second)
	l.allow("b")
	if _, ok := l.limiters["a"]; ok {
		t.Fatal("idle limiter not evicted")
	}
	if len(l.limiters) != 1 {
		t.Fatalf("limiters = %d", len(l.limiters))
	}
}
