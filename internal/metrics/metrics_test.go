package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestStatusBucket(t *testing.T) {
	cases := map[int]string{
		100: "1xx",
		200: "2xx",
		201: "2xx",
		302: "3xx",
		404: "4xx",
		422: "4xx",
		500: "5xx",
		503: "5xx",
	}
	for code, want := range cases {
		if got := statusBucket(code); got != want {
			t.Errorf("statusBucket(%d) = %s, want %s", code, got, want)
		}
	}
}

func scrape(t *testing.T, r *gin.Engine) string {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("scrape status = %d", w.Code)
	}
	return w.Body.String()
}

func TestHandler_ExposesRegisteredFamilies(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/metrics", Handler())

	// Gauges export immediately; counter families appear only after the
	// first increment.
	body := scrape(t, r)
	for _, name := range []string{"bazaar_active_websocket_clients", "bazaar_goroutines"} {
		if !strings.Contains(body, name) {
			t.Errorf("scrape missing gauge %s", name)
		}
	}

	TransactionsTotal.WithLabelValues("completed").Inc()
	if body = scrape(t, r); !strings.Contains(body, "bazaar_transactions_total") {
		t.Error("scrape missing bazaar_transactions_total after increment")
	}
}

func TestMiddleware_PassesRequestsThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/v1/agents", func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/v1/agents", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}
