package observability

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danmuck/tablectl/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestMiddlewareRecordsUnmatchedPaths(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger(log.Logger, "test-node"))
	r.Use(RequestMetricsMiddleware("test-node"))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for _, path := range []string{"/ok", "/missing"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}
	if got := testutil.ToFloat64(httpRequests.WithLabelValues("test-node", "GET", "/ok", "204")); got != 1 {
		t.Fatalf("ok counter=%v want 1", got)
	}
	if got := testutil.ToFloat64(httpRequests.WithLabelValues("test-node", "GET", "/missing", "404")); got != 1 {
		t.Fatalf("missing counter=%v want 1", got)
	}
}

func TestRequestLoggerFieldsForAdminRoutes(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	r := gin.New()
	r.Use(RequestLogger(zerolog.New(&buf).Level(zerolog.DebugLevel), "tablectl-broker"))
	r.GET("/table/:seat", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/table/3", "/nope"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer x")
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("want 2 log lines, got %d: %q", len(lines), buf.String())
	}
	var hit, miss map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &hit); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &miss); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if hit["route"] != "/table/:seat" || hit["matched"] != true || hit["component"] != "tablectl-broker" || hit["bearer"] != true {
		t.Fatalf("unexpected matched line: %v", hit)
	}
	if miss["route"] != "/nope" || miss["matched"] != false || miss["level"] != "warn" {
		t.Fatalf("unexpected unmatched line: %v", miss)
	}
}
