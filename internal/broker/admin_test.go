package broker

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/tablectl/internal/protocol"
	"github.com/danmuck/tablectl/internal/protocol/session"
	"github.com/danmuck/tablectl/internal/testutil/testlog"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestAdminReadyTracksServe(t *testing.T) {
	testlog.Start(t)
	svc, err := NewService(testConfig(3))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	router := svc.AdminRouter()
	if rec := get(t, router, "/ready"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready before serve: code=%d", rec.Code)
	}
	if rec := get(t, router, "/health"); rec.Code != http.StatusOK {
		t.Fatalf("health: code=%d", rec.Code)
	}
}

func TestAdminTableReportsSnapshot(t *testing.T) {
	testlog.Start(t)
	r := startService(t, testConfig(3))
	conn, reader, _ := register(t, r.addr, session.Registration{PhilosopherID: "phil.1", Seat: 1})
	defer conn.Close()
	send(t, conn, protocol.KindRequest)
	if _, err := session.ReadMessage(reader); err != nil {
		t.Fatalf("read grant: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(r.svc.Snapshot().Eating()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	router := r.svc.AdminRouter()
	if rec := get(t, router, "/ready"); rec.Code != http.StatusOK {
		t.Fatalf("ready while serving: code=%d", rec.Code)
	}
	rec := get(t, router, "/table")
	if rec.Code != http.StatusOK {
		t.Fatalf("table: code=%d", rec.Code)
	}
	var body struct {
		Table struct {
			Seats []string `json:"seats"`
			Forks []string `json:"forks"`
		} `json:"table"`
		Connected []SeatInfo `json:"connected"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if strings.Join(body.Table.Seats, ",") != "idle,eating,idle" {
		t.Fatalf("seats=%v", body.Table.Seats)
	}
	if strings.Join(body.Table.Forks, ",") != "free,held,held" {
		t.Fatalf("forks=%v", body.Table.Forks)
	}
	if len(body.Connected) != 1 || body.Connected[0].PhilosopherID != "phil.1" {
		t.Fatalf("connected=%+v", body.Connected)
	}
	if rec := get(t, router, "/metrics"); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "tablectl_arbiter_decisions_total") {
		t.Fatalf("metrics missing arbiter counters: code=%d", rec.Code)
	}
}

func TestAdminTokenGuardsTableAndMetrics(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig(3)
	cfg.AdminToken = "s3cret"
	svc, err := NewService(cfg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	router := svc.AdminRouter()
	if rec := get(t, router, "/health"); rec.Code != http.StatusOK {
		t.Fatalf("health must stay open: code=%d", rec.Code)
	}
	for _, path := range []string{"/table", "/metrics"} {
		if rec := get(t, router, path); rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s without token: code=%d", path, rec.Code)
		}
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer s3cret")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s with token: code=%d", path, rec.Code)
		}
	}
}
