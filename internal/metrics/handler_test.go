package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestHandler_ServesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := InitMetrics(reg)
	m.QueueDepth.Set(4)
	m.SetSessionStatus("connected")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	resp := w.Result()
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	bodyStr := string(body)

	for _, want := range []string{
		"bmbridge_reverse_queue_depth 4",
		`bmbridge_session_status{status="connected"} 1`,
		`bmbridge_session_status{status="disconnected"} 0`,
	} {
		if !strings.Contains(bodyStr, want) {
			t.Errorf("expected response to contain %q, got:\n%s", want, bodyStr)
		}
	}
}

func TestHandler_EmptyRegistryStillServes200(t *testing.T) {
	reg := prometheus.NewRegistry()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Result().StatusCode)
	}
}

func TestHandler_ServesCounterValues(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := InitMetrics(reg)
	m.DedupeHits.Add(3)
	m.DedupeMisses.Add(1)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	body, _ := io.ReadAll(w.Result().Body)
	bodyStr := string(body)

	if !strings.Contains(bodyStr, "bmbridge_dedupe_hits_total 3") {
		t.Error("expected dedupe_hits_total 3")
	}
	if !strings.Contains(bodyStr, "bmbridge_dedupe_misses_total 1") {
		t.Error("expected dedupe_misses_total 1")
	}
}
