package health

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/chargemock/internal/version"
)

type staticChecker Check

func (c staticChecker) Check() Check { return Check(c) }

func testBuild() version.Build {
	return version.Build{Service: "chargemock", Version: "v1.0.0", Commit: "abc", Date: "today"}
}

func decodeReport(t *testing.T, w *httptest.ResponseRecorder) Report {
	t.Helper()
	var report Report
	if err := json.NewDecoder(w.Body).Decode(&report); err != nil {
		t.Fatalf("failed to decode report: %v", err)
	}
	return report
}

func TestHandler_Healthy(t *testing.T) {
	handler := NewHandler(testBuild())
	handler.RegisterChecker("object_store", staticChecker{Name: "object_store", Status: StatusHealthy, Message: "3 charges"})

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}

	report := decodeReport(t, w)
	if report.Status != StatusHealthy {
		t.Fatalf("expected healthy, got %s", report.Status)
	}
	if report.Build.Version != "v1.0.0" || report.Build.Service != "chargemock" {
		t.Fatalf("unexpected build: %+v", report.Build)
	}
	if report.Checks["object_store"].Message != "3 charges" {
		t.Fatalf("unexpected checks: %+v", report.Checks)
	}
}

func TestHandler_DegradedIsNotFailure(t *testing.T) {
	handler := NewHandler(testBuild())
	handler.RegisterChecker("object_store", staticChecker{Status: StatusHealthy})
	handler.RegisterChecker("outbox", staticChecker{Status: StatusDegraded, Message: "backlog"})

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("degraded must still answer 200, got %d", w.Code)
	}
	if report := decodeReport(t, w); report.Status != StatusDegraded {
		t.Fatalf("expected degraded, got %s", report.Status)
	}
}

func TestHandler_UnhealthyWins(t *testing.T) {
	handler := NewHandler(testBuild())
	handler.RegisterChecker("outbox", staticChecker{Status: StatusDegraded})
	handler.RegisterChecker("storage", NewSimpleChecker("postgres", func() error {
		return errors.New("connection refused")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", w.Code)
	}
	report := decodeReport(t, w)
	if report.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy, got %s", report.Status)
	}
	if report.Checks["storage"].Message != "connection refused" {
		t.Fatalf("unexpected storage check: %+v", report.Checks["storage"])
	}
}

func TestHandler_EvaluateUsesClock(t *testing.T) {
	handler := NewHandler(testBuild())
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	handler.startTime = start
	handler.now = func() time.Time { return start.Add(90 * time.Second) }

	report := handler.Evaluate()
	if report.UptimeSeconds != 90 {
		t.Fatalf("expected uptime 90s, got %d", report.UptimeSeconds)
	}
	if !report.Timestamp.Equal(start.Add(90 * time.Second)) {
		t.Fatalf("unexpected timestamp %v", report.Timestamp)
	}
	if report.Status != StatusHealthy || len(report.Checks) != 0 {
		t.Fatalf("empty handler must be healthy: %+v", report)
	}
}

func TestLivenessHandler(t *testing.T) {
	w := httptest.NewRecorder()
	LivenessHandler(w, httptest.NewRequest(http.MethodGet, "/livez", nil))

	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("unexpected liveness response: %d %q", w.Code, w.Body.String())
	}
}

func TestReadinessHandler(t *testing.T) {
	handler := NewHandler(testBuild())
	handler.RegisterChecker("outbox", staticChecker{Status: StatusDegraded})

	w := httptest.NewRecorder()
	handler.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if w.Code != http.StatusOK || w.Body.String() != "ready" {
		t.Fatalf("unexpected readiness response: %d %q", w.Code, w.Body.String())
	}
}

func TestReadinessHandler_ListsFailingChecks(t *testing.T) {
	handler := NewHandler(testBuild())
	handler.RegisterChecker("storage", staticChecker{Status: StatusUnhealthy})
	handler.RegisterChecker("object_store", staticChecker{Status: StatusUnhealthy})
	handler.RegisterChecker("outbox", staticChecker{Status: StatusHealthy})

	w := httptest.NewRecorder()
	handler.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", w.Code)
	}
	if w.Body.String() != "not ready: object_store,storage" {
		t.Fatalf("unexpected body %q", w.Body.String())
	}
}

func TestSimpleChecker(t *testing.T) {
	check := NewSimpleChecker("postgres", func() error {
		time.Sleep(10 * time.Millisecond)
		return nil
	}).Check()

	if check.Name != "postgres" || check.Status != StatusHealthy || check.Message != "" {
		t.Fatalf("unexpected check: %+v", check)
	}
	if check.DurationMs < 10 {
		t.Fatalf("expected duration >= 10ms, got %dms", check.DurationMs)
	}

	failed := NewSimpleChecker("postgres", func() error { return errors.New("ping failed") }).Check()
	if failed.Status != StatusUnhealthy || failed.Message != "ping failed" {
		t.Fatalf("unexpected failed check: %+v", failed)
	}
}
