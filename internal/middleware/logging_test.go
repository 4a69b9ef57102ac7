package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

type recordedHTTPMetric struct {
	method string
	route  string
	status int
}

type mockHTTPMetrics struct {
	records []recordedHTTPMetric
}

func (m *mockHTTPMetrics) RecordHTTPRequest(method, route string, status int) {
	m.records = append(m.records, recordedHTTPMetric{method, route, status})
}

// TestLoggingMiddleware_LogsRequest はリクエストログの構造化フィールドを検証する。
func TestLoggingMiddleware_LogsRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	metrics := &mockHTTPMetrics{}

	handler := NewLoggingMiddleware(logger, metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	req := httptest.NewRequest("GET", "/api/requests/missing", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not valid JSON: %v", err)
	}
	if entry["method"] != "GET" {
		t.Errorf("method = %v, want GET", entry["method"])
	}
	if entry["path"] != "/api/requests/missing" {
		t.Errorf("path = %v, want /api/requests/missing", entry["path"])
	}
	if entry["status"] != float64(404) {
		t.Errorf("status = %v, want 404", entry["status"])
	}
	if entry["level"] != "WARN" {
		t.Errorf("level = %v, want WARN for 4xx", entry["level"])
	}
	if _, ok := entry["duration_ms"]; !ok {
		t.Error("log entry should contain duration_ms")
	}

	if len(metrics.records) != 1 {
		t.Fatalf("recorded %d metrics, want 1", len(metrics.records))
	}
	if metrics.records[0].status != 404 {
		t.Errorf("metric status = %d, want 404", metrics.records[0].status)
	}
}

// TestLoggingMiddleware_IncludesAdminID は認証済みリクエストのadmin_id出力を検証する。
func TestLoggingMiddleware_IncludesAdminID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := NewLoggingMiddleware(logger, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/dashboard", nil)
	req = req.WithContext(ContextWithAdminID(req.Context(), "admin-1"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not valid JSON: %v", err)
	}
	if entry["admin_id"] != "admin-1" {
		t.Errorf("admin_id = %v, want admin-1", entry["admin_id"])
	}
	if entry["level"] != "INFO" {
		t.Errorf("level = %v, want INFO for 2xx", entry["level"])
	}
}

// TestStatusRecorder_DefaultStatus はWriteHeader未呼び出し時の200記録を検証する。
func TestStatusRecorder_DefaultStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	sr := &statusRecorder{ResponseWriter: rec}

	if _, err := sr.Write([]byte("ok")); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if sr.statusCode != http.StatusOK {
		t.Errorf("statusCode = %d, want 200", sr.statusCode)
	}

	// 後続のWriteHeaderは最初の記録を上書きしない
	sr.WriteHeader(http.StatusInternalServerError)
	if sr.statusCode != http.StatusOK {
		t.Errorf("statusCode = %d, want 200 after late WriteHeader", sr.statusCode)
	}
}
