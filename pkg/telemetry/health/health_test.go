package health

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"
)

func TestLiveness(t *testing.T) {
	checker := NewChecker()
	rec := httptest.NewRecorder()
	checker.LivenessHandler()(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != 200 {
		t.Errorf("liveness = %d, want 200", rec.Code)
	}
}

func TestReadiness(t *testing.T) {
	checker := NewChecker()
	checker.Register("policies", func() error { return nil })

	rec := httptest.NewRecorder()
	checker.ReadinessHandler()(rec, httptest.NewRequest("GET", "/readyz", nil))
	if rec.Code != 200 {
		t.Fatalf("readiness with passing checks = %d, want 200", rec.Code)
	}

	checker.Register("audit", func() error { return fmt.Errorf("db locked") })
	rec = httptest.NewRecorder()
	checker.ReadinessHandler()(rec, httptest.NewRequest("GET", "/readyz", nil))
	if rec.Code != 503 {
		t.Fatalf("readiness with failing check = %d, want 503", rec.Code)
	}

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("readiness body is not JSON: %v", err)
	}
	if body.Status != "unavailable" || body.Checks["audit"] != "db locked" || body.Checks["policies"] != "ok" {
		t.Errorf("readiness body = %+v", body)
	}
}
