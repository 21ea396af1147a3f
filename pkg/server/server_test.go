package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"veridian-hq/attune/pkg/audit"
	"veridian-hq/attune/pkg/config"
	"veridian-hq/attune/pkg/engine"
	"veridian-hq/attune/pkg/policy"
	"veridian-hq/attune/pkg/policy/storage"
	"veridian-hq/attune/pkg/signal"
	"veridian-hq/attune/pkg/telemetry/metrics"
)

type testEnv struct {
	server   *Server
	registry *policy.Registry
	store    *signal.Store
	backend  *storage.MemoryBackend
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Telemetry.Metrics.Enabled = true
	if mutate != nil {
		mutate(cfg)
	}

	store := signal.NewStore(signal.StoreConfig{Retention: cfg.Signals.Retention}, nil)
	registry := policy.NewRegistry()
	eng, err := engine.New(engine.DefaultConfig(), registry, store, nil)
	if err != nil {
		t.Fatalf("engine.New failed: %v", err)
	}
	backend := storage.NewMemoryBackend()

	srv, err := New(cfg, Deps{
		Store:    store,
		Registry: registry,
		Engine:   eng,
		Backend:  backend,
		Recorder: audit.NopRecorder{},
		Metrics:  metrics.New(metrics.DefaultConfig(), nil),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return &testEnv{server: srv, registry: registry, store: store, backend: backend}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func validPolicyJSON(id string) string {
	return fmt.Sprintf(`{
		"id": %q,
		"service": "checkout",
		"environment": "prod",
		"priority": 10,
		"conditions": [
			{"metric": "error_rate", "operator": ">", "threshold": 0.05, "window_seconds": 60, "aggregate": "avg"}
		],
		"action": {"log_level": "ERROR", "trace_sample_rate": 1.0, "metric_interval_seconds": 15}
	}`, id)
}

func TestSubmitSignal(t *testing.T) {
	env := newTestServer(t, nil)

	rec := env.do(t, "POST", "/v1/signals", map[string]any{
		"service": "checkout", "environment": "prod", "metric": "error_rate", "value": 0.07,
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("submit = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	var ack map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &ack); err != nil || ack["status"] != "accepted" {
		t.Errorf("ack body = %s", rec.Body.String())
	}
	if env.store.Len() != 1 {
		t.Errorf("store has %d windows, want 1", env.store.Len())
	}
}

func TestSubmitSignal_Validation(t *testing.T) {
	env := newTestServer(t, nil)

	// Missing fields.
	rec := env.do(t, "POST", "/v1/signals", map[string]any{"service": "checkout", "value": 1.0})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing fields = %d, want 400", rec.Code)
	}

	// Malformed JSON.
	rec = env.do(t, "POST", "/v1/signals", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body = %d, want 400", rec.Code)
	}

	// Unknown field.
	rec = env.do(t, "POST", "/v1/signals", `{"service":"a","environment":"b","metric":"c","value":1,"extra":true}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown field = %d, want 400", rec.Code)
	}
}

func TestSubmitSignal_MetricCatalog(t *testing.T) {
	env := newTestServer(t, func(cfg *config.Config) {
		cfg.Signals.MetricCatalog = []string{"error_rate", "latency_ms"}
	})

	rec := env.do(t, "POST", "/v1/signals", map[string]any{
		"service": "checkout", "environment": "prod", "metric": "error_rate", "value": 0.07,
	})
	if rec.Code != http.StatusAccepted {
		t.Errorf("cataloged metric = %d, want 202", rec.Code)
	}

	rec = env.do(t, "POST", "/v1/signals", map[string]any{
		"service": "checkout", "environment": "prod", "metric": "cpu_temp", "value": 70,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("uncataloged metric = %d, want 400", rec.Code)
	}
}

func TestEffectivePolicy_EndToEnd(t *testing.T) {
	env := newTestServer(t, nil)

	rec := env.do(t, "POST", "/v1/policies", validPolicyJSON("elevate-on-errors"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create policy = %d: %s", rec.Code, rec.Body.String())
	}

	// Quiet: default decision.
	rec = env.do(t, "GET", "/v1/effective-policy/checkout/prod", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("effective-policy = %d: %s", rec.Code, rec.Body.String())
	}
	var decision engine.Decision
	if err := json.Unmarshal(rec.Body.Bytes(), &decision); err != nil {
		t.Fatalf("decision body: %v", err)
	}
	if decision.MatchedPolicyID != engine.DefaultPolicyID {
		t.Fatalf("quiet decision matched %q, want default", decision.MatchedPolicyID)
	}

	// Loud: submitted signals flip the decision on the next pull.
	for i := 0; i < 5; i++ {
		env.do(t, "POST", "/v1/signals", map[string]any{
			"service": "checkout", "environment": "prod", "metric": "error_rate", "value": 0.08,
		})
	}
	rec = env.do(t, "GET", "/v1/effective-policy/checkout/prod", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &decision); err != nil {
		t.Fatalf("decision body: %v", err)
	}
	if decision.MatchedPolicyID != "elevate-on-errors" || decision.Action.LogLevel != policy.LevelError {
		t.Errorf("loud decision = %+v", decision)
	}
}

func TestPolicyCRUD(t *testing.T) {
	env := newTestServer(t, nil)

	// Create.
	rec := env.do(t, "POST", "/v1/policies", validPolicyJSON("p1"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d: %s", rec.Code, rec.Body.String())
	}

	// Upsert by id returns 200.
	rec = env.do(t, "POST", "/v1/policies", validPolicyJSON("p1"))
	if rec.Code != http.StatusOK {
		t.Errorf("re-upsert = %d, want 200", rec.Code)
	}

	// Read.
	rec = env.do(t, "GET", "/v1/policies/p1", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("get = %d, want 200", rec.Code)
	}
	rec = env.do(t, "GET", "/v1/policies", nil)
	var list policyListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("list body: %v", err)
	}
	if list.Count != 1 || len(list.Policies) != 1 || list.Version == "" {
		t.Errorf("list = %+v", list)
	}

	// PUT with mismatched path id.
	rec = env.do(t, "PUT", "/v1/policies/other", validPolicyJSON("p1"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("mismatched put = %d, want 400", rec.Code)
	}

	// Persistence went through the backend.
	loaded, err := env.backend.LoadAll(t.Context())
	if err != nil || len(loaded) != 1 {
		t.Errorf("backend LoadAll = %v, %v", loaded, err)
	}

	// Delete.
	rec = env.do(t, "DELETE", "/v1/policies/p1", nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete = %d, want 204", rec.Code)
	}
	rec = env.do(t, "GET", "/v1/policies/p1", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", rec.Code)
	}
	rec = env.do(t, "DELETE", "/v1/policies/p1", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("delete unknown = %d, want 404", rec.Code)
	}
}

func TestPolicySchemaRejections(t *testing.T) {
	env := newTestServer(t, nil)

	tests := []struct {
		name string
		body string
	}{
		{"missing conditions", `{"id":"x","action":{"log_level":"INFO","trace_sample_rate":0.1,"metric_interval_seconds":60}}`},
		{"unknown operator", strings.Replace(validPolicyJSON("x"), `">"`, `"!="`, 1)},
		{"unknown field", strings.Replace(validPolicyJSON("x"), `"priority"`, `"weight"`, 1)},
		{"sample rate out of range", strings.Replace(validPolicyJSON("x"), `"trace_sample_rate": 1.0`, `"trace_sample_rate": 2.0`, 1)},
		{"not json", `{{{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, "POST", "/v1/policies", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("code = %d, want 400: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestIngestRateLimit(t *testing.T) {
	env := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.IngestRatePerSecond = 1
		cfg.Server.IngestBurst = 1
	})
	body := map[string]any{"service": "a", "environment": "b", "metric": "c", "value": 1.0}

	if rec := env.do(t, "POST", "/v1/signals", body); rec.Code != http.StatusAccepted {
		t.Fatalf("first submit = %d, want 202", rec.Code)
	}
	if rec := env.do(t, "POST", "/v1/signals", body); rec.Code != http.StatusTooManyRequests {
		t.Errorf("second submit = %d, want 429", rec.Code)
	}

	// Decision pulls are never rate limited.
	if rec := env.do(t, "GET", "/v1/effective-policy/a/b", nil); rec.Code != http.StatusOK {
		t.Errorf("decision pull during limit = %d, want 200", rec.Code)
	}
}

func TestOperationalEndpoints(t *testing.T) {
	env := newTestServer(t, nil)

	if rec := env.do(t, "GET", "/healthz", nil); rec.Code != http.StatusOK {
		t.Errorf("healthz = %d", rec.Code)
	}
	if rec := env.do(t, "GET", "/readyz", nil); rec.Code != http.StatusOK {
		t.Errorf("readyz = %d", rec.Code)
	}

	env.do(t, "POST", "/v1/signals", map[string]any{
		"service": "a", "environment": "b", "metric": "error_rate", "value": 1.0,
	})
	rec := env.do(t, "GET", "/metrics", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "attune_signals_ingested_total") {
		t.Errorf("metrics endpoint = %d", rec.Code)
	}
}

func TestRequestIDHeader(t *testing.T) {
	env := newTestServer(t, nil)

	rec := env.do(t, "GET", "/healthz", nil)
	if got := rec.Header().Get(RequestIDHeader); len(got) != 32 {
		t.Errorf("generated request id = %q", got)
	}

	req := httptest.NewRequest("GET", "/healthz", nil)
	req.Header.Set(RequestIDHeader, "client-supplied")
	out := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(out, req)
	if got := out.Header().Get(RequestIDHeader); got != "client-supplied" {
		t.Errorf("client request id not honored: %q", got)
	}
}

func TestDecisionChangesEndpoint_Disabled(t *testing.T) {
	env := newTestServer(t, nil)
	env.server.recorder = nil

	if rec := env.do(t, "GET", "/v1/decision-changes", nil); rec.Code != http.StatusNotFound {
		t.Errorf("disabled audit endpoint = %d, want 404", rec.Code)
	}
}
