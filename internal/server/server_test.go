package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"

	"github.com/shockwatch-ai/shockwatch/internal/audit"
	"github.com/shockwatch-ai/shockwatch/internal/config"
	"github.com/shockwatch-ai/shockwatch/internal/explain"
	"github.com/shockwatch-ai/shockwatch/internal/feature"
	"github.com/shockwatch-ai/shockwatch/internal/model"
	"github.com/shockwatch-ai/shockwatch/internal/pipeline"
)

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg, err := config.Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.Server.Addr = ":0"
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()

	clf := model.NewFake(feature.Names)
	background := make([]float64, feature.Count)
	engine := explain.NewEngine(explain.NewSamplingMethod(background))
	pipe, err := pipeline.New(clf, engine, trace.NewNoopTracerProvider().Tracer("test"))
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	return New(cfg, pipe, "rf-test", nil, nil)
}

func defaultBody() map[string]any {
	return map[string]any{
		"pneumonia": false, "copd": false,
		"age": 65, "heartrate": 90, "sbp": 120, "respiratoryrate": 20,
		"spo2": 96, "temperature": 36.8, "wbc": 8.0, "albumin": 3.5,
		"alt": 30, "bun": 20, "sodium": 135, "plateletcount": 200, "sofa": 6,
	}
}

func postAssess(t *testing.T, srv *Server, path string, body map[string]any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	return rr
}

func TestAssess_DefaultInputs(t *testing.T) {
	srv := newTestServer(t, newTestConfig(t))

	rr := postAssess(t, srv, "/v1/assess", defaultBody(), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var resp assessResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if resp.Probability < 0 || resp.Probability > 1 {
		t.Fatalf("probability %v outside [0,1]", resp.Probability)
	}
	if resp.Tier == "" || resp.Recommendation == "" {
		t.Fatalf("missing tier or recommendation: %+v", resp)
	}
	if resp.Explanation == nil {
		t.Fatal("expected explanation by default")
	}
	if len(resp.Explanation.Contributions) != feature.Count {
		t.Fatalf("got %d contributions, want %d", len(resp.Explanation.Contributions), feature.Count)
	}
	if resp.ModelVersion != "rf-test" {
		t.Fatalf("model version = %q", resp.ModelVersion)
	}
}

func TestAssess_ExplainFalseSkipsAttribution(t *testing.T) {
	srv := newTestServer(t, newTestConfig(t))

	rr := postAssess(t, srv, "/v1/assess?explain=false", defaultBody(), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var resp assessResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Explanation != nil {
		t.Fatal("explanation must be omitted when explain=false")
	}
}

func TestAssess_MissingField(t *testing.T) {
	srv := newTestServer(t, newTestConfig(t))

	body := defaultBody()
	delete(body, "sofa")

	rr := postAssess(t, srv, "/v1/assess", body, nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422; body = %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "sofa") {
		t.Fatalf("error should name the missing field, got: %s", rr.Body.String())
	}
}

func TestAssess_OutOfRangeField(t *testing.T) {
	srv := newTestServer(t, newTestConfig(t))

	cases := map[string]any{
		"age":         17,
		"spo2":        101,
		"temperature": 45.0,
		"sofa":        25,
	}
	for field, value := range cases {
		body := defaultBody()
		body[field] = value

		rr := postAssess(t, srv, "/v1/assess", body, nil)
		if rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("%s=%v: status = %d, want 422", field, value, rr.Code)
		}
		if !strings.Contains(rr.Body.String(), field) {
			t.Fatalf("%s: error should name the field, got: %s", field, rr.Body.String())
		}
	}
}

func TestAssess_InvalidJSON(t *testing.T) {
	srv := newTestServer(t, newTestConfig(t))

	req := httptest.NewRequest(http.MethodPost, "/v1/assess", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestAssess_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, newTestConfig(t))

	req := httptest.NewRequest(http.MethodGet, "/v1/assess", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rr.Code)
	}
}

func TestAuth_RejectsWithoutKey(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Server.APIKeys = []string{"icu-east"}
	srv := newTestServer(t, cfg)

	rr := postAssess(t, srv, "/v1/assess", defaultBody(), nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}

	rr = postAssess(t, srv, "/v1/assess", defaultBody(), map[string]string{"Authorization": "Bearer wrong"})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("wrong key: status = %d, want 401", rr.Code)
	}

	rr = postAssess(t, srv, "/v1/assess", defaultBody(), map[string]string{"Authorization": "Bearer icu-east"})
	if rr.Code != http.StatusOK {
		t.Fatalf("valid key: status = %d, body = %s", rr.Code, rr.Body.String())
	}
}

func TestHealthz_OpenWithoutAuth(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Server.APIKeys = []string{"icu-east"}
	srv := newTestServer(t, cfg)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz must not require auth, got %d", rr.Code)
	}
}

func TestModelEndpoint(t *testing.T) {
	srv := newTestServer(t, newTestConfig(t))

	req := httptest.NewRequest(http.MethodGet, "/v1/model", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	var resp modelResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Version != "rf-test" {
		t.Fatalf("version = %q", resp.Version)
	}
	if len(resp.FeatureOrder) != feature.Count {
		t.Fatalf("feature order has %d names", len(resp.FeatureOrder))
	}
}

func TestRecent_NotConfigured(t *testing.T) {
	srv := newTestServer(t, newTestConfig(t))

	req := httptest.NewRequest(http.MethodGet, "/v1/assessments/recent", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 when no history store", rr.Code)
	}
}

func TestRecent_ReturnsAuditedAssessments(t *testing.T) {
	cfg := newTestConfig(t)

	store, err := audit.OpenStore(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close(context.Background()) })
	emitter := audit.NewEmitter(audit.EmitterConfig{QueueSize: 10, Workers: 1}, []audit.Sink{store})

	clf := model.NewFake(feature.Names)
	engine := explain.NewEngine(explain.NewSamplingMethod(make([]float64, feature.Count)))
	pipe, err := pipeline.New(clf, engine, trace.NewNoopTracerProvider().Tracer("test"))
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	srv := New(cfg, pipe, "rf-test", emitter, store)

	for i := 0; i < 3; i++ {
		rr := postAssess(t, srv, "/v1/assess?explain=false", defaultBody(), nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("assess %d: status = %d", i, rr.Code)
		}
	}
	// Drain the emitter so the store has definitely seen all events.
	emitter.Close(context.Background())

	req := httptest.NewRequest(http.MethodGet, "/v1/assessments/recent?limit=2", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("recent: status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var events []*audit.Event
	if err := json.Unmarshal(rr.Body.Bytes(), &events); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	for _, ev := range events {
		if ev.ModelVersion != "rf-test" || ev.Tier == "" {
			t.Fatalf("event missing fields: %+v", ev)
		}
	}
}

func TestRecent_BadLimit(t *testing.T) {
	cfg := newTestConfig(t)
	store, err := audit.OpenStore(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close(context.Background()) })

	clf := model.NewFake(feature.Names)
	engine := explain.NewEngine(explain.NewSamplingMethod(make([]float64, feature.Count)))
	pipe, err := pipeline.New(clf, engine, trace.NewNoopTracerProvider().Tracer("test"))
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	srv := New(cfg, pipe, "rf-test", nil, store)

	for _, limit := range []string{"0", "-3", "1001", "abc"} {
		req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/v1/assessments/recent?limit=%s", limit), nil)
		rr := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("limit=%s: status = %d, want 400", limit, rr.Code)
		}
	}
}
