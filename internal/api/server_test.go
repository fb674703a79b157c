package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ramonehamilton/gammatrain/internal/api/handlers"
	"github.com/ramonehamilton/gammatrain/internal/features"
	"github.com/ramonehamilton/gammatrain/internal/weights"
)

type staticSource struct{ model *weights.Model }

func (s staticSource) Current() *weights.Model { return s.model }

func testModel(t *testing.T) *weights.Model {
	t.Helper()
	reg := features.NewRegistry()
	var g *features.Group
	err := reg.Define(func(r *features.Registry) error {
		var err error
		g, err = r.AddGroup("Shape", 2, 2)
		return err
	})
	if err != nil {
		t.Fatalf("Define failed: %v", err)
	}
	m := weights.New(reg)
	m.Set(g.Index(0, 1), 1.5)
	m.Set(g.Index(1, 0), -0.5)
	m.SetIterations(7)
	return m
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return NewServer(DefaultConfig(), staticSource{model: testModel(t)})
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestNewServer_NilConfig(t *testing.T) {
	s := NewServer(nil, staticSource{model: testModel(t)})
	if s.Port() != 8080 {
		t.Errorf("Expected default port 8080, got %d", s.Port())
	}
}

func TestHealthCheck(t *testing.T) {
	rec := do(t, newTestServer(t), http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if body["status"] != "healthy" || body["iterations"] != float64(7) {
		t.Errorf("Unexpected health body %v", body)
	}
}

func TestScore(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodPost, "/api/v1/score",
		`{"teams": [["Shape[1,0]"], ["Shape[0,1]", "Shape[0,1]"], ["Shape[0,0]", "Ghost"]]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Data handlers.ScoreResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	want := []float64{-0.5, 3, 0}
	for i, v := range want {
		if body.Data.Scores[i] != v {
			t.Errorf("Team %d: expected %g, got %g", i, v, body.Data.Scores[i])
		}
	}
	if body.Data.Best != 1 {
		t.Errorf("Expected best team 1, got %d", body.Data.Best)
	}
	if len(body.Data.Unknown) != 1 || body.Data.Unknown[0] != "Ghost" {
		t.Errorf("Expected Ghost to be reported unknown, got %v", body.Data.Unknown)
	}

	if got := testutil.ToFloat64(s.metrics.ScoreRequests.WithLabelValues("ok")); got != 1 {
		t.Errorf("Expected 1 ok request counted, got %g", got)
	}
	if got := testutil.ToFloat64(s.metrics.TeamsScored); got != 3 {
		t.Errorf("Expected 3 teams counted, got %g", got)
	}
}

func TestScore_BadRequests(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"teams": [`},
		{"no teams", `{"teams": []}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/api/v1/score", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d", rec.Code)
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/score", bytes.NewBufferString(`{"teams": [["a"]]}`))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Errorf("Expected 415 for a non-JSON body, got %d", rec.Code)
	}
}

func TestGetFeature(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/v1/features/"+url.PathEscape("Shape[0,1]"), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Data handlers.FeatureResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if body.Data.Group != "Shape" || body.Data.LogGamma != 1.5 || len(body.Data.Coords) != 2 || body.Data.Coords[1] != 1 {
		t.Errorf("Unexpected feature %+v", body.Data)
	}

	if rec := do(t, s, http.MethodGet, "/api/v1/features/Nope", ""); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for an unknown feature, got %d", rec.Code)
	}
}

func TestGetModel(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/v1/model?top=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var body struct {
		Data handlers.ModelResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if body.Data.Features != 5 || len(body.Data.Top) != 1 || body.Data.Top[0].Name != "Shape[0,1]" {
		t.Errorf("Unexpected model summary %+v", body.Data)
	}

	if rec := do(t, s, http.MethodGet, "/api/v1/model?top=x", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for a bad top, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.ModelReloaded(testModel(t))

	rec := do(t, s, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	for _, want := range []string{"gammatrain_model_reloads_total 1", "gammatrain_model_nonzero_weights 2", "go_goroutines"} {
		if !strings.Contains(rec.Body.String(), want) {
			t.Errorf("Metrics output is missing %q", want)
		}
	}
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	s := newTestServer(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get("http://" + ln.Addr().String() + "/health")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("Server never answered: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
