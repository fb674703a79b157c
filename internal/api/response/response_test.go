package response

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	Success(rec, map[string]float64{"Move[0]": 0.5})

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected application/json, got %q", ct)
	}
	var body struct {
		Data map[string]float64 `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if body.Data["Move[0]"] != 0.5 {
		t.Errorf("Unexpected data %v", body.Data)
	}
}

func TestError(t *testing.T) {
	rec := httptest.NewRecorder()
	NotFound(rec, errors.New("feature \"Nope\" is not registered"))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", rec.Code)
	}
	var body struct {
		Problem Problem `json:"problem"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	want := Problem{Status: 404, Reason: "Not Found", Message: "feature \"Nope\" is not registered"}
	if body.Problem != want {
		t.Errorf("Expected %+v, got %+v", want, body.Problem)
	}
}

func TestJSON_UnencodableIsServerError(t *testing.T) {
	rec := httptest.NewRecorder()
	Success(rec, []float64{math.NaN()})

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d", rec.Code)
	}
	var body struct {
		Problem Problem `json:"problem"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if body.Problem.Status != http.StatusInternalServerError {
		t.Errorf("Unexpected problem %+v", body.Problem)
	}
}
