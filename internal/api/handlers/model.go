// Package handlers implements the scoring API endpoints.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ramonehamilton/gammatrain/internal/api/response"
	"github.com/ramonehamilton/gammatrain/internal/features"
	"github.com/ramonehamilton/gammatrain/internal/metrics"
	"github.com/ramonehamilton/gammatrain/internal/weights"
)

// maxTeams bounds a single score request.
const maxTeams = 4096

// ModelSource provides the weights currently being served.
type ModelSource interface {
	Current() *weights.Model
}

// ModelHandler serves scores and weights from the current model.
type ModelHandler struct {
	source  ModelSource
	metrics *metrics.ServingCollectors
}

// NewModelHandler creates a ModelHandler. collectors may be nil.
func NewModelHandler(source ModelSource, collectors *metrics.ServingCollectors) *ModelHandler {
	return &ModelHandler{source: source, metrics: collectors}
}

// ScoreRequest lists the competing teams as feature names. A name repeated
// within a team counts once per occurrence.
type ScoreRequest struct {
	Teams [][]string `json:"teams"`
}

// ScoreResponse holds one log-strength per team and the best team.
type ScoreResponse struct {
	Scores  []float64 `json:"scores"`
	Best    int       `json:"best"`
	Unknown []string  `json:"unknown,omitempty"`
}

// Score scores every team in the request against the current model.
// Unknown names contribute nothing and are echoed back.
func (h *ModelHandler) Score(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req ScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.countRequest("bad_request")
		response.BadRequest(w, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if len(req.Teams) == 0 {
		h.countRequest("bad_request")
		response.BadRequest(w, errors.New("teams cannot be empty"))
		return
	}
	if len(req.Teams) > maxTeams {
		h.countRequest("bad_request")
		response.BadRequest(w, fmt.Errorf("too many teams: %d > %d", len(req.Teams), maxTeams))
		return
	}

	model := h.source.Current()
	reg := model.Registry()
	teams := make([][]features.Index, len(req.Teams))
	var unknown []string
	for i, names := range req.Teams {
		team := make([]features.Index, 0, len(names))
		for _, name := range names {
			idx, ok := reg.Lookup(name)
			if !ok {
				unknown = append(unknown, name)
				continue
			}
			team = append(team, idx)
		}
		teams[i] = team
	}

	resp := ScoreResponse{Scores: make([]float64, len(teams)), Unknown: unknown}
	for i, team := range teams {
		resp.Scores[i] = model.Score(team)
	}
	resp.Best, _ = model.Best(teams)

	if h.metrics != nil {
		h.metrics.TeamsScored.Add(float64(len(teams)))
		h.metrics.UnknownNames.Add(float64(len(unknown)))
		h.metrics.ScoreDuration.Observe(time.Since(start).Seconds())
	}
	h.countRequest("ok")
	response.Success(w, resp)
}

func (h *ModelHandler) countRequest(status string) {
	if h.metrics != nil {
		h.metrics.ScoreRequests.WithLabelValues(status).Inc()
	}
}

// FeatureResponse describes one feature of the served model.
type FeatureResponse struct {
	Name     string  `json:"name"`
	Index    int     `json:"index"`
	Group    string  `json:"group"`
	Coords   []int   `json:"coords"`
	LogGamma float64 `json:"log_gamma"`
	Gamma    float64 `json:"gamma"`
}

// GetFeature returns the weight of the feature named in the URL.
func (h *ModelHandler) GetFeature(w http.ResponseWriter, r *http.Request) {
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil {
		response.BadRequest(w, fmt.Errorf("invalid feature name: %w", err))
		return
	}
	model := h.source.Current()
	reg := model.Registry()

	idx, ok := reg.Lookup(name)
	if !ok {
		response.NotFound(w, fmt.Errorf("feature %q: %w", name, features.ErrUnknownFeature))
		return
	}
	g := reg.Group(idx)
	response.Success(w, FeatureResponse{
		Name:     name,
		Index:    int(idx),
		Group:    g.Name(),
		Coords:   g.Coords(idx),
		LogGamma: model.LogGamma(idx),
		Gamma:    model.Gamma(idx),
	})
}

// ModelResponse summarizes the served model.
type ModelResponse struct {
	Features   int              `json:"features"`
	Iterations int              `json:"iterations"`
	Top        []weights.Ranked `json:"top"`
}

// GetModel returns the model summary with its strongest features.
// The top query parameter bounds the list (default 20).
func (h *ModelHandler) GetModel(w http.ResponseWriter, r *http.Request) {
	top := 20
	if v := r.URL.Query().Get("top"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			response.BadRequest(w, fmt.Errorf("invalid top %q", v))
			return
		}
		top = n
	}

	model := h.source.Current()
	response.Success(w, ModelResponse{
		Features:   model.Registry().Size(),
		Iterations: model.Iterations(),
		Top:        model.Top(top),
	})
}
