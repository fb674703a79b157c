// Package weights holds trained feature log-gammas, scores teams with them
// and persists them by feature name.
package weights

import (
	"math"
	"sort"

	"github.com/ramonehamilton/gammatrain/internal/features"
)

// Model is a frozen set of log-gamma weights over a registry.
// A zero weight is neutral (gamma = 1).
type Model struct {
	registry   *features.Registry
	logGamma   []float64
	iterations int
}

// New creates a model with every weight neutral.
func New(reg *features.Registry) *Model {
	return &Model{
		registry: reg,
		logGamma: make([]float64, reg.Size()),
	}
}

// Registry returns the registry the weights are indexed by.
func (m *Model) Registry() *features.Registry { return m.registry }

// Set assigns the log-gamma of feature f. Unknown indices are ignored.
func (m *Model) Set(f features.Index, logGamma float64) {
	if m.registry.Valid(f) {
		m.logGamma[f] = logGamma
	}
}

// LogGamma returns the log-gamma of feature f, or 0 for unknown indices.
func (m *Model) LogGamma(f features.Index) float64 {
	if !m.registry.Valid(f) {
		return 0
	}
	return m.logGamma[f]
}

// Gamma returns exp(LogGamma(f)).
func (m *Model) Gamma(f features.Index) float64 {
	return math.Exp(m.LogGamma(f))
}

// Iterations returns the number of training passes that produced the model.
func (m *Model) Iterations() int { return m.iterations }

// SetIterations records the number of training passes.
func (m *Model) SetIterations(n int) { m.iterations = n }

// Score returns the log-strength of a team: the sum of its features'
// log-gammas, counting repeated features once per occurrence. Scores compare
// teams within one match; they are not probabilities.
func (m *Model) Score(team []features.Index) float64 {
	score := 0.0
	for _, f := range team {
		score += m.LogGamma(f)
	}
	return score
}

// Best returns the index of the highest scoring team and its score.
// Ties go to the earliest team; it returns -1 for no teams.
func (m *Model) Best(teams [][]features.Index) (int, float64) {
	best, bestScore := -1, math.Inf(-1)
	for i, team := range teams {
		if s := m.Score(team); best < 0 || s > bestScore {
			best, bestScore = i, s
		}
	}
	return best, bestScore
}

// Ranked is a feature with its weight.
type Ranked struct {
	Feature  features.Index `json:"feature"`
	Name     string         `json:"name"`
	LogGamma float64        `json:"log_gamma"`
}

// Top returns the n features with the largest absolute weight.
func (m *Model) Top(n int) []Ranked {
	ranked := make([]Ranked, 0, len(m.logGamma))
	for i, v := range m.logGamma {
		if v == 0 {
			continue
		}
		f := features.Index(i)
		ranked = append(ranked, Ranked{Feature: f, Name: m.registry.Name(f), LogGamma: v})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return math.Abs(ranked[i].LogGamma) > math.Abs(ranked[j].LogGamma)
	})
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// LogProbability returns log P(chosen wins) under the Luce model for
// team log-strengths scores: scores[chosen] - log Σ exp(scores[i]).
func LogProbability(scores []float64, chosen int) float64 {
	if chosen < 0 || chosen >= len(scores) {
		return math.Inf(-1)
	}
	peak := math.Inf(-1)
	for _, s := range scores {
		peak = math.Max(peak, s)
	}
	sum := 0.0
	for _, s := range scores {
		sum += math.Exp(s - peak)
	}
	return scores[chosen] - peak - math.Log(sum)
}
