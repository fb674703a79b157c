// Package strength implements the multiplicative comparison model: team
// strengths are products of feature gammas and a match is won with
// probability proportional to strength (Luce / generalized Bradley–Terry).
package strength

import (
	"math"

	"github.com/ramonehamilton/gammatrain/internal/corpus"
	"github.com/ramonehamilton/gammatrain/internal/features"
)

// Model holds the log-strength and strength of every team of every match and
// keeps the corpus log-likelihood up to date as feature weights change.
//
// Team slots are stored flat: team t of match m lives at offsets[m]+t.
type Model struct {
	corpus      *corpus.Corpus
	offsets     []int
	logStrength []float64
	strength    []float64
	terms       []float64 // per-match likelihood contribution
	total       float64

	visited uint64 // incidence records touched by ApplyDelta
}

// NewModel creates a model in which every team has strength 1.
func NewModel(c *corpus.Corpus) *Model {
	n := c.Matches()
	offsets := make([]int, n+1)
	for m := 0; m < n; m++ {
		offsets[m+1] = offsets[m] + c.Teams(m)
	}
	slots := offsets[n]

	mdl := &Model{
		corpus:      c,
		offsets:     offsets,
		logStrength: make([]float64, slots),
		strength:    make([]float64, slots),
		terms:       make([]float64, n),
	}
	for i := range mdl.strength {
		mdl.strength[i] = 1
	}
	mdl.Recompute()
	return mdl
}

// matchTerm is weight * (log s_winner - log Σ_t s_t) for match m.
func (mdl *Model) matchTerm(m int) float64 {
	lo, hi := mdl.offsets[m], mdl.offsets[m+1]
	sum := 0.0
	for _, s := range mdl.strength[lo:hi] {
		sum += s
	}
	return mdl.corpus.Weight(m) * (mdl.logStrength[lo+mdl.corpus.Winner(m)] - math.Log(sum))
}

// Recompute rebuilds every match term and the running total from scratch.
func (mdl *Model) Recompute() float64 {
	mdl.total = 0
	for m := range mdl.terms {
		mdl.terms[m] = mdl.matchTerm(m)
		mdl.total += mdl.terms[m]
	}
	return mdl.total
}

// ApplyDelta adds delta to the log-gamma of feature f. Only the matches in
// which f occurs are touched.
func (mdl *Model) ApplyDelta(f features.Index, delta float64) {
	last := -1
	for r := range mdl.corpus.Codec().Records(int(f)) {
		slot := mdl.offsets[r.Match] + r.Team
		mdl.logStrength[slot] += delta * float64(r.Degree)
		mdl.strength[slot] = math.Exp(mdl.logStrength[slot])
		mdl.visited++

		// A feature can occur in several teams of one match; refresh the
		// match term once its last record in that match has been applied.
		if last >= 0 && last != r.Match {
			mdl.refresh(last)
		}
		last = r.Match
	}
	if last >= 0 {
		mdl.refresh(last)
	}
}

func (mdl *Model) refresh(m int) {
	t := mdl.matchTerm(m)
	mdl.total += t - mdl.terms[m]
	mdl.terms[m] = t
}

// LogLikelihood returns the weighted corpus log-likelihood.
func (mdl *Model) LogLikelihood() float64 { return mdl.total }

// TeamStrength returns the strength of team t in match m.
func (mdl *Model) TeamStrength(m, t int) float64 {
	return mdl.strength[mdl.offsets[m]+t]
}

// TeamLogStrength returns the log-strength of team t in match m.
func (mdl *Model) TeamLogStrength(m, t int) float64 {
	return mdl.logStrength[mdl.offsets[m]+t]
}

// Visited returns the number of incidence records applied so far.
func (mdl *Model) Visited() uint64 { return mdl.visited }
