// Package baseline is a cheap frequency-counting learner. It treats every
// feature independently and compares how often a feature's team won with how
// often it would have won by chance.
package baseline

import (
	"context"
	"math"

	"github.com/ramonehamilton/gammatrain/internal/corpus"
	"github.com/ramonehamilton/gammatrain/internal/features"
	"github.com/ramonehamilton/gammatrain/internal/weights"
)

// DefaultSmoothing is the pseudo-count added to observed and expected wins.
const DefaultSmoothing = 1.0

// Counter learns log-odds weights from win frequencies.
type Counter struct {
	Smoothing float64
}

// New creates a counter with the default smoothing.
func New() *Counter {
	return &Counter{Smoothing: DefaultSmoothing}
}

// Counts are the raw tallies of one feature.
type Counts struct {
	Wins     float64 // degree-weighted occurrences in winning teams
	Expected float64 // degree-weighted occurrences / number of teams
}

// Tally walks the recorded matches of c and returns per-feature counts.
// Prior matches are not counted.
func Tally(c *corpus.Corpus) []Counts {
	reg := c.Registry()
	counts := make([]Counts, reg.Size())
	codec := c.Codec()
	for f := range reg.All() {
		for r := range codec.Records(int(f)) {
			if r.Match < c.PriorMatches() {
				continue
			}
			w := c.Weight(r.Match) * float64(r.Degree)
			if r.Team == c.Winner(r.Match) {
				counts[f].Wins += w
			}
			counts[f].Expected += w / float64(c.Teams(r.Match))
		}
	}
	return counts
}

// Train returns log((wins+α)/(expected+α)) per used feature. Unused features
// and the anchor stay neutral.
func (b *Counter) Train(ctx context.Context, c *corpus.Corpus) (*weights.Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	alpha := b.Smoothing
	if alpha <= 0 {
		alpha = DefaultSmoothing
	}

	reg := c.Registry()
	m := weights.New(reg)
	for i, n := range Tally(c) {
		f := features.Index(i)
		if f == reg.Anchor() || !c.Used(f) {
			continue
		}
		wins := math.Max(n.Wins, 0)
		expected := math.Max(n.Expected, 0)
		m.Set(f, math.Log((wins+alpha)/(expected+alpha)))
	}
	m.SetIterations(1)
	return m, nil
}
