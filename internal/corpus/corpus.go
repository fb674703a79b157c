// Package corpus builds the training corpus: synthetic prior matches followed
// by the recorded matches, stored as per-feature incidence streams.
package corpus

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ramonehamilton/gammatrain/internal/features"
	"github.com/ramonehamilton/gammatrain/internal/incidence"
)

// ErrInvalidMatch is returned for structurally invalid matches.
var ErrInvalidMatch = errors.New("invalid match")

// Team is a multiset of features; a repeated index raises its degree.
type Team []features.Index

// Terms aggregates the team into signed degrees ordered by feature.
func (t Team) Terms() []Term {
	counts := make(map[features.Index]int, len(t))
	for _, f := range t {
		counts[f]++
	}
	terms := make([]Term, 0, len(counts))
	for f, d := range counts {
		terms = append(terms, Term{Feature: f, Degree: d})
	}
	sort.Slice(terms, func(i, j int) bool { return terms[i].Feature < terms[j].Feature })
	return terms
}

// Term is a feature with its signed degree within one team.
type Term struct {
	Feature features.Index
	Degree  int
}

// Match is a competition among teams with one declared winner.
type Match struct {
	Teams  []Team
	Winner int
	// Weight scales the match in the likelihood. Zero means 1.
	Weight float64
}

// Corpus is the immutable result of a Builder.
type Corpus struct {
	registry   *features.Registry
	codec      *incidence.Codec
	winners    []int
	weights    []float64
	used       []bool
	priorCount int
}

// Registry returns the registry the corpus was built against.
func (c *Corpus) Registry() *features.Registry { return c.registry }

// Codec returns the incidence streams.
func (c *Corpus) Codec() *incidence.Codec { return c.codec }

// Matches returns the total number of matches, priors included.
func (c *Corpus) Matches() int { return len(c.winners) }

// PriorMatches returns the number of synthetic prior matches, which occupy
// match indices [0, PriorMatches()).
func (c *Corpus) PriorMatches() int { return c.priorCount }

// RealMatches returns the number of recorded matches.
func (c *Corpus) RealMatches() int { return len(c.winners) - c.priorCount }

// Teams returns the number of teams in match m.
func (c *Corpus) Teams(m int) int { return c.codec.Teams(m) }

// Winner returns the winning team of match m.
func (c *Corpus) Winner(m int) int { return c.winners[m] }

// Weight returns the weight of match m.
func (c *Corpus) Weight(m int) float64 { return c.weights[m] }

// Used reports whether the feature occurs in a recorded match or was forced usable.
func (c *Corpus) Used(f features.Index) bool { return c.used[f] }

// Occurrences returns the number of incidence records of the feature, priors included.
func (c *Corpus) Occurrences(f features.Index) int { return c.codec.Occurrences(int(f)) }

// Builder assembles a Corpus. Prior matches are written on construction so
// recorded matches are numbered after them.
type Builder struct {
	registry *features.Registry
	corpus   *Corpus
	built    bool
}

// NewBuilder creates a builder and expands the registry's prior declarations
// into two-team matches: the declared winner alone against the declared loser.
func NewBuilder(reg *features.Registry) (*Builder, error) {
	c := &Corpus{
		registry: reg,
		codec:    incidence.NewCodec(reg.Size()),
		used:     make([]bool, reg.Size()),
	}
	b := &Builder{registry: reg, corpus: c}

	for _, p := range reg.Priors() {
		m := b.addMatch(2, 0, p.Weight)
		if err := c.codec.Write(int(p.Winner), m, 0, 1); err != nil {
			return nil, fmt.Errorf("write prior match %d: %w", m, err)
		}
		if err := c.codec.Write(int(p.Loser), m, 1, 1); err != nil {
			return nil, fmt.Errorf("write prior match %d: %w", m, err)
		}
	}
	c.priorCount = len(c.winners)
	return b, nil
}

func (b *Builder) addMatch(teams, winner int, weight float64) int {
	c := b.corpus
	m := c.codec.AddMatch(teams)
	c.winners = append(c.winners, winner)
	c.weights = append(c.weights, weight)
	return m
}

// Add appends a recorded match.
func (b *Builder) Add(m Match) error {
	teams := make([][]Term, len(m.Teams))
	for i, t := range m.Teams {
		teams[i] = t.Terms()
	}
	return b.AddTerms(teams, m.Winner, m.Weight)
}

// AddTerms appends a recorded match given as signed-degree terms per team.
// Each feature may appear at most once per team.
func (b *Builder) AddTerms(teams [][]Term, winner int, weight float64) error {
	if b.built {
		return fmt.Errorf("add match: corpus already built")
	}
	if weight == 0 {
		weight = 1
	}
	if len(teams) < 2 {
		return fmt.Errorf("%w: %d teams, need at least 2", ErrInvalidMatch, len(teams))
	}
	if winner < 0 || winner >= len(teams) {
		return fmt.Errorf("%w: winner %d out of range for %d teams", ErrInvalidMatch, winner, len(teams))
	}
	if !(weight > 0) {
		return fmt.Errorf("%w: weight must be positive, got %g", ErrInvalidMatch, weight)
	}
	for t, terms := range teams {
		seen := make(map[features.Index]bool, len(terms))
		for _, term := range terms {
			if !b.registry.Valid(term.Feature) {
				return fmt.Errorf("%w: team %d: feature %d: %w", ErrInvalidMatch, t, term.Feature, features.ErrUnknownFeature)
			}
			if seen[term.Feature] {
				return fmt.Errorf("%w: team %d lists feature %s twice", ErrInvalidMatch, t, b.registry.Name(term.Feature))
			}
			seen[term.Feature] = true
		}
	}

	c := b.corpus
	m := b.addMatch(len(teams), winner, weight)
	for t, terms := range teams {
		for _, term := range terms {
			if term.Degree == 0 {
				continue
			}
			if err := c.codec.Write(int(term.Feature), m, t, term.Degree); err != nil {
				return fmt.Errorf("write match %d: %w", m, err)
			}
			c.used[term.Feature] = true
		}
	}
	return nil
}

// ForceUsable makes a feature eligible for training even without recorded occurrences.
func (b *Builder) ForceUsable(f features.Index) error {
	if !b.registry.Valid(f) {
		return fmt.Errorf("force usable %d: %w", f, features.ErrUnknownFeature)
	}
	b.corpus.used[f] = true
	return nil
}

// Build finalizes the corpus. The builder cannot be used afterwards.
func (b *Builder) Build() *Corpus {
	b.built = true
	return b.corpus
}
