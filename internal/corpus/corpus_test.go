package corpus

import (
	"errors"
	"testing"

	"github.com/ramonehamilton/gammatrain/internal/features"
	"github.com/ramonehamilton/gammatrain/internal/incidence"
)

func newRegistry(t *testing.T) (*features.Registry, *features.Group) {
	t.Helper()
	r := features.NewRegistry()
	var g *features.Group
	err := r.Define(func(r *features.Registry) error {
		var err error
		g, err = r.AddGroup("Move", 4)
		return err
	})
	if err != nil {
		t.Fatalf("Define failed: %v", err)
	}
	return r, g
}

func records(c *Corpus, f features.Index) []incidence.Record {
	var out []incidence.Record
	for r := range c.Codec().Records(int(f)) {
		out = append(out, r)
	}
	return out
}

func TestTeam_Terms(t *testing.T) {
	terms := Team{3, 1, 3, 3, 2}.Terms()
	want := []Term{{1, 1}, {2, 1}, {3, 3}}
	if len(terms) != len(want) {
		t.Fatalf("Expected %d terms, got %v", len(want), terms)
	}
	for i := range want {
		if terms[i] != want[i] {
			t.Errorf("Term %d = %+v, want %+v", i, terms[i], want[i])
		}
	}
}

func TestBuilder_PriorsComeFirst(t *testing.T) {
	r, g := newRegistry(t)
	if err := r.DeclarePrior(g.Index(0), g.Index(1), 3); err != nil {
		t.Fatalf("DeclarePrior failed: %v", err)
	}
	if err := r.DeclareUniformPrior(g, 0.5); err != nil {
		t.Fatalf("DeclareUniformPrior failed: %v", err)
	}

	b, err := NewBuilder(r)
	if err != nil {
		t.Fatalf("NewBuilder failed: %v", err)
	}
	if err := b.Add(Match{Teams: []Team{{g.Index(2)}, {g.Index(3)}}, Winner: 1}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	c := b.Build()

	if c.PriorMatches() != 9 {
		t.Fatalf("Expected 9 prior matches, got %d", c.PriorMatches())
	}
	if c.RealMatches() != 1 || c.Matches() != 10 {
		t.Fatalf("Expected 1 real of 10 matches, got %d of %d", c.RealMatches(), c.Matches())
	}

	if c.Winner(0) != 0 || c.Weight(0) != 3 || c.Teams(0) != 2 {
		t.Errorf("Prior match 0: winner=%d weight=%g teams=%d", c.Winner(0), c.Weight(0), c.Teams(0))
	}
	got := records(c, g.Index(1))
	if len(got) == 0 || got[0] != (incidence.Record{Match: 0, Team: 1, Degree: 1}) {
		t.Errorf("Expected loser record in team 1 of match 0, got %+v", got)
	}

	recorded := records(c, g.Index(3))
	last := recorded[len(recorded)-1]
	if last != (incidence.Record{Match: 9, Team: 1, Degree: 1}) {
		t.Errorf("Expected recorded match at index 9, got %+v", last)
	}
	if c.Weight(9) != 1 {
		t.Errorf("Expected default weight 1, got %g", c.Weight(9))
	}
}

func TestBuilder_UsedOnlyByRecordedMatches(t *testing.T) {
	r, g := newRegistry(t)
	if err := r.DeclareUniformPrior(g, 1); err != nil {
		t.Fatalf("DeclareUniformPrior failed: %v", err)
	}

	b, err := NewBuilder(r)
	if err != nil {
		t.Fatalf("NewBuilder failed: %v", err)
	}
	if err := b.Add(Match{Teams: []Team{{g.Index(0)}, {g.Index(1)}}}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := b.ForceUsable(g.Index(3)); err != nil {
		t.Fatalf("ForceUsable failed: %v", err)
	}
	c := b.Build()

	wantUsed := map[features.Index]bool{
		r.Anchor():  false,
		g.Index(0): true,
		g.Index(1): true,
		g.Index(2): false,
		g.Index(3): true,
	}
	for f, want := range wantUsed {
		if c.Used(f) != want {
			t.Errorf("Used(%s) = %v, want %v", r.Name(f), c.Used(f), want)
		}
	}
	if c.Occurrences(g.Index(2)) != 2 {
		t.Errorf("Expected prior-only feature to have 2 occurrences, got %d", c.Occurrences(g.Index(2)))
	}
}

func TestBuilder_DegreesAndCorrections(t *testing.T) {
	r, g := newRegistry(t)
	b, _ := NewBuilder(r)

	err := b.Add(Match{Teams: []Team{{g.Index(0), g.Index(0)}, {g.Index(1)}, {g.Index(0)}}, Winner: 2})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	err = b.AddTerms([][]Term{
		{{Feature: g.Index(0), Degree: -1}, {Feature: g.Index(2), Degree: 0}},
		{{Feature: g.Index(1), Degree: 1}},
	}, 0, 2.5)
	if err != nil {
		t.Fatalf("AddTerms failed: %v", err)
	}
	c := b.Build()

	want := []incidence.Record{{0, 0, 2}, {0, 2, 1}, {1, 0, -1}}
	got := records(c, g.Index(0))
	if len(got) != len(want) {
		t.Fatalf("Expected %d records, got %+v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Record %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	if c.Used(g.Index(2)) {
		t.Error("Zero-degree term should not mark a feature as used")
	}
	if c.Weight(1) != 2.5 {
		t.Errorf("Expected weight 2.5, got %g", c.Weight(1))
	}
}

func TestBuilder_RejectsInvalidMatches(t *testing.T) {
	r, g := newRegistry(t)
	b, _ := NewBuilder(r)

	tests := []struct {
		name  string
		match Match
	}{
		{"single team", Match{Teams: []Team{{g.Index(0)}}}},
		{"winner out of range", Match{Teams: []Team{{g.Index(0)}, {g.Index(1)}}, Winner: 2}},
		{"negative winner", Match{Teams: []Team{{g.Index(0)}, {g.Index(1)}}, Winner: -1}},
		{"negative weight", Match{Teams: []Team{{g.Index(0)}, {g.Index(1)}}, Weight: -1}},
		{"unknown feature", Match{Teams: []Team{{g.Index(0)}, {99}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := b.Add(tt.match); !errors.Is(err, ErrInvalidMatch) {
				t.Errorf("Expected ErrInvalidMatch, got %v", err)
			}
		})
	}

	if c := b.Build(); c.Matches() != 0 {
		t.Errorf("Rejected matches must not be recorded, got %d", c.Matches())
	}
	if err := b.Add(Match{Teams: []Team{{g.Index(0)}, {g.Index(1)}}}); err == nil {
		t.Error("Expected error adding to a built corpus")
	}
}
