// Package extract turns recorded decisions into comparison matches. Each
// record lists the candidate actions of one decision as feature names and
// says which candidate was chosen.
package extract

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log"

	"github.com/ramonehamilton/gammatrain/internal/corpus"
	"github.com/ramonehamilton/gammatrain/internal/features"
)

// Record is one decision as stored in a JSON lines file.
type Record struct {
	Candidates [][]string `json:"candidates"`
	Chosen     int        `json:"chosen"`
	Weight     float64    `json:"weight,omitempty"`
}

// Context is the per-record precomputation: every candidate's names
// resolved against the registry.
type Context struct {
	Record     *Record
	resolved   [][]features.Index
	Unresolved []string
}

// Candidates returns the number of candidate actions.
func (c *Context) Candidates() int { return len(c.resolved) }

// Full extracts every feature the record names.
type Full struct {
	registry *features.Registry
}

// NewFull creates the full featurizer.
func NewFull(reg *features.Registry) *Full {
	return &Full{registry: reg}
}

// ComputeContext resolves every name in rec once. Unknown names are kept as
// diagnostics and dropped from the candidates.
func (f *Full) ComputeContext(rec *Record) (*Context, error) {
	if rec == nil {
		return nil, errors.New("nil record")
	}
	ctx := &Context{Record: rec, resolved: make([][]features.Index, len(rec.Candidates))}
	for i, names := range rec.Candidates {
		team := make([]features.Index, 0, len(names))
		for _, name := range names {
			idx, ok := f.registry.Lookup(name)
			if !ok {
				ctx.Unresolved = append(ctx.Unresolved, name)
				continue
			}
			team = append(team, idx)
		}
		ctx.resolved[i] = team
	}
	return ctx, nil
}

// ExtractFeatures yields the features of candidate action.
func (f *Full) ExtractFeatures(ctx *Context, action int) iter.Seq[features.Index] {
	return func(yield func(features.Index) bool) {
		if action < 0 || action >= len(ctx.resolved) {
			return
		}
		for _, idx := range ctx.resolved[action] {
			if !yield(idx) {
				return
			}
		}
	}
}

// Lite behaves like Full but never emits features of the expensive groups.
type Lite struct {
	full    *Full
	dropped []*features.Group
}

// NewLite creates a lite featurizer that skips the named groups.
func NewLite(reg *features.Registry, expensive []string) (*Lite, error) {
	l := &Lite{full: NewFull(reg)}
	for _, name := range expensive {
		g, ok := reg.GroupByName(name)
		if !ok {
			return nil, fmt.Errorf("unknown expensive group %q", name)
		}
		if g.Contains(reg.Anchor()) {
			return nil, fmt.Errorf("cannot drop the %s group", name)
		}
		l.dropped = append(l.dropped, g)
	}
	return l, nil
}

// ComputeContext resolves names the same way Full does.
func (l *Lite) ComputeContext(rec *Record) (*Context, error) {
	return l.full.ComputeContext(rec)
}

// ExtractFeatures yields the cheap features of candidate action.
func (l *Lite) ExtractFeatures(ctx *Context, action int) iter.Seq[features.Index] {
	return func(yield func(features.Index) bool) {
		for idx := range l.full.ExtractFeatures(ctx, action) {
			if l.skip(idx) {
				continue
			}
			if !yield(idx) {
				return
			}
		}
	}
}

func (l *Lite) skip(idx features.Index) bool {
	for _, g := range l.dropped {
		if g.Contains(idx) {
			return true
		}
	}
	return false
}

// Featurizer is the featurizer shape used for decision records.
type Featurizer = features.Featurizer[*Record, *Context, int]

// New selects a featurizer by variant name.
func New(variant features.Variant, reg *features.Registry, expensive []string) (Featurizer, error) {
	switch variant {
	case features.VariantFull, "":
		return NewFull(reg), nil
	case features.VariantLite:
		return NewLite(reg, expensive)
	default:
		return nil, fmt.Errorf("unknown featurizer variant %q", variant)
	}
}

// ToMatch featurizes every candidate of rec into one match.
func ToMatch(fz Featurizer, rec *Record) (corpus.Match, *Context, error) {
	ctx, err := fz.ComputeContext(rec)
	if err != nil {
		return corpus.Match{}, nil, fmt.Errorf("failed to compute context: %w", err)
	}
	m := corpus.Match{
		Teams:  make([]corpus.Team, ctx.Candidates()),
		Winner: rec.Chosen,
		Weight: rec.Weight,
	}
	for i := range m.Teams {
		m.Teams[i] = features.Collect(fz.ExtractFeatures(ctx, i))
	}
	return m, ctx, nil
}

// Records decodes JSON lines from r. Blank lines are skipped; decoding stops
// at the first error, which is yielded with its line number.
func Records(r io.Reader) iter.Seq2[*Record, error] {
	return func(yield func(*Record, error) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var rec Record
			if err := json.Unmarshal(line, &rec); err != nil {
				yield(nil, fmt.Errorf("line %d: failed to decode record: %w", lineNo, err))
				return
			}
			if !yield(&rec, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(nil, fmt.Errorf("failed to read records: %w", err))
		}
	}
}

// ImportStats summarizes an Import call.
type ImportStats struct {
	Records    int
	Unresolved int
}

// Import reads every record from r into b. Unknown feature names are logged
// and skipped; an invalid match aborts the import.
func Import(r io.Reader, fz Featurizer, b *corpus.Builder) (ImportStats, error) {
	var stats ImportStats
	for rec, err := range Records(r) {
		if err != nil {
			return stats, err
		}
		m, ctx, err := ToMatch(fz, rec)
		if err != nil {
			return stats, err
		}
		if len(ctx.Unresolved) > 0 {
			log.Printf("Record %d: skipping unknown features %v", stats.Records+1, ctx.Unresolved)
			stats.Unresolved += len(ctx.Unresolved)
		}
		if err := b.Add(m); err != nil {
			return stats, fmt.Errorf("record %d: %w", stats.Records+1, err)
		}
		stats.Records++
	}
	return stats, nil
}
