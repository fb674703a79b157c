// Package features provides the feature registry: a flat namespace of feature
// indices organized into named multi-dimensional groups, plus the prior
// comparisons used to regularize training.
package features

import (
	"errors"
	"fmt"
	"iter"
	"strconv"
	"strings"
)

// Index is a flat feature index.
type Index int32

// AnchorName is the name of the built-in gauge feature.
const AnchorName = "Prior"

var (
	// ErrFrozen is returned when the registry layout is modified after definition.
	ErrFrozen = errors.New("feature registry is frozen")

	// ErrUnknownFeature is returned for indices outside the registry.
	ErrUnknownFeature = errors.New("unknown feature")
)

// Group is a named multi-dimensional block of features sharing a coordinate scheme.
type Group struct {
	name    string
	dims    []int
	strides []int
	base    Index
	size    int
}

// Name returns the group name.
func (g *Group) Name() string { return g.name }

// Dims returns a copy of the group's dimension sizes.
func (g *Group) Dims() []int { return append([]int(nil), g.dims...) }

// Base returns the first flat index of the group.
func (g *Group) Base() Index { return g.base }

// Size returns the number of features in the group.
func (g *Group) Size() int { return g.size }

// Contains reports whether i belongs to the group.
func (g *Group) Contains(i Index) bool {
	return i >= g.base && int(i-g.base) < g.size
}

// Index maps coordinates to a flat index in row-major order.
// It panics if the number of coordinates or any coordinate is out of range.
func (g *Group) Index(coords ...int) Index {
	if len(coords) != len(g.dims) {
		panic(fmt.Sprintf("features: group %s expects %d coordinates, got %d", g.name, len(g.dims), len(coords)))
	}
	offset := 0
	for i, c := range coords {
		if c < 0 || c >= g.dims[i] {
			panic(fmt.Sprintf("features: group %s coordinate %d out of range: %d not in [0,%d)", g.name, i, c, g.dims[i]))
		}
		offset += c * g.strides[i]
	}
	return g.base + Index(offset)
}

// Coords is the inverse of Index.
func (g *Group) Coords(i Index) []int {
	if !g.Contains(i) {
		panic(fmt.Sprintf("features: index %d is not in group %s", i, g.name))
	}
	offset := int(i - g.base)
	coords := make([]int, len(g.dims))
	for d, stride := range g.strides {
		coords[d] = offset / stride
		offset %= stride
	}
	return coords
}

// Indices iterates the group's flat indices in increasing order.
func (g *Group) Indices() iter.Seq[Index] {
	return func(yield func(Index) bool) {
		for i := 0; i < g.size; i++ {
			if !yield(g.base + Index(i)) {
				return
			}
		}
	}
}

// featureName renders the persistent name of the feature at offset.
func (g *Group) featureName(offset int) string {
	if g.size == 1 {
		return g.name
	}
	var b strings.Builder
	b.WriteString(g.name)
	b.WriteByte('[')
	for d, stride := range g.strides {
		if d > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(offset / stride))
		offset %= stride
	}
	b.WriteByte(']')
	return b.String()
}

// PriorMatch is a declared synthetic comparison: Winner beat Loser with the given weight.
type PriorMatch struct {
	Winner Index
	Loser  Index
	Weight float64
}

// Registry allocates feature indices. It is built once and read-only afterwards,
// except for prior declarations which do not affect the index layout.
type Registry struct {
	groups  []*Group
	byName  map[string]*Group
	owner   []*Group // flat index -> group
	names   map[string]Index
	priors  []PriorMatch
	anchor  Index
	defined bool
}

// NewRegistry creates a registry holding only the built-in anchor feature.
func NewRegistry() *Registry {
	r := &Registry{
		byName: make(map[string]*Group),
		names:  make(map[string]Index),
	}
	g, err := r.AddGroup(AnchorName, 1)
	if err != nil {
		panic(err)
	}
	r.anchor = g.base
	return r
}

// Define runs the registry definition once and freezes the layout.
// Subsequent calls are no-ops, so repeated initialization yields identical indices.
// If define fails, everything it added is discarded and the registry stays open.
func (r *Registry) Define(define func(r *Registry) error) error {
	if r.defined {
		return nil
	}
	if define != nil {
		groups, features, priors := len(r.groups), len(r.owner), len(r.priors)
		if err := define(r); err != nil {
			r.rollback(groups, features, priors)
			return fmt.Errorf("define feature registry: %w", err)
		}
	}
	r.defined = true
	return nil
}

// rollback discards groups, features and priors added after the given counts.
func (r *Registry) rollback(groups, features, priors int) {
	for _, g := range r.groups[groups:] {
		delete(r.byName, g.name)
		for offset := 0; offset < g.size; offset++ {
			delete(r.names, g.featureName(offset))
		}
	}
	clear(r.groups[groups:])
	r.groups = r.groups[:groups]
	clear(r.owner[features:])
	r.owner = r.owner[:features]
	r.priors = r.priors[:priors]
}

// Frozen reports whether the layout has been defined.
func (r *Registry) Frozen() bool { return r.defined }

// AddGroup allocates a contiguous block of ∏dims indices.
func (r *Registry) AddGroup(name string, dims ...int) (*Group, error) {
	if r.defined {
		return nil, fmt.Errorf("add group %q: %w", name, ErrFrozen)
	}
	if name == "" {
		return nil, fmt.Errorf("group name cannot be empty")
	}
	if strings.ContainsAny(name, "[]\t#\n") {
		return nil, fmt.Errorf("group name %q contains reserved characters", name)
	}
	if _, exists := r.byName[name]; exists {
		return nil, fmt.Errorf("group %q already exists", name)
	}
	if len(dims) == 0 {
		return nil, fmt.Errorf("group %q needs at least one dimension", name)
	}

	size := 1
	for _, d := range dims {
		if d <= 0 {
			return nil, fmt.Errorf("group %q has non-positive dimension %d", name, d)
		}
		size *= d
	}

	strides := make([]int, len(dims))
	stride := 1
	for i := len(dims) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= dims[i]
	}

	g := &Group{
		name:    name,
		dims:    append([]int(nil), dims...),
		strides: strides,
		base:    Index(len(r.owner)),
		size:    size,
	}
	r.groups = append(r.groups, g)
	r.byName[name] = g
	for offset := 0; offset < size; offset++ {
		r.owner = append(r.owner, g)
		r.names[g.featureName(offset)] = g.base + Index(offset)
	}
	return g, nil
}

// Size returns the total number of features.
func (r *Registry) Size() int { return len(r.owner) }

// Anchor returns the gauge feature, which training never updates.
func (r *Registry) Anchor() Index { return r.anchor }

// Groups returns the groups in allocation order.
func (r *Registry) Groups() []*Group { return append([]*Group(nil), r.groups...) }

// GroupByName returns the named group.
func (r *Registry) GroupByName(name string) (*Group, bool) {
	g, ok := r.byName[name]
	return g, ok
}

// Group returns the group owning i, or nil.
func (r *Registry) Group(i Index) *Group {
	if !r.Valid(i) {
		return nil
	}
	return r.owner[i]
}

// Valid reports whether i is an allocated index.
func (r *Registry) Valid(i Index) bool {
	return i >= 0 && int(i) < len(r.owner)
}

// Name returns the persistent name of feature i.
func (r *Registry) Name(i Index) string {
	g := r.Group(i)
	if g == nil {
		return fmt.Sprintf("#%d", i)
	}
	return g.featureName(int(i - g.base))
}

// Lookup resolves a feature name.
func (r *Registry) Lookup(name string) (Index, bool) {
	i, ok := r.names[name]
	return i, ok
}

// All iterates every feature index in registry order.
func (r *Registry) All() iter.Seq[Index] {
	return func(yield func(Index) bool) {
		for i := range r.owner {
			if !yield(Index(i)) {
				return
			}
		}
	}
}

// DeclarePrior records a synthetic comparison in which winner beat loser.
func (r *Registry) DeclarePrior(winner, loser Index, weight float64) error {
	if !r.Valid(winner) || !r.Valid(loser) {
		return fmt.Errorf("declare prior %d over %d: %w", winner, loser, ErrUnknownFeature)
	}
	if winner == loser {
		return fmt.Errorf("declare prior: feature %s cannot be compared with itself", r.Name(winner))
	}
	if !(weight > 0) {
		return fmt.Errorf("declare prior %s over %s: weight must be positive, got %g", r.Name(winner), r.Name(loser), weight)
	}
	r.priors = append(r.priors, PriorMatch{Winner: winner, Loser: loser, Weight: weight})
	return nil
}

// DeclareUniformPrior compares every member of g with the anchor, once in each
// direction, so the prior is centred on the anchor's strength.
func (r *Registry) DeclareUniformPrior(g *Group, weight float64) error {
	for i := range g.Indices() {
		if i == r.anchor {
			continue
		}
		if err := r.DeclarePrior(i, r.anchor, weight); err != nil {
			return err
		}
		if err := r.DeclarePrior(r.anchor, i, weight); err != nil {
			return err
		}
	}
	return nil
}

// Priors returns the declared prior matches in declaration order.
func (r *Registry) Priors() []PriorMatch {
	return append([]PriorMatch(nil), r.priors...)
}
