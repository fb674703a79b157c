package features

import (
	"fmt"
	"iter"
)

// Featurizer turns a candidate action into the feature indices of its team.
//
// ComputeContext does the per-state precomputation once; ExtractFeatures is
// then called for every candidate action of that state. The returned sequence
// is finite and may be ranged over more than once. Repeated indices mean a
// higher degree.
type Featurizer[S, C, A any] interface {
	ComputeContext(state S) (C, error)
	ExtractFeatures(ctx C, action A) iter.Seq[Index]
}

// Variant selects a featurizer implementation.
type Variant string

const (
	// VariantFull extracts every feature the registry defines.
	VariantFull Variant = "full"
	// VariantLite skips groups that are expensive to compute.
	VariantLite Variant = "lite"
)

// ParseVariant validates a configured variant name. The empty string means full.
func ParseVariant(s string) (Variant, error) {
	switch Variant(s) {
	case "", VariantFull:
		return VariantFull, nil
	case VariantLite:
		return VariantLite, nil
	default:
		return "", fmt.Errorf("unknown featurizer variant %q", s)
	}
}

// Collect drains a feature sequence into a slice.
func Collect(seq iter.Seq[Index]) []Index {
	var out []Index
	for i := range seq {
		out = append(out, i)
	}
	return out
}
