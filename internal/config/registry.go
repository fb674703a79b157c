package config

import (
	"fmt"

	"github.com/ramonehamilton/gammatrain/internal/features"
)

// BuildRegistry defines a registry from the configured groups and declares
// the configured priors on it.
func (rc *RegistryConfig) BuildRegistry() (*features.Registry, error) {
	reg := features.NewRegistry()
	groups := make([]*features.Group, len(rc.Groups))
	err := reg.Define(func(r *features.Registry) error {
		for i, gc := range rc.Groups {
			g, err := r.AddGroup(gc.Name, gc.Dims...)
			if err != nil {
				return err
			}
			groups[i] = g
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i, gc := range rc.Groups {
		weight := rc.UniformPriorWeight
		if gc.PriorWeight > 0 {
			weight = gc.PriorWeight
		}
		if weight <= 0 {
			continue
		}
		if err := reg.DeclareUniformPrior(groups[i], weight); err != nil {
			return nil, fmt.Errorf("uniform prior for %s: %w", gc.Name, err)
		}
	}

	for _, pc := range rc.Priors {
		winner, ok := reg.Lookup(pc.Winner)
		if !ok {
			return nil, fmt.Errorf("prior winner %q: %w", pc.Winner, features.ErrUnknownFeature)
		}
		loser, ok := reg.Lookup(pc.Loser)
		if !ok {
			return nil, fmt.Errorf("prior loser %q: %w", pc.Loser, features.ErrUnknownFeature)
		}
		weight := pc.Weight
		if weight == 0 {
			weight = 1
		}
		if err := reg.DeclarePrior(winner, loser, weight); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// ForceUsableIndices resolves the force_usable names against reg.
func (rc *RegistryConfig) ForceUsableIndices(reg *features.Registry) ([]features.Index, error) {
	out := make([]features.Index, 0, len(rc.ForceUsable))
	for _, name := range rc.ForceUsable {
		idx, ok := reg.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("force usable %q: %w", name, features.ErrUnknownFeature)
		}
		out = append(out, idx)
	}
	return out, nil
}
