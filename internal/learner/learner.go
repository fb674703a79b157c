// Package learner selects between the available training algorithms behind
// one contract: train on a corpus, get a weights model back.
package learner

import (
	"context"
	"fmt"

	"github.com/ramonehamilton/gammatrain/internal/baseline"
	"github.com/ramonehamilton/gammatrain/internal/corpus"
	"github.com/ramonehamilton/gammatrain/internal/metrics"
	"github.com/ramonehamilton/gammatrain/internal/strength"
	"github.com/ramonehamilton/gammatrain/internal/weights"
)

// Kind names a learner.
type Kind string

const (
	// KindStrength is the coordinate-ascent comparison model.
	KindStrength Kind = "strength"
	// KindBaseline is the frequency-counting baseline.
	KindBaseline Kind = "baseline"
)

// Learner trains weights from a corpus.
type Learner interface {
	Train(ctx context.Context, c *corpus.Corpus) (*weights.Model, error)
}

// StrengthLearner adapts the coordinate-ascent trainer to Learner and keeps
// the last result for reporting.
type StrengthLearner struct {
	Config  *strength.Config
	OnPass  func(strength.PassStats)
	Metrics *metrics.TrainingMetrics // optional, shared across runs

	last *strength.Result
}

// Train runs a fresh trainer over c.
func (s *StrengthLearner) Train(ctx context.Context, c *corpus.Corpus) (*weights.Model, error) {
	tr := strength.NewTrainer(c, s.Config)
	if s.OnPass != nil {
		tr.OnPass(s.OnPass)
	}
	tr.SetMetrics(s.Metrics)
	res, err := tr.Train(ctx)
	if err != nil {
		return nil, err
	}
	s.last = res
	return res.Weights, nil
}

// LastResult returns the result of the most recent Train call, or nil.
func (s *StrengthLearner) LastResult() *strength.Result { return s.last }

// New returns the learner of the given kind.
func New(kind Kind, cfg *strength.Config) (Learner, error) {
	switch kind {
	case "", KindStrength:
		return &StrengthLearner{Config: cfg}, nil
	case KindBaseline:
		return baseline.New(), nil
	default:
		return nil, fmt.Errorf("unknown learner %q", kind)
	}
}
