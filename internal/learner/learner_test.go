package learner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramonehamilton/gammatrain/internal/baseline"
	"github.com/ramonehamilton/gammatrain/internal/corpus"
	"github.com/ramonehamilton/gammatrain/internal/features"
	"github.com/ramonehamilton/gammatrain/internal/metrics"
	"github.com/ramonehamilton/gammatrain/internal/strength"
)

func TestNew(t *testing.T) {
	l, err := New(KindStrength, nil)
	require.NoError(t, err)
	assert.IsType(t, &StrengthLearner{}, l)

	l, err = New(KindBaseline, nil)
	require.NoError(t, err)
	assert.IsType(t, &baseline.Counter{}, l)

	_, err = New("newton", nil)
	assert.Error(t, err)
}

func TestLearners_AgreeOnOrdering(t *testing.T) {
	reg := features.NewRegistry()
	var g *features.Group
	require.NoError(t, reg.Define(func(r *features.Registry) error {
		var err error
		g, err = r.AddGroup("Move", 2)
		return err
	}))
	require.NoError(t, reg.DeclareUniformPrior(g, 1))
	strong, weak := g.Index(0), g.Index(1)

	b, err := corpus.NewBuilder(reg)
	require.NoError(t, err)
	for i := 0; i < 30; i++ {
		winner := 0
		if i%3 == 0 {
			winner = 1
		}
		require.NoError(t, b.Add(corpus.Match{Teams: []corpus.Team{{strong}, {weak}}, Winner: winner}))
	}
	c := b.Build()

	passes := 0
	sl := &StrengthLearner{
		Config: &strength.Config{Iterations: 20},
		OnPass: func(strength.PassStats) { passes++ },
	}

	for _, l := range []Learner{sl, baseline.New()} {
		m, err := l.Train(context.Background(), c)
		require.NoError(t, err)
		assert.Greater(t, m.LogGamma(strong), m.LogGamma(weak))
	}
	assert.Equal(t, 20, passes)
	require.NotNil(t, sl.LastResult())
	assert.Len(t, sl.LastResult().History, 20)
}

func TestStrengthLearner_SharedMetrics(t *testing.T) {
	reg := features.NewRegistry()
	var g *features.Group
	require.NoError(t, reg.Define(func(r *features.Registry) error {
		var err error
		g, err = r.AddGroup("Move", 2)
		return err
	}))
	b, err := corpus.NewBuilder(reg)
	require.NoError(t, err)
	require.NoError(t, b.Add(corpus.Match{Teams: []corpus.Team{{g.Index(0)}, {g.Index(1)}}}))
	c := b.Build()

	tm := metrics.NewTrainingMetrics()
	sl := &StrengthLearner{Config: &strength.Config{Iterations: 5}, Metrics: tm}
	for range 2 {
		m, err := sl.Train(context.Background(), c)
		require.NoError(t, err)
		assert.Equal(t, 5, m.Iterations())
	}
	assert.Equal(t, uint64(10), tm.Passes.Load())
}
