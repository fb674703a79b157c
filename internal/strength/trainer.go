package strength

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/time/rate"

	"github.com/ramonehamilton/gammatrain/internal/corpus"
	"github.com/ramonehamilton/gammatrain/internal/features"
	"github.com/ramonehamilton/gammatrain/internal/metrics"
	"github.com/ramonehamilton/gammatrain/internal/weights"
)

// Step size schedule of the coordinate search.
const (
	initialStep = 1.0
	growFactor  = 1.2 // success in the same direction as last time
	turnFactor  = 0.9 // success after a failure or a direction change
	failFactor  = 0.6 // neither direction improved
)

// Direction is the outcome of the last coordinate search for a feature.
type Direction int

const (
	DirectionNone Direction = iota
	DirectionPositive
	DirectionNegative
)

// Config holds trainer settings.
type Config struct {
	// Iterations is the number of passes over all eligible features.
	Iterations int

	// LogInterval is the minimum time between progress log lines.
	// Zero disables progress logging.
	LogInterval time.Duration
}

// DefaultConfig returns the default trainer configuration.
func DefaultConfig() *Config {
	return &Config{
		Iterations:  100,
		LogInterval: 5 * time.Second,
	}
}

// PassStats describes one completed pass.
type PassStats struct {
	Pass          int
	LogLikelihood float64
	Accepted      int
	Rejected      int
	Duration      time.Duration
}

// Result is the outcome of a training run.
type Result struct {
	Weights       *weights.Model
	Initial       float64 // log-likelihood before the first pass
	LogLikelihood float64 // log-likelihood after the last pass
	History       []PassStats
	Eligible      int
}

type coordinate struct {
	step float64
	last Direction
}

// Trainer maximizes the corpus likelihood one feature at a time. For each
// feature it tries a multiplicative step up, then down, keeps whichever
// improves the likelihood and adapts that feature's step size.
//
// A Trainer owns its model state and is not safe for concurrent use.
type Trainer struct {
	config   *Config
	corpus   *corpus.Corpus
	model    *Model
	logGamma []float64
	coords   []coordinate
	eligible []features.Index
	metrics  *metrics.TrainingMetrics
	onPass   func(PassStats)
	passes   int
}

// NewTrainer prepares a trainer over the corpus. All weights start neutral.
func NewTrainer(c *corpus.Corpus, config *Config) *Trainer {
	if config == nil {
		config = DefaultConfig()
	}

	reg := c.Registry()
	t := &Trainer{
		config:   config,
		corpus:   c,
		model:    NewModel(c),
		logGamma: make([]float64, reg.Size()),
		coords:   make([]coordinate, reg.Size()),
		metrics:  metrics.NewTrainingMetrics(),
	}
	for f := range reg.All() {
		t.coords[f] = coordinate{step: initialStep, last: DirectionNone}
		if f == reg.Anchor() || !c.Used(f) || c.Occurrences(f) == 0 {
			continue
		}
		t.eligible = append(t.eligible, f)
	}
	return t
}

// SetMetrics replaces the trainer's metrics collector. A collector may be
// shared between trainers; it does not affect the recorded iteration count.
func (t *Trainer) SetMetrics(m *metrics.TrainingMetrics) {
	if m != nil {
		t.metrics = m
	}
}

// Metrics returns the trainer's metrics collector.
func (t *Trainer) Metrics() *metrics.TrainingMetrics { return t.metrics }

// OnPass registers a callback invoked after every pass.
func (t *Trainer) OnPass(fn func(PassStats)) { t.onPass = fn }

// Passes returns the number of passes this trainer has completed.
func (t *Trainer) Passes() int { return t.passes }

// Model returns the underlying strength model.
func (t *Trainer) Model() *Model { return t.model }

// Eligible returns the features the trainer optimizes, in order.
func (t *Trainer) Eligible() []features.Index {
	return append([]features.Index(nil), t.eligible...)
}

// Step returns the current step size and last direction of feature f.
func (t *Trainer) Step(f features.Index) (float64, Direction) {
	c := t.coords[f]
	return c.step, c.last
}

// LogGamma returns the current log-gamma of feature f.
func (t *Trainer) LogGamma(f features.Index) float64 { return t.logGamma[f] }

// Train runs the configured number of passes. Cancellation is checked
// between passes only.
func (t *Trainer) Train(ctx context.Context) (*Result, error) {
	result := &Result{
		Initial:  t.model.Recompute(),
		Eligible: len(t.eligible),
	}

	progress := rate.Sometimes{First: 1, Interval: t.config.LogInterval}

	for pass := 1; pass <= t.config.Iterations; pass++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("training aborted after %d passes: %w", pass-1, err)
		}

		stats := t.Pass()
		stats.Pass = pass
		result.History = append(result.History, stats)

		if t.config.LogInterval > 0 {
			progress.Do(func() {
				log.Printf("Training pass %d/%d: log-likelihood %.6f, %d accepted, %d rejected",
					pass, t.config.Iterations, stats.LogLikelihood, stats.Accepted, stats.Rejected)
			})
		}
		if t.onPass != nil {
			t.onPass(stats)
		}
	}

	result.LogLikelihood = t.model.Recompute()
	result.Weights = t.Weights()
	return result, nil
}

// Pass optimizes every eligible feature once, in registry order.
func (t *Trainer) Pass() PassStats {
	start := time.Now()
	visited := t.model.Visited()
	t.model.Recompute()

	var stats PassStats
	for _, f := range t.eligible {
		if t.optimize(f) {
			stats.Accepted++
		} else {
			stats.Rejected++
		}
	}

	stats.LogLikelihood = t.model.LogLikelihood()
	stats.Duration = time.Since(start)
	t.passes++

	t.metrics.Accepted.Add(uint64(stats.Accepted))
	t.metrics.Rejected.Add(uint64(stats.Rejected))
	t.metrics.Updates.Add(t.model.Visited() - visited)
	t.metrics.RecordPass(stats.Duration)
	return stats
}

// optimize runs the coordinate search for one feature and reports whether
// its weight changed.
func (t *Trainer) optimize(f features.Index) bool {
	c := &t.coords[f]
	base := t.model.LogLikelihood()

	t.model.ApplyDelta(f, c.step)
	t.metrics.Evaluations.Add(1)
	if t.model.LogLikelihood() > base {
		t.logGamma[f] += c.step
		c.accept(DirectionPositive)
		return true
	}

	t.model.ApplyDelta(f, -2*c.step)
	t.metrics.Evaluations.Add(1)
	if t.model.LogLikelihood() > base {
		t.logGamma[f] -= c.step
		c.accept(DirectionNegative)
		return true
	}

	t.model.ApplyDelta(f, c.step)
	c.step *= failFactor
	c.last = DirectionNone
	return false
}

func (c *coordinate) accept(dir Direction) {
	if c.last == dir {
		c.step *= growFactor
	} else {
		c.step *= turnFactor
	}
	c.last = dir
}

// Weights freezes the current log-gammas into a weights model.
func (t *Trainer) Weights() *weights.Model {
	w := weights.New(t.corpus.Registry())
	for f, v := range t.logGamma {
		w.Set(features.Index(f), v)
	}
	w.SetIterations(t.passes)
	return w
}
