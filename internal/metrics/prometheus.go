package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ServingCollectors are the Prometheus metrics of the scoring server.
type ServingCollectors struct {
	ScoreRequests *prometheus.CounterVec
	ScoreDuration prometheus.Histogram
	TeamsScored   prometheus.Counter
	UnknownNames  prometheus.Counter
	ModelReloads  prometheus.Counter
	ModelFeatures prometheus.Gauge
	ModelNonZero  prometheus.Gauge
}

// NewServingCollectors creates the serving metrics and registers them with reg.
func NewServingCollectors(reg prometheus.Registerer) *ServingCollectors {
	factory := promauto.With(reg)
	return &ServingCollectors{
		ScoreRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gammatrain_score_requests_total",
				Help: "Total number of score requests by outcome",
			},
			[]string{"status"}, // "ok", "bad_request"
		),
		ScoreDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gammatrain_score_duration_seconds",
				Help:    "Duration of score requests in seconds",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
			},
		),
		TeamsScored: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "gammatrain_teams_scored_total",
				Help: "Total number of teams scored",
			},
		),
		UnknownNames: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "gammatrain_unknown_feature_names_total",
				Help: "Feature names in score requests the registry does not know",
			},
		),
		ModelReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "gammatrain_model_reloads_total",
				Help: "Number of times the weights file was reloaded",
			},
		),
		ModelFeatures: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "gammatrain_model_features",
				Help: "Number of features in the served model",
			},
		),
		ModelNonZero: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "gammatrain_model_nonzero_weights",
				Help: "Number of features with a non-neutral weight in the served model",
			},
		),
	}
}

// RegisterTraining exposes a trainer's counters through reg.
func RegisterTraining(reg prometheus.Registerer, m *TrainingMetrics) error {
	funcs := []prometheus.Collector{
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "gammatrain_training_passes_total",
			Help: "Completed training passes",
		}, func() float64 { return float64(m.Passes.Load()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "gammatrain_training_evaluations_total",
			Help: "Likelihood evaluations performed by the trainer",
		}, func() float64 { return float64(m.Evaluations.Load()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "gammatrain_training_accepted_total",
			Help: "Coordinate steps that improved the likelihood",
		}, func() float64 { return float64(m.Accepted.Load()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "gammatrain_training_rejected_total",
			Help: "Coordinates left unchanged by a pass",
		}, func() float64 { return float64(m.Rejected.Load()) }),
	}
	for _, c := range funcs {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
