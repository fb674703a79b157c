// Package metrics collects counters and latencies for training runs.
package metrics

import (
	"sync/atomic"
	"time"
)

// TrainingMetrics tracks optimizer activity. Counters are safe to read while
// a training run updates them.
type TrainingMetrics struct {
	PassLatency *Histogram

	Passes      atomic.Uint64
	Evaluations atomic.Uint64 // likelihood evaluations
	Accepted    atomic.Uint64 // accepted coordinate steps
	Rejected    atomic.Uint64 // coordinates left unchanged in a pass
	Updates     atomic.Uint64 // incidence records visited by updates

	startTime time.Time
}

// NewTrainingMetrics creates an empty collector.
func NewTrainingMetrics() *TrainingMetrics {
	return &TrainingMetrics{
		PassLatency: NewHistogram(4096),
		startTime:   time.Now(),
	}
}

// RecordPass records the duration of a completed pass.
func (m *TrainingMetrics) RecordPass(d time.Duration) {
	m.Passes.Add(1)
	m.PassLatency.Record(d)
}

// TrainingStats is a point-in-time copy of TrainingMetrics.
type TrainingStats struct {
	Passes      uint64       `json:"passes"`
	Evaluations uint64       `json:"evaluations"`
	Accepted    uint64       `json:"accepted"`
	Rejected    uint64       `json:"rejected"`
	Updates     uint64       `json:"updates"`
	AcceptRate  float64      `json:"accept_rate"` // percentage
	PassLatency LatencyStats `json:"pass_latency"`
	Elapsed     string       `json:"elapsed"`
}

// GetStats returns a snapshot of the collector.
func (m *TrainingMetrics) GetStats() *TrainingStats {
	accepted := m.Accepted.Load()
	rejected := m.Rejected.Load()

	rate := 0.0
	if accepted+rejected > 0 {
		rate = float64(accepted) / float64(accepted+rejected) * 100
	}

	return &TrainingStats{
		Passes:      m.Passes.Load(),
		Evaluations: m.Evaluations.Load(),
		Accepted:    accepted,
		Rejected:    rejected,
		Updates:     m.Updates.Load(),
		AcceptRate:  rate,
		PassLatency: m.PassLatency.Snapshot(),
		Elapsed:     time.Since(m.startTime).Round(time.Millisecond).String(),
	}
}
