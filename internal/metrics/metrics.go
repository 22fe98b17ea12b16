// Package metrics exposes Prometheus instrumentation for the trust engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the trust engine
type Metrics struct {
	// Score metrics
	TrustScore    *prometheus.GaugeVec
	ScoreEvents   *prometheus.CounterVec
	DecaySweeps   prometheus.Counter
	ScoreOpsDelay *prometheus.HistogramVec

	// Seal metrics
	SealsIssued     *prometheus.CounterVec
	SealValidations *prometheus.CounterVec

	// Lifecycle metrics
	AgentStatus       *prometheus.GaugeVec
	Transitions       *prometheus.CounterVec
	ActiveQuarantines prometheus.Gauge

	// Graph metrics
	GraphEdges     *prometheus.CounterVec
	PathSearches   *prometheus.CounterVec
	PathSearchTime prometheus.Histogram

	// Verification metrics
	SignatureChecks *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics
func New() *Metrics {
	return &Metrics{
		TrustScore: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "trustcore_agent_trust_score",
				Help: "Current overall trust score for each agent",
			},
			[]string{"agent_id"},
		),

		ScoreEvents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trustcore_score_events_total",
				Help: "Total trust events recorded, by event kind",
			},
			[]string{"agent_id", "kind"}, // kind: task_completion, peer_endorsement, user_feedback, crypto_verification
		),

		DecaySweeps: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "trustcore_decay_sweeps_total",
				Help: "Total number of background decay sweeps completed",
			},
		),

		ScoreOpsDelay: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trustcore_score_op_duration_seconds",
				Help:    "Duration of score engine operations",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
			},
			[]string{"op"}, // op: record_event, current, sweep
		),

		SealsIssued: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trustcore_seals_issued_total",
				Help: "Total trust seals issued, by tier",
			},
			[]string{"tier"},
		),

		SealValidations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trustcore_seal_validations_total",
				Help: "Total seal validations performed",
			},
			[]string{"result"}, // result: valid, invalid_signature, expired, revoked, unknown_agent
		),

		AgentStatus: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "trustcore_agent_status",
				Help: "Agent lifecycle status (0=active, 1=quarantined, 2=revoked)",
			},
			[]string{"agent_id"},
		),

		Transitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trustcore_lifecycle_transitions_total",
				Help: "Total lifecycle state transitions",
			},
			[]string{"from", "to", "reason"},
		),

		ActiveQuarantines: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "trustcore_active_quarantines",
				Help: "Number of agents currently quarantined",
			},
		),

		GraphEdges: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trustcore_graph_edges_total",
				Help: "Total relationship edges added to the trust graph",
			},
			[]string{"type"}, // type: ENDORSEMENT, COLLABORATION, SUPERVISION, DISPUTE
		),

		PathSearches: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trustcore_path_searches_total",
				Help: "Total trust path searches",
			},
			[]string{"result"}, // result: found, not_found
		),

		PathSearchTime: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "trustcore_path_search_duration_seconds",
				Help:    "Duration of trust path BFS searches",
				Buckets: prometheus.DefBuckets,
			},
		),

		SignatureChecks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trustcore_signature_checks_total",
				Help: "Total Ed25519 signature verifications",
			},
			[]string{"result"}, // result: valid, invalid
		),
	}
}

// RecordScoreEvent records a trust event and the resulting overall score
func (m *Metrics) RecordScoreEvent(agentID, kind string, overall float64) {
	m.ScoreEvents.WithLabelValues(agentID, kind).Inc()
	m.TrustScore.WithLabelValues(agentID).Set(overall)
}

// RecordSealIssued records a seal issuance by tier
func (m *Metrics) RecordSealIssued(tier string) {
	m.SealsIssued.WithLabelValues(tier).Inc()
}

// RecordSealValidation records a seal validation outcome
func (m *Metrics) RecordSealValidation(result string) {
	m.SealValidations.WithLabelValues(result).Inc()
}

// RecordTransition records a lifecycle state transition
func (m *Metrics) RecordTransition(agentID, from, to, reason string) {
	m.Transitions.WithLabelValues(from, to, reason).Inc()

	if from == "QUARANTINED" {
		m.ActiveQuarantines.Dec()
	}
	if to == "QUARANTINED" {
		m.ActiveQuarantines.Inc()
	}

	statusValue := 0.0
	switch to {
	case "QUARANTINED":
		statusValue = 1.0
	case "REVOKED":
		statusValue = 2.0
	}
	m.AgentStatus.WithLabelValues(agentID).Set(statusValue)
}

// ObserveScoreOp records the duration of one score engine operation
func (m *Metrics) ObserveScoreOp(op string, seconds float64) {
	m.ScoreOpsDelay.WithLabelValues(op).Observe(seconds)
}

// RecordPathSearch records a BFS search outcome and duration
func (m *Metrics) RecordPathSearch(found bool, seconds float64) {
	result := "not_found"
	if found {
		result = "found"
	}
	m.PathSearches.WithLabelValues(result).Inc()
	m.PathSearchTime.Observe(seconds)
}

// RecordSignatureCheck records a signature verification result
func (m *Metrics) RecordSignatureCheck(valid bool) {
	result := "invalid"
	if valid {
		result = "valid"
	}
	m.SignatureChecks.WithLabelValues(result).Inc()
}
