// Package metrics exposes Prometheus counters for the guided career flow.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	ChatRepliesTotal     *prometheus.CounterVec
	SelectionsTotal      *prometheus.CounterVec
	AssessmentsTotal     *prometheus.CounterVec
	AssessmentScore      prometheus.Histogram
	GatewayErrorsTotal   *prometheus.CounterVec
	ActiveFlows          prometheus.Gauge
	TranscriptDropsTotal prometheus.Counter
}

// New creates and registers the collectors once per process.
//
// Metrics:
//   - skillworlds_chat_replies_total{state,outcome}
//   - skillworlds_selections_total{method}
//   - skillworlds_assessments_submitted_total{career}
//   - skillworlds_assessment_score
//   - skillworlds_gateway_errors_total{op}
//   - skillworlds_active_flows
//   - skillworlds_transcript_drops_total
func New() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			ChatRepliesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "skillworlds_chat_replies_total",
					Help: "Chatbot replies by conversation state and outcome",
				},
				[]string{"state", "outcome"},
			),
			SelectionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "skillworlds_selections_total",
					Help: "Completed career selections by method",
				},
				[]string{"method"},
			),
			AssessmentsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "skillworlds_assessments_submitted_total",
					Help: "Submitted assessments by career",
				},
				[]string{"career"},
			),
			AssessmentScore: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "skillworlds_assessment_score",
					Help:    "Distribution of assessment scores",
					Buckets: prometheus.LinearBuckets(0, 20, 6),
				},
			),
			GatewayErrorsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "skillworlds_gateway_errors_total",
					Help: "Persistence failures by operation",
				},
				[]string{"op"},
			),
			ActiveFlows: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "skillworlds_active_flows",
					Help: "Guided flows currently held in memory",
				},
			),
			TranscriptDropsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "skillworlds_transcript_drops_total",
					Help: "Transcript events dropped because the queue was full",
				},
			),
		}
	})
	return globalMetrics
}

// Handler serves the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ChatReply counts one chatbot reply.
func (m *Metrics) ChatReply(state, outcome string) {
	if m == nil {
		return
	}
	m.ChatRepliesTotal.WithLabelValues(state, outcome).Inc()
}

// Selection counts one persisted career selection.
func (m *Metrics) Selection(method string) {
	if m == nil {
		return
	}
	m.SelectionsTotal.WithLabelValues(method).Inc()
}

// Assessment counts one submitted assessment and observes its score.
func (m *Metrics) Assessment(careerID string, score float64) {
	if m == nil {
		return
	}
	m.AssessmentsTotal.WithLabelValues(careerID).Inc()
	m.AssessmentScore.Observe(score)
}

// GatewayError counts one failed persistence call.
func (m *Metrics) GatewayError(op string) {
	if m == nil {
		return
	}
	m.GatewayErrorsTotal.WithLabelValues(op).Inc()
}

// SetActiveFlows records the number of in-memory flows.
func (m *Metrics) SetActiveFlows(n int) {
	if m == nil {
		return
	}
	m.ActiveFlows.Set(float64(n))
}

// TranscriptDrop counts one dropped transcript event.
func (m *Metrics) TranscriptDrop() {
	if m == nil {
		return
	}
	m.TranscriptDropsTotal.Inc()
}
