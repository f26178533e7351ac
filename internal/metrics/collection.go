package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type prometheusMetrics struct {
	plies              *prometheus.CounterVec
	illegalResponses   *prometheus.CounterVec
	protocolViolations *prometheus.CounterVec
	agentLatency       *prometheus.HistogramVec
	evaluatorLatency   *prometheus.HistogramVec
	matchesFinished    *prometheus.CounterVec
	flushFailures      *prometheus.CounterVec
}

func setupPrometheusMetrics(registry *prometheus.Registry) prometheusMetrics {
	factory := promauto.With(registry)

	return prometheusMetrics{
		plies: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chessbench_plies_applied_total",
			Help: "Moves applied to the board, by role",
		}, []string{"role"}),
		illegalResponses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chessbench_illegal_responses_total",
			Help: "Peer answers that did not select a legal move",
		}, []string{"role"}),
		protocolViolations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chessbench_protocol_violations_total",
			Help: "Peer replies that broke the conversation contract",
		}, []string{"role"}),
		agentLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chessbench_agent_latency_ms",
			Help:    "Round trip time of move requests in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 14),
		}, []string{"role"}),
		evaluatorLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chessbench_evaluator_latency_ms",
			Help:    "Position evaluation time in milliseconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		}, []string{"backend", "failed"}),
		matchesFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chessbench_matches_finished_total",
			Help: "Completed matches by result",
		}, []string{"result"}),
		flushFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chessbench_artifact_flush_failures_total",
			Help: "Artifact writes that failed during a match",
		}, []string{"artifact"}),
	}
}

func (m prometheusMetrics) AddPly(role string) {
	m.plies.With(prometheus.Labels{"role": role}).Inc()
}

func (m prometheusMetrics) AddIllegalResponse(role string) {
	m.illegalResponses.With(prometheus.Labels{"role": role}).Inc()
}

func (m prometheusMetrics) AddProtocolViolation(role string) {
	m.protocolViolations.With(prometheus.Labels{"role": role}).Inc()
}

func (m prometheusMetrics) AddAgentLatency(role string, elapsed time.Duration) {
	m.agentLatency.With(prometheus.Labels{"role": role}).Observe(float64(elapsed.Milliseconds()))
}

func (m prometheusMetrics) AddEvaluatorLatency(backend string, elapsed time.Duration, failed bool) {
	m.evaluatorLatency.With(prometheus.Labels{"backend": backend, "failed": strconv.FormatBool(failed)}).Observe(float64(elapsed.Milliseconds()))
}

func (m prometheusMetrics) AddMatchFinished(result string) {
	m.matchesFinished.With(prometheus.Labels{"result": result}).Inc()
}

func (m prometheusMetrics) AddArtifactFlushFailure(artifact string) {
	m.flushFailures.With(prometheus.Labels{"artifact": artifact}).Inc()
}
