package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// BenchMetrics records match-level counters and latencies.
type BenchMetrics interface {
	AddPly(role string)
	AddIllegalResponse(role string)
	AddProtocolViolation(role string)
	AddAgentLatency(role string, elapsed time.Duration)
	AddEvaluatorLatency(backend string, elapsed time.Duration, failed bool)
	AddMatchFinished(result string)
	AddArtifactFlushFailure(artifact string)
}

// NewMetrics registers the harness collectors on registry.
func NewMetrics(registry *prometheus.Registry) BenchMetrics {
	return setupPrometheusMetrics(registry)
}

// Handler exposes registry in the Prometheus text format.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}

// Noop discards everything.
type Noop struct{}

func (Noop) AddPly(string) {}
func (Noop) AddIllegalResponse(string) {}
func (Noop) AddProtocolViolation(string) {}
func (Noop) AddAgentLatency(string, time.Duration) {}
func (Noop) AddEvaluatorLatency(string, time.Duration, bool) {}
func (Noop) AddMatchFinished(string) {}
func (Noop) AddArtifactFlushFailure(string) {}
