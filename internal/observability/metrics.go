package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sshexec",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sshexec",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	gateDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sshexec",
			Subsystem: "gate",
			Name:      "decisions_total",
			Help:      "Command gate decisions by deciding rule.",
		},
		[]string{"allowed", "rule"},
	)
	remoteExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sshexec",
			Subsystem: "remote",
			Name:      "executions_total",
			Help:      "Remote command executions by outcome.",
		},
		[]string{"outcome"},
	)
	remoteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sshexec",
			Subsystem: "remote",
			Name:      "execution_duration_seconds",
			Help:      "Remote command execution duration in seconds, connect included.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 300},
		},
		[]string{"outcome"},
	)
)

// Remote execution outcome labels.
const (
	OutcomeSuccess    = "success"
	OutcomeNonZero    = "nonzero_exit"
	OutcomeConnection = "connection_error"
	OutcomeTimeout    = "timeout"
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, gateDecisions, remoteExecutions, remoteDuration)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordGateDecision(allowed bool, rule string) {
	RegisterMetrics()
	if rule == "" {
		rule = "none"
	}
	gateDecisions.WithLabelValues(strconv.FormatBool(allowed), rule).Inc()
}

func RecordRemoteExecution(outcome string, duration time.Duration) {
	RegisterMetrics()
	remoteExecutions.WithLabelValues(outcome).Inc()
	remoteDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}
