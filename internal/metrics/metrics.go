// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/adiadia/hitl-gateway/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	initOnce sync.Once

	checkpointsReceivedCounter *prometheus.CounterVec
	decisionsCounter           *prometheus.CounterVec
	workflowStatusCounter      *prometheus.CounterVec
	workflowsCleanedCounter    prometheus.Counter
	notifyFailuresCounter      *prometheus.CounterVec
	decisionLatencyMetric      prometheus.Histogram
	httpRequestDuration        *prometheus.HistogramVec
)

// Init registers metrics on the default Prometheus registry exactly once.
func Init() {
	initOnce.Do(func() {
		checkpointsReceivedCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hitl_checkpoints_received_total",
				Help: "Total number of checkpoint notifications accepted, by checkpoint.",
			},
			[]string{"checkpoint"},
		)

		decisionsCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hitl_decisions_total",
				Help: "Total number of reviewer decisions applied, by checkpoint and decision.",
			},
			[]string{"checkpoint", "decision"},
		)

		workflowStatusCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hitl_workflow_status_total",
				Help: "Total number of workflow status transitions by target status.",
			},
			[]string{"status"},
		)

		workflowsCleanedCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "hitl_workflows_cleaned_total",
				Help: "Total number of workflows removed by the retention sweep.",
			},
		)

		notifyFailuresCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hitl_notify_failures_total",
				Help: "Total number of failed status-change deliveries, by sink.",
			},
			[]string{"sink"},
		)

		decisionLatencyMetric = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "hitl_decision_latency_seconds",
				Help:    "Time from approval request creation to reviewer decision in seconds.",
				Buckets: prometheus.ExponentialBuckets(30, 2, 12),
			},
		)

		httpRequestDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hitl_http_request_duration_seconds",
				Help:    "HTTP request latency by route pattern, method and status code.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method", "code"},
		)

		prometheus.MustRegister(
			checkpointsReceivedCounter,
			decisionsCounter,
			workflowStatusCounter,
			workflowsCleanedCounter,
			notifyFailuresCounter,
			decisionLatencyMetric,
			httpRequestDuration,
		)

		// Ensure counter vectors are visible at /metrics before first increment.
		for _, cp := range domain.Checkpoints() {
			checkpointsReceivedCounter.WithLabelValues(string(cp))
			for _, d := range domain.DefaultOptions() {
				decisionsCounter.WithLabelValues(string(cp), string(d))
			}
		}
		for _, status := range domain.WorkflowStatuses() {
			workflowStatusCounter.WithLabelValues(string(status))
		}
	})
}

func IncCheckpointReceived(checkpoint domain.CheckpointType) {
	Init()
	checkpointsReceivedCounter.WithLabelValues(string(checkpoint)).Inc()
}

func IncDecision(checkpoint domain.CheckpointType, decision domain.Decision) {
	Init()
	decisionsCounter.WithLabelValues(string(checkpoint), string(decision)).Inc()
}

func IncWorkflowStatus(status domain.WorkflowStatus) {
	Init()
	workflowStatusCounter.WithLabelValues(string(status)).Inc()
}

func AddWorkflowsCleaned(n int) {
	Init()
	if n > 0 {
		workflowsCleanedCounter.Add(float64(n))
	}
}

func IncNotifyFailure(sink string) {
	Init()
	notifyFailuresCounter.WithLabelValues(sink).Inc()
}

func ObserveDecisionLatency(d time.Duration) {
	Init()
	if d < 0 {
		d = 0
	}
	decisionLatencyMetric.Observe(d.Seconds())
}

// ObserveHTTPRequest records one served request. route should be the matched
// pattern, not the raw path, to keep label cardinality bounded.
func ObserveHTTPRequest(route, method string, code int, d time.Duration) {
	Init()
	if route == "" {
		route = "unmatched"
	}
	httpRequestDuration.WithLabelValues(route, method, strconv.Itoa(code)).Observe(d.Seconds())
}
