package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks HTTP request latency.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "vimarsh",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// GuidanceRequestsTotal counts guidance requests by personality and outcome.
var GuidanceRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "vimarsh",
		Subsystem: "guidance",
		Name:      "requests_total",
		Help:      "Total guidance requests by personality and quality.",
	},
	[]string{"personality", "quality"},
)

// LLMAttemptsTotal counts LLM dispatch attempts by personality and result.
var LLMAttemptsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "vimarsh",
		Subsystem: "llm",
		Name:      "attempts_total",
		Help:      "Total LLM dispatch attempts by personality and result.",
	},
	[]string{"personality", "result"},
)

// LLMAttemptDuration tracks how long each LLM attempt takes.
var LLMAttemptDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "vimarsh",
		Subsystem: "llm",
		Name:      "attempt_duration_seconds",
		Help:      "LLM attempt duration in seconds.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
	},
	[]string{"personality"},
)

// BudgetAlertsTotal counts budget alerts by level and period.
var BudgetAlertsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "vimarsh",
		Subsystem: "budget",
		Name:      "alerts_total",
		Help:      "Total budget alerts by level and period.",
	},
	[]string{"level", "period"},
)

// JWKSFetchesTotal counts JWKS cache misses that triggered a network fetch.
var JWKSFetchesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "vimarsh",
		Subsystem: "auth",
		Name:      "jwks_fetches_total",
		Help:      "Total JWKS fetches by tenant.",
	},
	[]string{"tenant"},
)

// TransactionOutcomesTotal counts transaction outcomes by state.
var TransactionOutcomesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "vimarsh",
		Subsystem: "txn",
		Name:      "outcomes_total",
		Help:      "Total transaction outcomes by state.",
	},
	[]string{"state"},
)

// SlackNotificationsTotal counts outbound Slack notifications by type.
var SlackNotificationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "vimarsh",
		Subsystem: "slack",
		Name:      "notifications_total",
		Help:      "Total number of Slack notifications sent by type.",
	},
	[]string{"type"},
)

// All returns every service-specific collector for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		GuidanceRequestsTotal,
		LLMAttemptsTotal,
		LLMAttemptDuration,
		BudgetAlertsTotal,
		JWKSFetchesTotal,
		TransactionOutcomesTotal,
		SlackNotificationsTotal,
	}
}

// NewMetricsRegistry creates a Prometheus registry with Go/process collectors,
// the shared HTTPRequestDuration metric, and any additional collectors.
func NewMetricsRegistry(extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequestDuration,
	)
	for _, c := range extra {
		reg.MustRegister(c)
	}
	return reg
}
