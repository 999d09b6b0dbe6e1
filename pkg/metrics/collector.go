package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests labeled by route and status code",
		},
		[]string{"route", "status"},
	)
	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	dailyClaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daily_claims_total",
			Help: "Daily reward claim attempts split by result",
		},
		[]string{"result"},
	)
	rewardsPaidTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewards_paid_total",
			Help: "Sum of balance credited by source",
		},
		[]string{"source"},
	)
	boxOpensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "box_opens_total",
			Help: "Loot box open attempts split by kind and result",
		},
		[]string{"kind", "result"},
	)
	abuseReportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "abuse_reports_total",
			Help: "Suspicious activity reports split by type",
		},
		[]string{"type"},
	)
	socialOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "social_operations_total",
			Help: "Friend, clan and messaging operations split by result",
		},
		[]string{"operation", "result"},
	)
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors split by code and severity",
		},
		[]string{"code", "severity"},
	)
	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_sessions",
			Help: "Current number of live websocket sessions",
		},
	)
)

// RecordRequest increments HTTP counters and records duration.
func RecordRequest(route string, status int, duration time.Duration) {
	if route == "" {
		route = "unknown"
	}

	httpRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	httpRequestDurationSeconds.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordClaim tracks a daily claim attempt; amount is ignored unless result is "ok".
func RecordClaim(result string, amount float64) {
	dailyClaimsTotal.WithLabelValues(label(result)).Inc()
	if result == "ok" && amount > 0 {
		rewardsPaidTotal.WithLabelValues("daily").Add(amount)
	}
}

// RecordBoxOpen tracks a box open attempt; amount is ignored unless result is "ok".
func RecordBoxOpen(kind, result string, amount float64) {
	boxOpensTotal.WithLabelValues(label(kind), label(result)).Inc()
	if result == "ok" && amount > 0 {
		rewardsPaidTotal.WithLabelValues("box").Add(amount)
	}
}

func RecordAbuseReport(reportType string) {
	abuseReportsTotal.WithLabelValues(label(reportType)).Inc()
}

func RecordSocial(operation, result string) {
	socialOpsTotal.WithLabelValues(label(operation), label(result)).Inc()
}

// RecordError increments error counters with metadata.
func RecordError(code, severity string) {
	errorsTotal.WithLabelValues(label(code), label(severity)).Inc()
}

// SetActiveSessions updates the gauge for live websocket sessions.
func SetActiveSessions(count int) {
	activeSessions.Set(float64(count))
}

// Result maps an error to the "ok"/"error" label used by the counters above.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func label(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
