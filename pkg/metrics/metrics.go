// Package metrics provides Prometheus instrumentation for the wallet ledger.
package metrics

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, route pattern, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "walletledger",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and route pattern.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "walletledger",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// TransfersTotal counts transfer outcomes.
	TransfersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "walletledger",
			Name:      "transfers_total",
			Help:      "Total transfer operations by outcome.",
		},
		[]string{"outcome"},
	)

	// DepositsTotal counts deposit webhook outcomes.
	DepositsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "walletledger",
			Name:      "deposits_total",
			Help:      "Total deposit notifications by outcome.",
		},
		[]string{"outcome"},
	)

	// WebhookReplaysTotal counts provider re-deliveries short-circuited as no-ops.
	WebhookReplaysTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "walletledger",
			Name:      "webhook_replays_total",
			Help:      "Total webhook deliveries resolved as idempotent replays.",
		},
	)

	// BalanceConflictRetriesTotal counts optimistic-lock retries on wallet rows.
	BalanceConflictRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "walletledger",
			Name:      "balance_conflict_retries_total",
			Help:      "Total retries caused by wallet version conflicts.",
		},
	)

	// APIKeysIssuedTotal counts issued API keys (including rollovers).
	APIKeysIssuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "walletledger",
			Name:      "api_keys_issued_total",
			Help:      "Total API keys issued.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		TransfersTotal,
		DepositsTotal,
		WebhookReplaysTotal,
		BalanceConflictRetriesTotal,
		APIKeysIssuedTotal,
	)
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(c.Writer.Status()),
		).Inc()
	}
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
