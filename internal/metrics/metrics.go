// Package metrics exposes Prometheus counters for the API surface.
package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "subwatch",
			Name:      "api_requests_total",
			Help:      "Count of API requests by method, route and status code.",
		},
		[]string{"method", "route", "status"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "subwatch",
			Name:      "api_request_duration_seconds",
			Help:      "API request latency.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"method", "route"},
	)

	subscriptionCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "subwatch",
			Name:      "subscriptions_created_total",
			Help:      "Count of subscriptions created by source.",
		},
		[]string{"source"},
	)

	subscriptionDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "subwatch",
			Name:      "subscriptions_deleted_total",
			Help:      "Count of subscriptions deleted by users.",
		},
	)

	syncExchanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "subwatch",
			Name:      "sync_exchanges_total",
			Help:      "Count of extension sync exchanges by result.",
		},
		[]string{"result"},
	)

	notificationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "subwatch",
			Name:      "notifications_total",
			Help:      "Count of notifications by channel and outcome.",
		},
		[]string{"channel", "status"},
	)

	rateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "subwatch",
			Name:      "api_rate_limited_total",
			Help:      "Count of requests rejected by the per-key rate limiter.",
		},
	)

	authFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "subwatch",
			Name:      "auth_failures_total",
			Help:      "Count of rejected authentications by reason.",
		},
		[]string{"reason"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(requestsTotal, requestDuration, subscriptionCreated,
			subscriptionDeleted, syncExchanges, notificationsSent, rateLimited, authFailures)
	})
}

func ObserveRequest(method, route string, status int, seconds float64) {
	requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	requestDuration.WithLabelValues(method, route).Observe(seconds)
}

func IncSubscriptionCreated(source string) {
	subscriptionCreated.WithLabelValues(source).Inc()
}

func IncSubscriptionDeleted() {
	subscriptionDeleted.Inc()
}

func IncSyncExchange(result string) {
	syncExchanges.WithLabelValues(result).Inc()
}

func IncNotification(channel, status string) {
	notificationsSent.WithLabelValues(channel, status).Inc()
}

func IncRateLimited() {
	rateLimited.Inc()
}

func IncAuthFailure(reason string) {
	authFailures.WithLabelValues(reason).Inc()
}
