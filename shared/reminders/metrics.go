package reminders

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the reminder system. A nil *Metrics
// is valid; every method is a no-op on it.
type Metrics struct {
	// RemindersSentTotal counts send outcomes by status and day offset.
	RemindersSentTotal *prometheus.CounterVec

	// RemindersQueueSize is the current number of pending reminders.
	RemindersQueueSize prometheus.Gauge

	// ReminderSendDuration is the time to send a reminder.
	ReminderSendDuration prometheus.Histogram

	// RemindersCleanedUp is the total number of reminders cleaned up.
	RemindersCleanedUp prometheus.Counter

	// ReminderRetries is the total number of retry attempts.
	ReminderRetries prometheus.Counter

	// RateLimitWaits is the total number of rate limit waits.
	RateLimitWaits prometheus.Counter
}

// NewMetrics creates and registers Prometheus metrics for reminders.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		RemindersSentTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reminders_sent_total",
				Help:      "Total number of reminders sent",
			},
			[]string{"status", "offset_days"},
		),

		RemindersQueueSize: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "reminders_queue_size",
				Help:      "Current number of pending reminders",
			},
		),

		ReminderSendDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "reminder_send_duration_seconds",
				Help:      "Time to send a reminder",
				Buckets:   []float64{.01, .05, .1, .5, 1, 2, 5},
			},
		),

		RemindersCleanedUp: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reminders_cleaned_up_total",
				Help:      "Total number of reminders cleaned up",
			},
		),

		ReminderRetries: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reminder_retries_total",
				Help:      "Total number of retry attempts",
			},
		),

		RateLimitWaits: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_waits_total",
				Help:      "Total number of rate limit waits",
			},
		),
	}
}

// IncSent increments the sent counter for a given status and offset.
func (m *Metrics) IncSent(status string, offsetDays int) {
	if m == nil {
		return
	}
	m.RemindersSentTotal.WithLabelValues(status, strconv.Itoa(offsetDays)).Inc()
}

// SetQueueSize sets the current queue size.
func (m *Metrics) SetQueueSize(size int64) {
	if m == nil {
		return
	}
	m.RemindersQueueSize.Set(float64(size))
}

// ObserveSendDuration records the time taken to send a reminder.
func (m *Metrics) ObserveSendDuration(seconds float64) {
	if m == nil {
		return
	}
	m.ReminderSendDuration.Observe(seconds)
}

// IncCleanedUp increments the cleanup counter.
func (m *Metrics) IncCleanedUp(count int64) {
	if m == nil {
		return
	}
	m.RemindersCleanedUp.Add(float64(count))
}

// IncRetries increments the retry counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.ReminderRetries.Inc()
}

// IncRateLimitWaits increments the rate limit wait counter.
func (m *Metrics) IncRateLimitWaits() {
	if m == nil {
		return
	}
	m.RateLimitWaits.Inc()
}
