package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// singleton instance
	instance *Metrics
	once     sync.Once
)

// Metrics holds Prometheus metrics for Beacon
type Metrics struct {
	// API metrics
	APIRequestsTotal   *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec

	// Delivery metrics
	DeliveriesTotal     *prometheus.CounterVec
	DeliveryDuration    prometheus.Histogram
	DeliveryFanoutSize  prometheus.Histogram
	SubscriptionsPruned prometheus.Counter
	SubscriptionsActive prometheus.Gauge

	// Scheduler metrics
	TimersActive        prometheus.Gauge
	TimerRearmsTotal    prometheus.Counter
	NotificationsFired  prometheus.Counter
	ImmediateDeliveries prometheus.Counter

	// Validation metrics
	ValidationRunsTotal prometheus.Counter
	ValidationOutcomes  *prometheus.CounterVec

	// Reminder metrics
	RemindersScheduled  *prometheus.CounterVec
	ReminderBatchErrors prometheus.Counter
}

// GetMetrics returns the metrics singleton
func GetMetrics() *Metrics {
	once.Do(func() {
		instance = newMetrics()
	})
	return instance
}

// newMetrics initializes and registers all metrics
func newMetrics() *Metrics {
	m := &Metrics{}

	// API metrics
	m.APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	m.APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "beacon_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Delivery metrics
	m.DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_deliveries_total",
			Help: "Per-subscription delivery attempts by outcome",
		},
		[]string{"outcome"},
	)

	m.DeliveryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "beacon_delivery_duration_seconds",
			Help:    "Duration of one full notification fan-out",
			Buckets: prometheus.DefBuckets,
		},
	)

	m.DeliveryFanoutSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "beacon_delivery_fanout_size",
			Help:    "Number of subscriptions targeted per fan-out",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
		},
	)

	m.SubscriptionsPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "beacon_subscriptions_pruned_total",
			Help: "Subscriptions removed after permanent delivery failures",
		},
	)

	m.SubscriptionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "beacon_subscriptions_active",
			Help: "Current number of stored subscriptions",
		},
	)

	// Scheduler metrics
	m.TimersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "beacon_scheduler_timers_active",
			Help: "Currently armed notification timers",
		},
	)

	m.TimerRearmsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "beacon_scheduler_rearms_total",
			Help: "Timer re-arms caused by the maximum timer delay cap",
		},
	)

	m.NotificationsFired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "beacon_notifications_fired_total",
			Help: "Notifications whose scheduled time was reached",
		},
	)

	m.ImmediateDeliveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "beacon_immediate_deliveries_total",
			Help: "Notifications delivered synchronously because their time had passed",
		},
	)

	// Validation metrics
	m.ValidationRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "beacon_validation_runs_total",
			Help: "Subscription validation sweeps executed",
		},
	)

	m.ValidationOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_validation_outcomes_total",
			Help: "Per-subscription validation outcomes",
		},
		[]string{"outcome"},
	)

	// Reminder metrics
	m.RemindersScheduled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_reminders_scheduled_total",
			Help: "Task reminders derived into notifications, by type",
		},
		[]string{"type"},
	)

	m.ReminderBatchErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "beacon_reminder_batch_errors_total",
			Help: "Tasks skipped during a reminder batch due to errors",
		},
	)

	return m
}
