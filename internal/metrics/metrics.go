package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sessionbook"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	bookingOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_attempts_total",
			Help:      "Booking creation attempts by outcome (created, conflict, invalid, error).",
		},
		[]string{"outcome"},
	)

	lifecycleTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_transitions_total",
			Help:      "Booking status transitions by target status and trigger.",
		},
		[]string{"status", "trigger"},
	)

	outboxTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_tasks_total",
			Help:      "Processed outbox tasks by type and result.",
		},
		[]string{"type", "result"},
	)

	slotCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_cache_lookups_total",
			Help:      "Slot listing cache lookups by result.",
		},
		[]string{"result"},
	)

	autoCompleteDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "auto_complete_duration_seconds",
			Help:      "Duration of auto-completion runs.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, bookingOutcomes, lifecycleTransitions, outboxTasks, slotCache, autoCompleteDuration)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncBooking(outcome string) {
	bookingOutcomes.WithLabelValues(outcome).Inc()
}

// AddTransitions counts n bookings moved to status by trigger (manual, auto, cancel).
func AddTransitions(status, trigger string, n int) {
	if n <= 0 {
		return
	}
	lifecycleTransitions.WithLabelValues(status, trigger).Add(float64(n))
}

func IncOutbox(taskType, result string) {
	outboxTasks.WithLabelValues(taskType, result).Inc()
}

func IncSlotCache(result string) {
	slotCache.WithLabelValues(result).Inc()
}

func ObserveAutoComplete(seconds float64) {
	autoCompleteDuration.Observe(seconds)
}
