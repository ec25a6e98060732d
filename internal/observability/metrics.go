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
			Namespace: "tablectl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tablectl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	arbiterMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tablectl",
			Subsystem: "arbiter",
			Name:      "messages_total",
			Help:      "Inbound messages handled by the arbiter.",
		},
		[]string{"kind"},
	)
	arbiterDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tablectl",
			Subsystem: "arbiter",
			Name:      "decisions_total",
			Help:      "Arbiter outcomes: grant, defer, wakeup, deny.",
		},
		[]string{"outcome"},
	)
	arbiterViolations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tablectl",
			Subsystem: "arbiter",
			Name:      "violations_total",
			Help:      "Protocol and consistency violations seen by the arbiter.",
		},
		[]string{"class"},
	)
	arbiterSeats = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tablectl",
			Subsystem: "arbiter",
			Name:      "seats",
			Help:      "Seats per state after the last handled message.",
		},
		[]string{"state"},
	)
	brokerSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tablectl",
			Subsystem: "broker",
			Name:      "sessions",
			Help:      "Connected philosopher sessions.",
		},
	)
	dinerMeals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tablectl",
			Subsystem: "diner",
			Name:      "meals_total",
			Help:      "Completed meals per seat.",
		},
		[]string{"seat"},
	)
	dinerWait = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tablectl",
			Subsystem: "diner",
			Name:      "grant_wait_seconds",
			Help:      "Time from first request to grant.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		},
		[]string{"seat"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			arbiterMessages, arbiterDecisions, arbiterViolations, arbiterSeats,
			brokerSessions,
			dinerMeals, dinerWait,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordArbiterMessage(kind string) {
	RegisterMetrics()
	arbiterMessages.WithLabelValues(kind).Inc()
}

func RecordArbiterDecision(outcome string) {
	RegisterMetrics()
	arbiterDecisions.WithLabelValues(outcome).Inc()
}

func RecordArbiterViolation(class string) {
	RegisterMetrics()
	arbiterViolations.WithLabelValues(class).Inc()
}

func SetArbiterSeats(idle, waiting, eating int) {
	RegisterMetrics()
	arbiterSeats.WithLabelValues("idle").Set(float64(idle))
	arbiterSeats.WithLabelValues("waiting").Set(float64(waiting))
	arbiterSeats.WithLabelValues("eating").Set(float64(eating))
}

func AddBrokerSessions(delta int) {
	RegisterMetrics()
	brokerSessions.Add(float64(delta))
}

func RecordMeal(seat int, wait time.Duration) {
	RegisterMetrics()
	label := strconv.Itoa(seat)
	dinerMeals.WithLabelValues(label).Inc()
	dinerWait.WithLabelValues(label).Observe(wait.Seconds())
}
