package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes application-level instruments.
type Metrics struct {
	bookingsCreated    *prometheus.CounterVec
	bookingTransitions *prometheus.CounterVec
	webhookEvents      *prometheus.CounterVec
	sweeperExpired     prometheus.Counter
	sweeperErrors      prometheus.Counter
}

// HTTPMetrics instruments the gin request path.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// New registers the domain instruments on the provided registerer.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		bookingsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mentorlane_bookings_created_total",
			Help: "Bookings successfully created.",
		}, []string{"currency"}),
		bookingTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mentorlane_booking_transitions_total",
			Help: "Booking status transitions applied.",
		}, []string{"to"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mentorlane_webhook_events_total",
			Help: "Payment webhook events by type and outcome.",
		}, []string{"event_type", "outcome"}),
		sweeperExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mentorlane_sweeper_expired_total",
			Help: "Bookings expired by the hold sweeper.",
		}),
		sweeperErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mentorlane_sweeper_errors_total",
			Help: "Per-item failures during sweep runs.",
		}),
	}

	collectors := []prometheus.Collector{
		m.bookingsCreated,
		m.bookingTransitions,
		m.webhookEvents,
		m.sweeperExpired,
		m.sweeperErrors,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) RecordBookingCreated(currency string) {
	if m == nil {
		return
	}
	m.bookingsCreated.WithLabelValues(strings.ToUpper(strings.TrimSpace(currency))).Inc()
}

func (m *Metrics) RecordTransition(to string) {
	if m == nil {
		return
	}
	m.bookingTransitions.WithLabelValues(to).Inc()
}

func (m *Metrics) RecordWebhookEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

func (m *Metrics) RecordSweeperExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sweeperExpired.Add(float64(n))
}

func (m *Metrics) RecordSweeperError() {
	if m == nil {
		return
	}
	m.sweeperErrors.Inc()
}

// NewHTTPMetrics registers the HTTP instruments on the provided registerer.
func NewHTTPMetrics(reg prometheus.Registerer) (*HTTPMetrics, error) {
	h := &HTTPMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mentorlane_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mentorlane_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}

	for _, c := range []prometheus.Collector{h.requests, h.duration} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return nil, err
			}
		}
	}
	return h, nil
}

// GinMiddleware records request counts and latency per route.
func GinMiddleware(h *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if h == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if strings.TrimSpace(route) == "" {
			route = "unknown"
		}
		h.requests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		h.duration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}
