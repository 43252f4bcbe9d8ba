package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	appointmentOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appointment_operations_total",
			Help: "Appointment ledger mutations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	queueSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "queue_subscribers",
			Help: "Live queue channels currently subscribed",
		},
	)

	queueBroadcastsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "queue_broadcasts_total",
			Help: "Queue snapshots published to hospital buckets",
		},
	)

	queueDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "queue_channels_dropped_total",
			Help: "Live queue channels dropped after a failed or slow write",
		},
	)

	notificationJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_jobs_total",
			Help: "Notification jobs by stage (enqueued, failed, delivered)",
		},
		[]string{"stage"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		appointmentOpsTotal,
		queueSubscribers,
		queueBroadcastsTotal,
		queueDroppedTotal,
		notificationJobsTotal,
	)
}

// Handler exposes the default registry for scraping.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

// Middleware records request counts and latency per route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}

// RecordAppointmentOp counts a ledger mutation.
func RecordAppointmentOp(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	appointmentOpsTotal.WithLabelValues(operation, outcome).Inc()
}

// SubscriberAdded and SubscriberRemoved track the live channel gauge.
func SubscriberAdded() { queueSubscribers.Inc() }

func SubscriberRemoved() { queueSubscribers.Dec() }

// BroadcastPublished counts one publish to a hospital bucket.
func BroadcastPublished() { queueBroadcastsTotal.Inc() }

// ChannelDropped counts a channel removed after a failed write.
func ChannelDropped() { queueDroppedTotal.Inc() }

// NotificationJob counts a notification job at the given stage.
func NotificationJob(stage string) {
	notificationJobsTotal.WithLabelValues(stage).Inc()
}
