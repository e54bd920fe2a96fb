package metrics

import (
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/anonto42/pingup/backend/internal/errors"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pingup_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})
	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pingup_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path"})

	MessagesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pingup_messages_sent_total",
		Help: "Messages stored, by media type",
	}, []string{"media_type"})
	ConnectionRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pingup_connection_requests_total",
		Help: "Connection request attempts, by outcome",
	}, []string{"outcome"})
	NotificationFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pingup_notification_failures_total",
		Help: "Notifications that could not be written",
	})
	PresenceFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pingup_presence_touch_failures_total",
		Help: "Failed last-active updates",
	})
	UnreadCache = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pingup_unread_cache_total",
		Help: "Unread count cache lookups, by result",
	}, []string{"result"})
	SchedulerJobs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pingup_scheduler_jobs_total",
		Help: "Delayed jobs, by event and outcome",
	}, []string{"event", "outcome"})
	ReconcileRepairs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pingup_reconcile_repairs_total",
		Help: "Rows repaired by the reconciliation pass, by kind",
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(
		HTTPRequests, HTTPDuration,
		MessagesSent, ConnectionRequests, NotificationFailures, PresenceFailures,
		UnreadCache, SchedulerJobs, ReconcileRepairs,
	)
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request count and latency by route pattern
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if apiErr, ok := apperrors.As(err); ok {
				status = apiErr.Status
			} else if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			HTTPRequests.WithLabelValues(c.Request().Method, path, strconv.Itoa(status)).Inc()
			HTTPDuration.WithLabelValues(c.Request().Method, path).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
