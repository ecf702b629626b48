// Package metrics exposes Prometheus collectors for the registry.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	PackagesTotal  prometheus.GaugeFunc
	PublishesTotal *prometheus.CounterVec
	DownloadsTotal prometheus.Counter
	AuthFailures   prometheus.Counter
}

// PackageCounter reports the current catalog size for the packages gauge.
type PackageCounter interface {
	Count() int
}

// New registers the registry collectors on reg.
func New(reg prometheus.Registerer, packages PackageCounter) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "packsmith_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "packsmith_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		PackagesTotal: factory.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "packsmith_packages_total",
				Help: "Number of package ids in the catalog",
			},
			func() float64 { return float64(packages.Count()) },
		),
		PublishesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "packsmith_publishes_total",
				Help: "Publish operations by outcome",
			},
			[]string{"outcome"},
		),
		DownloadsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "packsmith_downloads_total",
				Help: "Archive downloads served",
			},
		),
		AuthFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "packsmith_auth_failures_total",
				Help: "Rejected authentication attempts",
			},
		),
	}
}

// Middleware records request counts and durations.
func Middleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		m.RequestsTotal.WithLabelValues(method, path, status).Inc()
		m.RequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
