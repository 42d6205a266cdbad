package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// metrics is registered on a per-server registry so several servers (and
// tests) can coexist in one process.
type metrics struct {
	registry       *prometheus.Registry
	requests       *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	predictions    *prometheus.CounterVec
	snapshotRows   prometheus.Gauge
	modelAvailable prometheus.Gauge
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dashboard_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"route"}),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_predictions_total",
			Help: "Price predictions by outcome",
		}, []string{"outcome"}),
		snapshotRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dashboard_snapshot_rows",
			Help: "Listings in the loaded cleaned snapshot",
		}),
		modelAvailable: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dashboard_model_available",
			Help: "1 when a trained price model is loaded",
		}),
	}
	m.registry.MustRegister(m.requests, m.latency, m.predictions, m.snapshotRows, m.modelAvailable)
	return m
}

func (m *metrics) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
		m.latency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}
