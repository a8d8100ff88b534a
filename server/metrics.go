package server

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments API requests.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weldledger",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "API requests by method, caller role and status code.",
		}, []string{"method", "role", "code"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "weldledger",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "Latency of API requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

func (m *Metrics) observe(method, role string, code int, start time.Time) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, role, strconv.Itoa(code)).Inc()
	m.duration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}
