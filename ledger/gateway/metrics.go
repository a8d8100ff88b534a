package gateway

import (
	"time"

	"github.com/ahmadzakiakmal/weldledger/ledger"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments ledger calls.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the collectors with reg. A nil reg keeps them
// unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weldledger",
			Subsystem: "ledger",
			Name:      "requests_total",
			Help:      "Ledger operations by table, op and result.",
		}, []string{"table", "op", "result"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "weldledger",
			Subsystem: "ledger",
			Name:      "request_duration_seconds",
			Help:      "Latency of ledger operations.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"table", "op"}),
	}
}

func (m *Metrics) observe(table ledger.Table, op string, start time.Time, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrUnavailable):
		result = "unavailable"
	default:
		result = "rejected"
	}
	m.requests.WithLabelValues(string(table), op, result).Inc()
	m.duration.WithLabelValues(string(table), op).Observe(time.Since(start).Seconds())
}
