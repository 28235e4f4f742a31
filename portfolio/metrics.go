package portfolio

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeOK    = "ok"
	outcomeError = "error"
	outcomePanic = "panic"
)

// Metrics records adapter activity. A nil *Metrics records nothing.
type Metrics struct {
	requests  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	positions *prometheus.CounterVec
}

// NewMetrics registers the adapter metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "portfolio_adapter_requests_total",
			Help: "Adapter invocations by outcome.",
		}, []string{"adapter", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "portfolio_adapter_duration_seconds",
			Help:    "Time spent in UserPositions per adapter.",
			Buckets: prometheus.DefBuckets,
		}, []string{"adapter"}),
		positions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "portfolio_positions_returned_total",
			Help: "Positions returned per adapter.",
		}, []string{"adapter"}),
	}
}

func (m *Metrics) observe(adapter, outcome string, elapsed time.Duration, count int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(adapter, outcome).Inc()
	m.duration.WithLabelValues(adapter).Observe(elapsed.Seconds())
	if count > 0 {
		m.positions.WithLabelValues(adapter).Add(float64(count))
	}
}
