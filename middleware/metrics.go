package middleware

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

// MetricsName is the plugin name of the metrics middleware.
const MetricsName = "dataclient:metrics"

// Metrics tracks Prometheus metrics for data client statements.
//
// A nil *Metrics is a valid middleware that registers nothing.
type Metrics struct {
	// Queries counts statements.
	// Labels: operation, table, status=[ok, error]
	Queries *prometheus.CounterVec

	// Duration tracks statement latency.
	// Labels: operation
	Duration *prometheus.HistogramVec
}

// NewMetrics creates the metrics middleware and registers its collectors.
// If registerer is nil, prometheus.DefaultRegisterer is used. Collectors that
// are already registered are reused, so the call is safe to repeat.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &Metrics{
		Queries: registerOrReuse(registerer, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dataclient_queries_total",
				Help: "Total data client statements by operation, table and status",
			},
			[]string{"operation", "table", "status"},
		)),
		Duration: registerOrReuse(registerer, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dataclient_query_duration_seconds",
				Help:    "Data client statement duration by operation",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		)),
	}
}

func (m *Metrics) Name() string { return MetricsName }

func (m *Metrics) Initialize(db *gorm.DB) error {
	if m == nil {
		return nil
	}
	return registerAround(db, MetricsName, m.observe)
}

func (m *Metrics) observe(op string, db *gorm.DB, elapsed time.Duration) {
	status := "ok"
	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		status = "error"
	}
	m.Queries.WithLabelValues(op, db.Statement.Table, status).Inc()
	m.Duration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func registerOrReuse[T prometheus.Collector](registerer prometheus.Registerer, c T) T {
	if err := registerer.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return c
}
