package monitor

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics mirroring the monitor's counters.
//
// The monitor's own window counters reset at every evaluation boundary;
// these mirrors are cumulative so scrapes survive window resets.
type Metrics struct {
	RequestsTotal   prometheus.Counter
	ErrorsTotal     prometheus.Counter
	AuthErrorsTotal prometheus.Counter

	AlertsTotal           *prometheus.CounterVec
	AlertsSuppressedTotal *prometheus.CounterVec
}

// NewMetrics creates and registers the monitor's Prometheus metrics.
//
// Uses sync.Once so repeated construction (tests, multiple monitors) never
// trips duplicate-registration panics. All metrics are prefixed "taskd_".
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			RequestsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "taskd_requests_total",
					Help: "Total inbound requests recorded by the health monitor",
				},
			),
			ErrorsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "taskd_errors_total",
					Help: "Total error responses recorded by the health monitor",
				},
			),
			AuthErrorsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "taskd_auth_errors_total",
					Help: "Total 401/403 responses recorded by the health monitor",
				},
			),
			AlertsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "taskd_alerts_total",
					Help: "Alerts dispatched, by category",
				},
				[]string{"category"},
			),
			AlertsSuppressedTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "taskd_alerts_suppressed_total",
					Help: "Alert raises suppressed by cooldown, by category",
				},
				[]string{"category"},
			),
		}
	})
	return globalMetrics
}
