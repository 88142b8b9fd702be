package orchestration

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
)

const scopeName = "github.com/koscakluka/ema-duet/core"

var (
	tracer = otel.Tracer(scopeName)
	logger = otelslog.NewLogger(scopeName)
)

const metricsNamespace = "emaduet"

var (
	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "turn_stage_duration_seconds",
			Help:      "Duration of turn pipeline stages in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"stage", "target"},
	)

	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "turns_total",
			Help:      "Total number of turns run through the pipeline",
		},
		[]string{"target", "status"}, // status: success, error
	)

	turnsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "turns_in_flight",
			Help:      "Number of dispatched turns awaiting completion",
		},
	)
)

// Collectors returns the orchestration metrics for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{stageDuration, turnsTotal, turnsInFlight}
}
