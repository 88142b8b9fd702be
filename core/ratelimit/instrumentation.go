package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/koscakluka/ema-duet/core/ratelimit"

var logger = otelslog.NewLogger(scopeName)

var (
	rejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "emaduet",
			Name:      "rate_limit_rejections_total",
			Help:      "Total number of requests rejected by the rate limiter",
		},
	)

	bucketsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "emaduet",
			Name:      "rate_limit_buckets",
			Help:      "Number of rate limit buckets currently tracked",
		},
	)
)

// Collectors returns the rate limiter metrics for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{rejectionsTotal, bucketsActive}
}
