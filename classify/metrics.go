package classify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var classifyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "veil_classify_duration_sec",
	Help: "Duration of classifier predict API calls",
})

var classifyCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "veil_classify_requests",
	Help: "Number of classifier predict API calls, by HTTP status code (or error)",
}, []string{"status"})

var verdictCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "veil_classify_verdicts",
	Help: "Number of successful classifications, by outcome",
}, []string{"outcome"})

var breakerState = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "veil_classify_breaker_state",
	Help: "Classifier circuit breaker state (0 closed, 1 half-open, 2 open)",
})
