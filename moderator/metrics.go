package moderator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var unitCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "veil_moderator_units",
	Help: "Number of candidate content units handled, by outcome",
}, []string{"outcome"})
