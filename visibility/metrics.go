package visibility

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var transitionCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "veil_visibility_transitions",
	Help: "Number of content unit state transitions, by event and resulting state",
}, []string{"event", "state"})
