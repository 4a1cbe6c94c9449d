package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var bridgeRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "veil_bridge_requests",
	Help: "Number of bridge requests answered, by request type and outcome",
}, []string{"type", "outcome"})

var bridgeConnections = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "veil_bridge_connections",
	Help: "Number of open bridge websocket connections",
})

var droppedResponses = promauto.NewCounter(prometheus.CounterOpts{
	Name: "veil_bridge_dropped_responses",
	Help: "Number of bridge responses dropped because no request was waiting for them",
})
