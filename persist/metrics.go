package persist

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var storeCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "veil_persist_requests",
	Help: "Number of storage backend calls, by HTTP status code (or error)",
}, []string{"status"})
