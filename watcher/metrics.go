package watcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var candidatesForwarded = promauto.NewCounter(prometheus.CounterOpts{
	Name: "veil_watcher_candidates",
	Help: "Number of candidate content units forwarded from mutation batches",
})

var watcherPanics = promauto.NewCounter(prometheus.CounterOpts{
	Name: "veil_watcher_handler_panics",
	Help: "Number of recovered panics in the content unit handler",
})
