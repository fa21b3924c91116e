package indexmanager

import "github.com/prometheus/client_golang/prometheus"

var IndexMutations = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ghostdb",
	Subsystem: "index_manager",
	Name:      "mutations",
}, []string{"collection", "field", "op"})

var IndexBuilds = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ghostdb",
	Subsystem: "index_manager",
	Name:      "builds",
}, []string{"collection", "field", "result"})

var IndexBuildDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "ghostdb",
	Subsystem: "index_manager",
	Name:      "build_duration_ms",
	Buckets:   []float64{0, 1, 5, 10, 20, 50, 100, 200, 500},
}, []string{"collection", "field"})

var IndexLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ghostdb",
	Subsystem: "index_manager",
	Name:      "lookups",
}, []string{"collection", "field", "kind"})

// Collectors returns every metric this package exposes, for callers
// that register against their own registry.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{IndexMutations, IndexBuilds, IndexBuildDuration, IndexLookups}
}
