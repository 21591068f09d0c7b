package metrics

import "github.com/prometheus/client_golang/prometheus"

// Shared bucket tables so dashboards line up across components.
var (
	// DurationBuckets covers sub-millisecond handling up to slow multi-second paths.
	DurationBuckets = []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5, 10}

	// SizeBuckets covers message payload sizes from tiny control frames to multi-MB blobs.
	SizeBuckets = prometheus.ExponentialBuckets(64, 4, 10)

	// CountBuckets covers small integer counts such as queue depths and credits.
	CountBuckets = []float64{0, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}

	// NetworkBuckets covers connection lifetimes in seconds.
	NetworkBuckets = prometheus.ExponentialBuckets(1, 4, 8)
)
