package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/btcl2/l2node/metrics"
)

const namespace = "scheduler"

var (
	runs = metrics.NewCounter(
		"runs",
		namespace,
		"Number of task runs",
		[]string{"task", "outcome"},
	)
	runDuration = metrics.NewHistogramWithBuckets(
		"run_duration",
		namespace,
		"Duration of task runs in seconds",
		[]string{"task"},
		prometheus.ExponentialBuckets(0.01, 4, 8),
	)
)
