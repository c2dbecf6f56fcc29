package executor

import "github.com/btcl2/l2node/metrics"

const namespace = "executor"

var (
	executed = metrics.NewCounter(
		"executed",
		namespace,
		"Number of confirmed transactions",
		[]string{"type"},
	)
	rejected = metrics.NewCounter(
		"rejected",
		namespace,
		"Number of rejected transactions",
		[]string{"code"},
	)
)
