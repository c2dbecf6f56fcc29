package l1

import "github.com/btcl2/l2node/metrics"

const namespace = "l1"

var fallbacks = metrics.NewCounter(
	"fallbacks",
	namespace,
	"Number of calls served by the fallback client",
	[]string{"method"},
)
