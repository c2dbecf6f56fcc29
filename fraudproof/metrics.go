package fraudproof

import "github.com/btcl2/l2node/metrics"

const namespace = "fraudproof"

var fraudDetected = metrics.NewCounter(
	"fraud_detected",
	namespace,
	"Number of claimed state transitions proven wrong",
	[]string{},
).WithLabelValues()
