package validators

import "github.com/btcl2/l2node/metrics"

const namespace = "validators"

var (
	registered = metrics.NewCounter(
		"registered",
		namespace,
		"Number of validators registered",
		[]string{},
	).WithLabelValues()
	slashed = metrics.NewCounter(
		"slashed",
		namespace,
		"Number of validators slashed",
		[]string{},
	).WithLabelValues()
	rewardsClaimed = metrics.NewCounter(
		"rewards_claimed",
		namespace,
		"Credits paid out as validator rewards",
		[]string{},
	).WithLabelValues()
)
