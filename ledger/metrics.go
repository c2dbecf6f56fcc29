package ledger

import "github.com/btcl2/l2node/metrics"

const namespace = "ledger"

var (
	accountsCreated = metrics.NewCounter(
		"accounts_created",
		namespace,
		"Number of accounts opened",
		[]string{},
	).WithLabelValues()
	mutations = metrics.NewCounter(
		"mutations",
		namespace,
		"Number of account writes",
		[]string{},
	).WithLabelValues()
)
