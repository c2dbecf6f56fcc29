package rollup

import "github.com/btcl2/l2node/metrics"

const namespace = "rollup"

var (
	batchesBuilt = metrics.NewCounter(
		"batches_built",
		namespace,
		"Number of batches closed",
		[]string{},
	).WithLabelValues()
	batchedTxs = metrics.NewCounter(
		"batched_txs",
		namespace,
		"Number of transactions included in batches",
		[]string{},
	).WithLabelValues()
	batchesPublished = metrics.NewCounter(
		"batches_published",
		namespace,
		"Number of batches anchored on L1",
		[]string{},
	).WithLabelValues()
	batchesFinalized = metrics.NewCounter(
		"batches_finalized",
		namespace,
		"Number of batches finalized",
		[]string{},
	).WithLabelValues()
	anchorFailures = metrics.NewCounter(
		"anchor_failures",
		namespace,
		"Number of anchor transactions that could not be broadcast",
		[]string{},
	).WithLabelValues()
	feeFallbacks = metrics.NewCounter(
		"fee_fallbacks",
		namespace,
		"Number of anchors priced with the fallback fee rate",
		[]string{},
	).WithLabelValues()
	latestBatch = metrics.NewGauge(
		"latest_batch",
		namespace,
		"Id of the latest batch",
		[]string{},
	).WithLabelValues()
)
