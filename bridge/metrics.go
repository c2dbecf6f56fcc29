package bridge

import "github.com/btcl2/l2node/metrics"

const namespace = "bridge"

var (
	depositsSeen = metrics.NewCounter(
		"deposits_seen",
		namespace,
		"Number of token deposits detected at the custody address",
		[]string{},
	).WithLabelValues()
	depositsClaimed = metrics.NewCounter(
		"deposits_claimed",
		namespace,
		"Number of deposits minted to L2",
		[]string{},
	).WithLabelValues()
	doubleSpends = metrics.NewCounter(
		"double_spends_suspected",
		namespace,
		"Number of listed deposit outputs reported spent",
		[]string{},
	).WithLabelValues()
	pollFailures = metrics.NewCounter(
		"poll_failures",
		namespace,
		"Number of deposit polls aborted by L1 errors",
		[]string{},
	).WithLabelValues()
	txCacheHits = metrics.NewCounter(
		"tx_cache_hits",
		namespace,
		"Number of transaction lookups served from cache",
		[]string{},
	).WithLabelValues()
	withdrawalsRequested = metrics.NewCounter(
		"withdrawals_requested",
		namespace,
		"Number of withdrawal requests",
		[]string{},
	).WithLabelValues()
	withdrawalsCompleted = metrics.NewCounter(
		"withdrawals_completed",
		namespace,
		"Number of withdrawals paid out on L1",
		[]string{},
	).WithLabelValues()
	withdrawalsFailed = metrics.NewCounter(
		"withdrawals_failed",
		namespace,
		"Number of withdrawals marked failed",
		[]string{},
	).WithLabelValues()
	withdrawalsDeferred = metrics.NewCounter(
		"withdrawals_deferred",
		namespace,
		"Number of sweeps stopped because no custody output could fund the next payout",
		[]string{},
	).WithLabelValues()
	feeFallbacks = metrics.NewCounter(
		"fee_fallbacks",
		namespace,
		"Number of payouts priced with the fallback fee rate",
		[]string{},
	).WithLabelValues()
)
