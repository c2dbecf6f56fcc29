package consensus

import "github.com/btcl2/l2node/metrics"

const namespace = "consensus"

var (
	elections = metrics.NewCounter(
		"elections",
		namespace,
		"Number of elections started by this validator",
		[]string{},
	).WithLabelValues()
	heartbeats = metrics.NewCounter(
		"heartbeats",
		namespace,
		"Number of heartbeat rounds sent as leader",
		[]string{},
	).WithLabelValues()
	authorizations = metrics.NewCounter(
		"authorizations",
		namespace,
		"Number of batch builds authorized as leader",
		[]string{},
	).WithLabelValues()
	termGauge = metrics.NewGauge(
		"term",
		namespace,
		"Current election term",
		[]string{},
	).WithLabelValues()
	leaderGauge = metrics.NewGauge(
		"leader",
		namespace,
		"1 while this validator is leader",
		[]string{},
	).WithLabelValues()
)
