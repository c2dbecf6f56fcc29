package sql

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/btcl2/l2node/metrics"
)

const subsystem = "database"

var (
	statementDuration = metrics.NewHistogramWithBuckets(
		"statement_duration_seconds",
		subsystem,
		"Statement latency by leading keyword",
		[]string{"kind"},
		prometheus.ExponentialBuckets(0.00005, 2, 16),
	)
	connWait = metrics.NewHistogramWithBuckets(
		"conn_wait_seconds",
		subsystem,
		"Time spent waiting for a pooled connection",
		[]string{},
		prometheus.ExponentialBuckets(0.0001, 2, 14),
	).WithLabelValues()
	reclaimedPages = metrics.NewCounter(
		"vacuum_reclaimed_pages",
		subsystem,
		"Pages returned to the filesystem by vacuum",
		[]string{},
	).WithLabelValues()
)

// statementKind keeps the label set small: full query text would create a
// series per statement.
func statementKind(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return "other"
	}
	switch kind := strings.ToLower(fields[0]); kind {
	case "select", "insert", "update", "delete", "pragma", "with":
		return kind
	default:
		return "other"
	}
}
