package api

import (
	"net/http"

	"github.com/gorilla/mux"
	metricsprom "github.com/slok/go-http-metrics/metrics/prometheus"
	"github.com/slok/go-http-metrics/middleware"
	"github.com/slok/go-http-metrics/middleware/std"

	"github.com/btcl2/l2node/metrics"
)

// the recorder registers its collectors once per process.
var httpMetrics = middleware.New(middleware.Config{
	Recorder: metricsprom.NewRecorder(metricsprom.Config{
		Prefix: metrics.Namespace + "_api",
	}),
	GroupedStatus: true,
})

// instrument records requests per route template, so account ids and
// hashes in paths do not create new series.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := "unknown"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		std.Handler(route, httpMetrics, next).ServeHTTP(w, r)
	})
}
