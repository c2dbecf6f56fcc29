package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"
)

// PushConfig configures pushing metrics to a prometheus push gateway.
type PushConfig struct {
	URL      string
	Username string
	Password string
	Headers  map[string]string
	Period   time.Duration
	NodeID   string
	Network  string
}

// Push pushes the default registry to the gateway every period until ctx is canceled.
func Push(ctx context.Context, cfg PushConfig, clock clockwork.Clock, logger *zap.Logger) error {
	header := http.Header{}
	for k, v := range cfg.Headers {
		header.Add(k, v)
	}
	pusher := push.New(cfg.URL, "l2node").Gatherer(prometheus.DefaultGatherer).
		Grouping("node", cfg.NodeID).
		Grouping("network", cfg.Network).
		Header(header)
	if cfg.Username != "" && cfg.Password != "" {
		pusher = pusher.BasicAuth(cfg.Username, cfg.Password)
	}
	ticker := clock.NewTicker(cfg.Period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			if err := pusher.PushContext(ctx); err != nil {
				logger.Warn("failed to push metrics", zap.Error(err))
			}
		}
	}
}
