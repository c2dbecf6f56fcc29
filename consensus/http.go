package consensus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/btcl2/l2node/log"
)

// Paths the API serves election messages on.
const (
	VotePath      = "/v1/consensus/vote"
	HeartbeatPath = "/v1/consensus/heartbeat"
)

// HTTPTransport posts election messages as JSON to the peer's API.
type HTTPTransport struct {
	client *retryablehttp.Client
}

func NewHTTPTransport(cfg Config, logger *zap.Logger) *HTTPTransport {
	client := &retryablehttp.Client{
		HTTPClient:   &http.Client{Timeout: cfg.RequestTimeout},
		RetryMax:     cfg.RequestRetries,
		RetryWaitMin: cfg.RequestTimeout / 10,
		RetryWaitMax: cfg.RequestTimeout / 5,
		Backoff:      retryablehttp.LinearJitterBackoff,
		CheckRetry:   retryablehttp.DefaultRetryPolicy,
		Logger:       log.NewRetryableHTTPLogger(logger),
	}
	return &HTTPTransport{client: client}
}

func (t *HTTPTransport) RequestVote(ctx context.Context, peer Peer, req VoteRequest) (VoteResponse, error) {
	var resp VoteResponse
	err := t.post(ctx, peer, VotePath, req, &resp)
	return resp, err
}

func (t *HTTPTransport) Heartbeat(ctx context.Context, peer Peer, req HeartbeatRequest) (HeartbeatResponse, error) {
	var resp HeartbeatResponse
	err := t.post(ctx, peer, HeartbeatPath, req, &resp)
	return resp, err
}

func (t *HTTPTransport) post(ctx context.Context, peer Peer, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	url := strings.TrimRight(peer.URL, "/") + path
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnreachable, peer.ID, err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("peer %s responded with status %s: %s", peer.ID, res.Status, data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
