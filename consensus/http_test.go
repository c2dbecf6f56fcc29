package consensus

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/btcl2/l2node/log/logtest"
)

func serve(t *testing.T, h Handler) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc(VotePath, func(w http.ResponseWriter, r *http.Request) {
		var req VoteRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp, err := h.HandleVote(r.Context(), req)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc(HeartbeatPath, func(w http.ResponseWriter, r *http.Request) {
		var req HeartbeatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp, err := h.HandleHeartbeat(r.Context(), req)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(resp)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPTransport(t *testing.T) {
	b := newMember(t, NewMemTransport(), "b", "a")
	srv := serve(t, b)
	transport := NewHTTPTransport(testConfig("a", "b"), logtest.New(t))
	peer := Peer{ID: "b", URL: srv.URL + "/"}

	vote, err := transport.RequestVote(context.Background(), peer, VoteRequest{Term: 2, Candidate: "a"})
	require.NoError(t, err)
	require.Equal(t, VoteResponse{Term: 2, Granted: true}, vote)

	hb, err := transport.Heartbeat(context.Background(), peer, HeartbeatRequest{Term: 2, Leader: "a", Index: 4})
	require.NoError(t, err)
	require.Equal(t, HeartbeatResponse{Term: 2, Success: true}, hb)
	require.Equal(t, "a", b.Status().Leader)

	_, err = transport.RequestVote(context.Background(), peer, VoteRequest{Term: 3, Candidate: "mallory"})
	require.ErrorContains(t, err, "400")
}

func TestHTTPTransportUnreachable(t *testing.T) {
	cfg := testConfig("a", "b")
	cfg.RequestRetries = 0
	transport := NewHTTPTransport(cfg, logtest.New(t))
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := transport.Heartbeat(context.Background(), Peer{ID: "b", URL: srv.URL}, HeartbeatRequest{Term: 1, Leader: "a"})
	require.ErrorIs(t, err, ErrUnreachable)
}
