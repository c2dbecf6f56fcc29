package consensus

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrUnreachable is returned by MemTransport for disconnected peers.
var ErrUnreachable = errors.New("consensus: peer unreachable")

type VoteRequest struct {
	Term      uint64 `json:"term"`
	Candidate string `json:"candidate"`
}

type VoteResponse struct {
	Term    uint64 `json:"term"`
	Granted bool   `json:"granted"`
}

// HeartbeatRequest asserts leadership for Term. Index is the number of
// batches the leader authorized so far.
type HeartbeatRequest struct {
	Term   uint64 `json:"term"`
	Leader string `json:"leader"`
	Index  uint64 `json:"index"`
}

type HeartbeatResponse struct {
	Term    uint64 `json:"term"`
	Success bool   `json:"success"`
}

// Transport carries election messages to peers.
type Transport interface {
	RequestVote(ctx context.Context, peer Peer, req VoteRequest) (VoteResponse, error)
	Heartbeat(ctx context.Context, peer Peer, req HeartbeatRequest) (HeartbeatResponse, error)
}

// Handler is the receiving side of Transport.
type Handler interface {
	HandleVote(ctx context.Context, req VoteRequest) (VoteResponse, error)
	HandleHeartbeat(ctx context.Context, req HeartbeatRequest) (HeartbeatResponse, error)
}

// MemTransport delivers messages by direct calls to handlers registered in
// the same process.
type MemTransport struct {
	mu           sync.RWMutex
	handlers     map[string]Handler
	disconnected map[string]bool
}

func NewMemTransport() *MemTransport {
	return &MemTransport{
		handlers:     map[string]Handler{},
		disconnected: map[string]bool{},
	}
}

// Register routes messages for id to h.
func (t *MemTransport) Register(id string, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[id] = h
}

// Disconnect makes id unreachable until Connect.
func (t *MemTransport) Disconnect(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disconnected[id] = true
}

func (t *MemTransport) Connect(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.disconnected, id)
}

func (t *MemTransport) handler(id string) (Handler, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.handlers[id]
	if !ok || t.disconnected[id] {
		return nil, fmt.Errorf("%w: %s", ErrUnreachable, id)
	}
	return h, nil
}

func (t *MemTransport) RequestVote(ctx context.Context, peer Peer, req VoteRequest) (VoteResponse, error) {
	h, err := t.handler(peer.ID)
	if err != nil {
		return VoteResponse{}, err
	}
	return h.HandleVote(ctx, req)
}

func (t *MemTransport) Heartbeat(ctx context.Context, peer Peer, req HeartbeatRequest) (HeartbeatResponse, error) {
	h, err := t.handler(peer.ID)
	if err != nil {
		return HeartbeatResponse{}, err
	}
	return h.HandleHeartbeat(ctx, req)
}
