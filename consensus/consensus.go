// Package consensus elects the single batch producer among the validators.
//
// Every validator starts as a follower. A follower that hears no heartbeat
// for a randomized election timeout becomes a candidate: it bumps the term,
// votes for itself and asks its peers for votes. A candidate holding votes
// from a majority of the validator set becomes leader and sends heartbeats
// until it observes a higher term. Only the leader authorizes batch builds.
//
// The election tolerates crashed validators but not byzantine ones.
package consensus

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spacemeshos/go-scale"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/btcl2/l2node/common/errcode"
	"github.com/btcl2/l2node/sql"
	"github.com/btcl2/l2node/sql/kvstore"
)

const stateKey kvstore.Key = "consensus"

// Role of a validator in the current term.
type Role uint8

const (
	Follower Role = iota
	Candidate
	Leader
)

func (r Role) String() string {
	switch r {
	case Follower:
		return "follower"
	case Candidate:
		return "candidate"
	case Leader:
		return "leader"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Authorization permits the leader of Term to build the batch number Index.
type Authorization struct {
	Term  uint64 `json:"term"`
	Index uint64 `json:"index"`
}

// Status is a snapshot of the election state.
type Status struct {
	ID       string   `json:"id"`
	Role     Role     `json:"role"`
	Term     uint64   `json:"term"`
	Leader   string   `json:"leader,omitempty"`
	VotedFor string   `json:"voted_for,omitempty"`
	Index    uint64   `json:"index"`
	Peers    []string `json:"peers"`
}

// persistent is the part of the state that must survive restarts so that a
// validator never votes twice in a term.
type persistent struct {
	Term     uint64
	VotedFor string
	Index    uint64
}

func (p *persistent) EncodeScale(enc *scale.Encoder) (total int, err error) {
	{
		n, err := scale.EncodeCompact64(enc, p.Term)
		if err != nil {
			return total, err
		}
		total += n
	}
	{
		n, err := scale.EncodeByteSliceWithLimit(enc, []byte(p.VotedFor), 256)
		if err != nil {
			return total, err
		}
		total += n
	}
	{
		n, err := scale.EncodeCompact64(enc, p.Index)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (p *persistent) DecodeScale(dec *scale.Decoder) (total int, err error) {
	{
		field, n, err := scale.DecodeCompact64(dec)
		if err != nil {
			return total, err
		}
		total += n
		p.Term = field
	}
	{
		field, n, err := scale.DecodeByteSliceWithLimit(dec, 256)
		if err != nil {
			return total, err
		}
		total += n
		p.VotedFor = string(field)
	}
	{
		field, n, err := scale.DecodeCompact64(dec)
		if err != nil {
			return total, err
		}
		total += n
		p.Index = field
	}
	return total, nil
}

// Opt configures Node.
type Opt func(*Node)

func WithLogger(logger *zap.Logger) Opt {
	return func(n *Node) {
		n.logger = logger
	}
}

func WithClock(clock clockwork.Clock) Opt {
	return func(n *Node) {
		n.clock = clock
	}
}

// Node runs the election for one validator.
type Node struct {
	cfg       Config
	db        sql.Executor
	transport Transport
	logger    *zap.Logger
	clock     clockwork.Clock

	// wake interrupts the current wait of Run.
	wake chan struct{}

	mu       sync.Mutex
	role     Role
	term     uint64
	votedFor string
	leader   string
	index    uint64
}

// New loads the persisted term and vote from db. The node starts as follower.
func New(db sql.Executor, cfg Config, transport Transport, opts ...Opt) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n := &Node{
		cfg:       cfg,
		db:        db,
		transport: transport,
		logger:    zap.NewNop(),
		clock:     clockwork.NewRealClock(),
		wake:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(n)
	}
	var state persistent
	switch err := kvstore.Get(db, stateKey, &state); {
	case errors.Is(err, sql.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("load consensus state: %w", err)
	default:
		n.term, n.votedFor, n.index = state.Term, state.VotedFor, state.Index
	}
	termGauge.Set(float64(n.term))
	return n, nil
}

// ID of this validator.
func (n *Node) ID() string {
	return n.cfg.ID
}

func (n *Node) Status() Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	peers := make([]string, 0, len(n.cfg.Peers))
	for _, p := range n.cfg.Peers {
		peers = append(peers, p.ID)
	}
	return Status{
		ID:       n.cfg.ID,
		Role:     n.role,
		Term:     n.term,
		Leader:   n.leader,
		VotedFor: n.votedFor,
		Index:    n.index,
		Peers:    peers,
	}
}

func (n *Node) IsLeader() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.role == Leader
}

// AuthorizeBatch appends an authorization entry. It fails with ErrNotLeader
// on every validator but the leader.
func (n *Node) AuthorizeBatch(_ context.Context) (Authorization, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.role != Leader {
		return Authorization{}, errcode.New(errcode.CodeNotLeader,
			"%s is %s in term %d, leader is %q", n.cfg.ID, n.role, n.term, n.leader)
	}
	n.index++
	if err := n.persistLocked(); err != nil {
		n.index--
		return Authorization{}, err
	}
	authorizations.Inc()
	return Authorization{Term: n.term, Index: n.index}, nil
}

// Run drives the state machine until ctx is canceled.
func (n *Node) Run(ctx context.Context) error {
	n.logger.Info("consensus started",
		zap.String("id", n.cfg.ID),
		zap.Uint64("term", n.Status().Term),
		zap.Int("validators", len(n.cfg.Peers)+1),
	)
	for {
		var wait time.Duration
		if n.IsLeader() {
			n.heartbeat(ctx)
			wait = n.cfg.HeartbeatInterval
		} else {
			wait = n.electionTimeout()
		}
		timer := n.clock.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-n.wake:
			timer.Stop()
		case <-timer.Chan():
			if !n.IsLeader() {
				n.campaign(ctx)
			}
		}
	}
}

func (n *Node) electionTimeout() time.Duration {
	window := n.cfg.ElectionTimeoutMax - n.cfg.ElectionTimeoutMin
	return n.cfg.ElectionTimeoutMin + rand.N(window)
}

func (n *Node) quorum() int {
	return (len(n.cfg.Peers)+1)/2 + 1
}

func (n *Node) signal() {
	select {
	case n.wake <- struct{}{}:
	default:
	}
}

func (n *Node) campaign(ctx context.Context) {
	n.mu.Lock()
	n.role = Candidate
	n.term++
	n.votedFor = n.cfg.ID
	n.leader = ""
	term := n.term
	err := n.persistLocked()
	n.mu.Unlock()
	if err != nil {
		n.logger.Error("failed to persist candidacy", zap.Uint64("term", term), zap.Error(err))
		return
	}
	elections.Inc()
	termGauge.Set(float64(term))
	n.logger.Debug("election started", zap.Uint64("term", term))

	var (
		mu    sync.Mutex
		votes = 1
		eg    errgroup.Group
	)
	reqCtx, cancel := context.WithTimeout(ctx, n.cfg.RequestTimeout)
	defer cancel()
	for _, peer := range n.cfg.Peers {
		eg.Go(func() error {
			resp, err := n.transport.RequestVote(reqCtx, peer, VoteRequest{Term: term, Candidate: n.cfg.ID})
			if err != nil {
				n.logger.Debug("vote request failed", zap.String("peer", peer.ID), zap.Error(err))
				return nil
			}
			if resp.Term > term {
				n.observeTerm(resp.Term)
				return nil
			}
			if resp.Granted {
				mu.Lock()
				votes++
				mu.Unlock()
			}
			return nil
		})
	}
	eg.Wait()

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.role != Candidate || n.term != term {
		return
	}
	if votes < n.quorum() {
		n.logger.Debug("election lost", zap.Uint64("term", term), zap.Int("votes", votes))
		return
	}
	n.role = Leader
	n.leader = n.cfg.ID
	leaderGauge.Set(1)
	n.logger.Info("elected leader", zap.Uint64("term", term), zap.Int("votes", votes))
}

func (n *Node) heartbeat(ctx context.Context) {
	n.mu.Lock()
	req := HeartbeatRequest{Term: n.term, Leader: n.cfg.ID, Index: n.index}
	n.mu.Unlock()

	reqCtx, cancel := context.WithTimeout(ctx, n.cfg.RequestTimeout)
	defer cancel()
	var eg errgroup.Group
	for _, peer := range n.cfg.Peers {
		eg.Go(func() error {
			resp, err := n.transport.Heartbeat(reqCtx, peer, req)
			if err != nil {
				n.logger.Debug("heartbeat failed", zap.String("peer", peer.ID), zap.Error(err))
				return nil
			}
			if resp.Term > req.Term {
				n.observeTerm(resp.Term)
			}
			return nil
		})
	}
	eg.Wait()
	heartbeats.Inc()
}

// observeTerm steps down to follower if term is newer than ours.
func (n *Node) observeTerm(term uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if term <= n.term {
		return
	}
	n.stepDownLocked(term)
	if err := n.persistLocked(); err != nil {
		n.logger.Error("failed to persist term", zap.Uint64("term", term), zap.Error(err))
	}
}

func (n *Node) stepDownLocked(term uint64) {
	if n.role == Leader {
		leaderGauge.Set(0)
		n.logger.Info("stepped down", zap.Uint64("term", n.term), zap.Uint64("new term", term))
	}
	if term > n.term {
		n.term = term
		n.votedFor = ""
		termGauge.Set(float64(term))
	}
	n.role = Follower
	n.leader = ""
	n.signal()
}

func (n *Node) persistLocked() error {
	return kvstore.Put(n.db, stateKey, &persistent{Term: n.term, VotedFor: n.votedFor, Index: n.index})
}

func (n *Node) isPeer(id string) bool {
	for _, p := range n.cfg.Peers {
		if p.ID == id {
			return true
		}
	}
	return false
}

// HandleVote grants at most one vote per term.
func (n *Node) HandleVote(_ context.Context, req VoteRequest) (VoteResponse, error) {
	if !n.isPeer(req.Candidate) {
		return VoteResponse{}, errcode.New(errcode.CodeInvalidRequest, "unknown validator %q", req.Candidate)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if req.Term < n.term {
		return VoteResponse{Term: n.term}, nil
	}
	if req.Term > n.term {
		n.stepDownLocked(req.Term)
	}
	granted := n.votedFor == "" || n.votedFor == req.Candidate
	if granted {
		n.votedFor = req.Candidate
		n.signal()
	}
	if err := n.persistLocked(); err != nil {
		return VoteResponse{}, fmt.Errorf("persist vote: %w", err)
	}
	n.logger.Debug("vote requested",
		zap.String("candidate", req.Candidate),
		zap.Uint64("term", req.Term),
		zap.Bool("granted", granted),
	)
	return VoteResponse{Term: n.term, Granted: granted}, nil
}

// HandleHeartbeat accepts the sender as leader unless its term is stale.
func (n *Node) HandleHeartbeat(_ context.Context, req HeartbeatRequest) (HeartbeatResponse, error) {
	if !n.isPeer(req.Leader) {
		return HeartbeatResponse{}, errcode.New(errcode.CodeInvalidRequest, "unknown validator %q", req.Leader)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if req.Term < n.term {
		return HeartbeatResponse{Term: n.term}, nil
	}
	changed := req.Term > n.term || n.role != Follower || req.Index > n.index
	if req.Term > n.term || n.role != Follower {
		n.stepDownLocked(req.Term)
	}
	if n.leader != req.Leader {
		n.logger.Info("following leader", zap.String("leader", req.Leader), zap.Uint64("term", req.Term))
	}
	n.leader = req.Leader
	if req.Index > n.index {
		n.index = req.Index
	}
	if changed {
		if err := n.persistLocked(); err != nil {
			return HeartbeatResponse{}, fmt.Errorf("persist heartbeat: %w", err)
		}
	}
	n.signal()
	return HeartbeatResponse{Term: n.term, Success: true}, nil
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (s Status) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("id", s.ID)
	enc.AddString("role", s.Role.String())
	enc.AddUint64("term", s.Term)
	enc.AddString("leader", s.Leader)
	enc.AddUint64("index", s.Index)
	return nil
}
