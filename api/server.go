// Package api serves the node's JSON HTTP interface. Amounts travel as
// decimal strings and failures carry a stable error code.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/btcl2/l2node/bridge"
	"github.com/btcl2/l2node/common/errcode"
	"github.com/btcl2/l2node/consensus"
	"github.com/btcl2/l2node/executor"
	"github.com/btcl2/l2node/fraudproof"
	"github.com/btcl2/l2node/ledger"
	"github.com/btcl2/l2node/rollup"
	"github.com/btcl2/l2node/sql"
	"github.com/btcl2/l2node/validators"
)

// Services are the components the API exposes.
type Services struct {
	DB         sql.Executor
	Ledger     *ledger.Ledger
	Executor   *executor.Executor
	Bridge     *bridge.Bridge
	Aggregator *rollup.Aggregator
	Validators *validators.Registry
	Consensus  *consensus.Node
	Fraud      *fraudproof.Checker
}

type Opt func(*Server)

func WithLogger(logger *zap.Logger) Opt {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithConfig(cfg Config) Opt {
	return func(s *Server) {
		s.cfg = cfg
	}
}

// Server routes requests to Services.
type Server struct {
	svc     Services
	cfg     Config
	logger  *zap.Logger
	handler http.Handler
	srv     *http.Server
}

// NewServer builds the router. Nothing listens until Run.
func NewServer(svc Services, opts ...Opt) (*Server, error) {
	s := &Server{
		svc:    svc,
		cfg:    DefaultConfig(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}
	router := mux.NewRouter()
	router.Use(instrument)
	s.routes(router)
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, errcode.New(errcode.CodeNotFound, "no route for %s %s", r.Method, r.URL.Path))
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, errcode.New(errcode.CodeInvalidRequest, "method %s not allowed", r.Method))
	})

	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	})
	s.handler = c.Handler(http.TimeoutHandler(router, s.cfg.RequestTimeout, `{"code":"INTERNAL","message":"request timed out"}`))
	s.srv = &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.srv.Addr, err)
	}
	s.logger.Info("api server started", zap.Stringer("address", lis.Addr()))
	errc := make(chan error, 1)
	go func() {
		errc <- s.srv.Serve(lis)
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("api server shutdown", zap.Error(err))
		}
		return nil
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) routes(r *mux.Router) {
	v1 := r.PathPrefix("/v1").Subrouter()

	v1.HandleFunc("/accounts", s.handle(s.createAccount)).Methods(http.MethodPost)
	v1.HandleFunc("/accounts/{kind:id|address}/{key}", s.handle(s.getAccount)).Methods(http.MethodGet)
	v1.HandleFunc("/accounts/{kind:id|address}/{key}/balance", s.handle(s.getBalance)).Methods(http.MethodGet)
	v1.HandleFunc("/accounts/{kind:id|address}/{key}/transactions", s.handle(s.accountTransactions)).
		Methods(http.MethodGet)
	v1.HandleFunc("/accounts/{kind:id|address}/{key}/deposits", s.handle(s.accountDeposits)).Methods(http.MethodGet)
	v1.HandleFunc("/accounts/{kind:id|address}/{key}/withdrawals", s.handle(s.accountWithdrawals)).
		Methods(http.MethodGet)
	v1.HandleFunc("/accounts/{kind:id|address}/{key}/proof", s.handle(s.stateProof)).Methods(http.MethodGet)

	v1.HandleFunc("/transactions", s.handle(s.submitTransaction)).Methods(http.MethodPost)
	v1.HandleFunc("/transactions/{hash}", s.handle(s.getTransaction)).Methods(http.MethodGet)
	v1.HandleFunc("/gas/{type}", s.handle(s.estimateGas)).Methods(http.MethodGet)

	v1.HandleFunc("/bridge", s.handle(s.bridgeInfo)).Methods(http.MethodGet)
	v1.HandleFunc("/bridge/deposits/{id}", s.handle(s.getDeposit)).Methods(http.MethodGet)
	v1.HandleFunc("/bridge/deposits/{id}/claim", s.handle(s.claimDeposit)).Methods(http.MethodPost)
	v1.HandleFunc("/bridge/withdrawals", s.handle(s.requestWithdrawal)).Methods(http.MethodPost)
	v1.HandleFunc("/bridge/withdrawals/{id}", s.handle(s.getWithdrawal)).Methods(http.MethodGet)
	v1.HandleFunc("/bridge/withdrawals/{id}/challenge", s.handle(s.challengeWithdrawal)).Methods(http.MethodPost)

	v1.HandleFunc("/validators", s.handle(s.registerValidator)).Methods(http.MethodPost)
	v1.HandleFunc("/validators", s.handle(s.listValidators)).Methods(http.MethodGet)
	v1.HandleFunc("/validators/{id}", s.handle(s.getValidator)).Methods(http.MethodGet)
	v1.HandleFunc("/validators/{id}/claim", s.handle(s.claimRewards)).Methods(http.MethodPost)
	v1.HandleFunc("/validators/{id}/deactivate", s.handle(s.deactivateValidator)).Methods(http.MethodPost)
	v1.HandleFunc("/validators/{id}/slash", s.handle(s.slashValidator)).Methods(http.MethodPost)

	v1.HandleFunc("/batches", s.handle(s.listBatches)).Methods(http.MethodGet)
	v1.HandleFunc("/batches/{id:[0-9]+}", s.handle(s.getBatch)).Methods(http.MethodGet)
	v1.HandleFunc("/fraud/check", s.handle(s.checkFraud)).Methods(http.MethodPost)

	v1.HandleFunc("/consensus/status", s.handle(s.consensusStatus)).Methods(http.MethodGet)
	r.HandleFunc(consensus.VotePath, s.handle(s.vote)).Methods(http.MethodPost)
	r.HandleFunc(consensus.HeartbeatPath, s.handle(s.heartbeat)).Methods(http.MethodPost)
}

// created marks a response body that should be sent with 201.
type created struct {
	body any
}

type handlerFunc func(r *http.Request) (any, error)

func (s *Server) handle(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
		}
		body, err := h(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		status := http.StatusOK
		if c, ok := body.(created); ok {
			status, body = http.StatusCreated, c.body
		}
		writeJSON(w, status, body)
	}
}

type errorResponse struct {
	Code    errcode.Code      `json:"code"`
	Message string            `json:"message"`
	Proof   *fraudproof.Proof `json:"proof,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := errcode.From(err)
	if e.Code == errcode.CodeInternal {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	} else {
		s.logger.Debug("request rejected",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("error", e.Error()),
		)
	}
	resp := errorResponse{Code: e.Code, Message: e.Message}
	var fraud *fraudError
	if errors.As(err, &fraud) {
		resp.Proof = fraud.proof
	}
	writeJSON(w, e.Code.HTTPStatus(), resp)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errcode.New(errcode.CodeInvalidRequest, "malformed request body: %v", err)
	}
	return nil
}

// limit reads the limit query parameter, bounded by the configured page
// size.
func (s *Server) limit(r *http.Request, def int) (int, error) {
	v, err := queryInt(r, "limit", def)
	if err != nil {
		return 0, err
	}
	if v == 0 {
		return 0, errcode.New(errcode.CodeInvalidRequest, "limit must be positive")
	}
	return min(v, s.cfg.MaxPageSize), nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errcode.New(errcode.CodeInvalidRequest, "invalid %s %q", name, raw)
	}
	return v, nil
}
