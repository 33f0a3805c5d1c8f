package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/echenim/Bedrock/hybrid/internal/consensus"
	"github.com/echenim/Bedrock/hybrid/internal/mempool"
	"github.com/echenim/Bedrock/hybrid/internal/power"
	"github.com/echenim/Bedrock/hybrid/internal/types"
	"go.uber.org/zap"
)

// requestTimeout bounds how long a handler waits for the consensus actor.
const requestTimeout = 3 * time.Second

// Inspector runs a closure on the goroutine that owns the engine.
// *consensus.Dispatcher implements it.
type Inspector interface {
	Inspect(ctx context.Context, fn func(*consensus.Engine)) error
}

// MempoolReader reports pool statistics.
type MempoolReader interface {
	Stats() mempool.Stats
}

// Server provides admin/debug endpoints.
// These are intended for operators, not exposed publicly.
type Server struct {
	httpServer *http.Server
	consensus  Inspector
	mempool    MempoolReader
	logger     *zap.Logger
	lis        net.Listener
}

// NewServer creates an admin debug server. Either collaborator may be nil.
func NewServer(addr string, consensus Inspector, mempool MempoolReader, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		consensus: consensus,
		mempool:   mempool,
		logger:    logger.Named("admin"),
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	return s
}

// Handler returns the admin routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/consensus", s.handleConsensusState)
	mux.HandleFunc("/admin/history", s.handleHistory)
	mux.HandleFunc("/admin/validators", s.handleValidators)
	mux.HandleFunc("/admin/mempool", s.handleMempoolStatus)
	mux.HandleFunc("/admin/weights", s.handleWeights)
	return mux
}

// Start begins serving admin endpoints.
func (s *Server) Start(ctx context.Context) error {
	var err error
	s.lis, err = net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("admin: listen on %s: %w", s.httpServer.Addr, err)
	}

	s.logger.Info("admin server starting", zap.String("addr", s.lis.Addr().String()))

	go func() {
		if err := s.httpServer.Serve(s.lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("admin server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts down the admin server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// Name returns the service name.
func (s *Server) Name() string {
	return "admin"
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.lis == nil {
		return s.httpServer.Addr
	}
	return s.lis.Addr().String()
}

// ConsensusState is the body of GET /admin/consensus.
type ConsensusState struct {
	Address        types.Address       `json:"address"`
	Height         uint64              `json:"height"`
	Round          uint32              `json:"round"`
	Step           string              `json:"step"`
	Proposer       *types.Address      `json:"proposer,omitempty"`
	Weights        power.HybridWeights `json:"weights"`
	Proposals      int                 `json:"proposals"`
	Votes          int                 `json:"votes"`
	TimedOut       bool                `json:"timed_out"`
	LockedProposal *types.Hash         `json:"locked_proposal,omitempty"`
	ValidProposal  *types.Hash         `json:"valid_proposal,omitempty"`
	Evidence       int                 `json:"evidence"`
}

// ValidatorInfo is one entry of GET /admin/validators.
type ValidatorInfo struct {
	types.Validator
	Power     float64 `json:"power"`
	Candidate bool    `json:"proposer_candidate"`
}

// ValidatorSet is the body of GET /admin/validators.
type ValidatorSet struct {
	Weights         power.HybridWeights `json:"weights"`
	TotalPower      float64             `json:"total_power"`
	QuorumThreshold float64             `json:"quorum_threshold"`
	Validators      []ValidatorInfo     `json:"validators"`
}

// WeightsRequest is the body of POST /admin/weights.
type WeightsRequest struct {
	StakeWeight   *float64 `json:"stake_weight"`
	StorageWeight *float64 `json:"storage_weight"`
}

func (s *Server) handleConsensusState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var state ConsensusState
	if !s.inspect(w, r, func(e *consensus.Engine) {
		cur := e.CurrentRound().Snapshot()
		state = ConsensusState{
			Address:        e.Address(),
			Height:         cur.Height,
			Round:          cur.Round,
			Step:           cur.Step.String(),
			Proposer:       cur.Proposer,
			Weights:        e.Weights(),
			Proposals:      len(cur.Proposals),
			Votes:          cur.VoteCount(),
			TimedOut:       cur.TimedOut,
			LockedProposal: cur.LockedProposal,
			ValidProposal:  cur.ValidProposal,
			Evidence:       e.Evidence().Size(),
		}
	}) {
		return
	}

	writeJSON(w, state)
}

// handleHistory returns archived rounds, oldest first. ?limit=n keeps
// only the n most recent.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	var history []consensus.ConsensusRound
	if !s.inspect(w, r, func(e *consensus.Engine) {
		history = e.History()
	}) {
		return
	}
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}

	writeJSON(w, history)
}

func (s *Server) handleValidators(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var set ValidatorSet
	if !s.inspect(w, r, func(e *consensus.Engine) {
		wts := e.Weights()
		vals := e.ValidatorManager().ActiveValidators()

		candidates := make(map[types.Address]bool)
		for _, c := range consensus.ProposerCandidates(vals, wts) {
			candidates[c.Address] = true
		}

		total := power.TotalPower(vals, wts)
		set = ValidatorSet{
			Weights:         wts,
			TotalPower:      total,
			QuorumThreshold: power.QuorumThreshold(total),
			Validators:      make([]ValidatorInfo, 0, len(vals)),
		}
		for _, v := range vals {
			set.Validators = append(set.Validators, ValidatorInfo{
				Validator: v,
				Power:     power.Power(v, wts),
				Candidate: candidates[v.Address],
			})
		}
	}) {
		return
	}

	writeJSON(w, set)
}

func (s *Server) handleMempoolStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.mempool == nil {
		http.Error(w, "mempool not available", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, s.mempool.Stats())
}

// handleWeights updates the hybrid weights. Omitted fields keep their
// current value; out-of-range values are clamped by the engine.
func (s *Server) handleWeights(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req WeightsRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<12))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.StakeWeight == nil && req.StorageWeight == nil {
		http.Error(w, "stake_weight or storage_weight required", http.StatusBadRequest)
		return
	}

	var updated power.HybridWeights
	if !s.inspect(w, r, func(e *consensus.Engine) {
		cur := e.Weights()
		if req.StakeWeight != nil {
			cur.StakeWeight = *req.StakeWeight
		}
		if req.StorageWeight != nil {
			cur.StorageWeight = *req.StorageWeight
		}
		e.UpdateWeights(cur.StakeWeight, cur.StorageWeight)
		updated = e.Weights()
	}) {
		return
	}

	s.logger.Info("weights updated by operator",
		zap.Float64("stake_weight", updated.StakeWeight),
		zap.Float64("storage_weight", updated.StorageWeight),
	)
	writeJSON(w, updated)
}

// inspect runs fn through the consensus actor and writes an error
// response when that is not possible.
func (s *Server) inspect(w http.ResponseWriter, r *http.Request, fn func(*consensus.Engine)) bool {
	if s.consensus == nil {
		http.Error(w, "consensus not available", http.StatusServiceUnavailable)
		return false
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	if err := s.consensus.Inspect(ctx, fn); err != nil {
		status := http.StatusServiceUnavailable
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		http.Error(w, err.Error(), status)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding error", http.StatusInternalServerError)
	}
}
