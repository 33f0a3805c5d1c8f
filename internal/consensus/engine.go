package consensus

import (
	"fmt"
	"time"

	"github.com/echenim/Bedrock/hybrid/internal/power"
	"github.com/echenim/Bedrock/hybrid/internal/telemetry"
	"github.com/echenim/Bedrock/hybrid/internal/types"
	"go.uber.org/zap"
)

// inbound is a proposal or vote received from a peer.
type inbound struct {
	proposal *types.Proposal
	vote     *types.Vote
}

func (m inbound) position() (uint64, uint32) {
	if m.proposal != nil {
		return m.proposal.Height, m.proposal.Round
	}
	return m.vote.Height, m.vote.Round
}

// inspection is a closure to run on the engine goroutine.
type inspection struct {
	fn   func(*Engine)
	done chan struct{}
}

func (in inspection) run(e *Engine) {
	defer close(in.done)
	in.fn(e)
}

// CommitEvent signals that a proposal has been committed.
type CommitEvent struct {
	Height      uint64
	Round       uint32
	ProposalID  types.Hash
	Proposal    *types.Proposal // nil if the body never reached this node
	Certificate *CommitCertificate
}

// Engine is the hybrid consensus state machine. Apart from DeliverProposal,
// DeliverVote and SubscribeCommits, its methods must be called from one
// goroutine at a time; Dispatcher provides that.
type Engine struct {
	cfg       EngineConfig
	address   types.Address
	weights   power.HybridWeights
	registry  ValidatorRegistry
	assembler BlockAssembler
	signer    Signer
	verifier  Verifier
	proofs    ProofFactory
	transport Transport
	sink      CommitSink
	archiver  RoundArchiver
	clock     Clock
	logger    *zap.Logger
	metrics   *telemetry.Metrics

	round        *ConsensusRound
	bodies       map[types.Hash]*types.Proposal // proposals seen at the current height
	history      *RoundHistory
	evidencePool *EvidencePool

	inboundCh chan inbound
	inspectCh chan inspection
	pending   []inbound // messages ahead of the live (height, round)
	commitCh  chan CommitEvent
}

// NewEngine creates a new consensus engine from the given config.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("consensus: validator registry required")
	}
	if cfg.Signer == nil {
		return nil, fmt.Errorf("consensus: signer required")
	}
	if cfg.Verifier == nil {
		return nil, fmt.Errorf("consensus: verifier required")
	}
	if cfg.Proofs == nil {
		return nil, fmt.Errorf("consensus: proof factory required")
	}

	defaults := DefaultEngineConfig()
	if cfg.ProposeTimeout <= 0 {
		cfg.ProposeTimeout = defaults.ProposeTimeout
	}
	if cfg.PreVoteTimeout <= 0 {
		cfg.PreVoteTimeout = defaults.PreVoteTimeout
	}
	if cfg.PreCommitTimeout <= 0 {
		cfg.PreCommitTimeout = defaults.PreCommitTimeout
	}
	if cfg.InboundQueue <= 0 {
		cfg.InboundQueue = defaults.InboundQueue
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	e := &Engine{
		cfg:          cfg,
		address:      cfg.Address,
		weights:      cfg.Weights.Clamped(),
		registry:     cfg.Registry,
		assembler:    cfg.Assembler,
		signer:       cfg.Signer,
		verifier:     cfg.Verifier,
		proofs:       cfg.Proofs,
		transport:    cfg.Transport,
		sink:         cfg.Sink,
		archiver:     cfg.Archiver,
		clock:        clock,
		logger:       logger.Named("consensus"),
		metrics:      metrics,
		round:        NewConsensusRound(0, clock()),
		bodies:       make(map[types.Hash]*types.Proposal),
		history:      NewRoundHistory(cfg.HistorySize),
		evidencePool: NewEvidencePool(),
		inboundCh:    make(chan inbound, cfg.InboundQueue),
		inspectCh:    make(chan inspection),
		commitCh:     make(chan CommitEvent, 16),
	}
	e.publishWeights()
	return e, nil
}

// SetValidatorIdentity sets the local validator identity.
func (e *Engine) SetValidatorIdentity(addr types.Address) {
	e.address = addr
	e.logger.Info("validator identity set", zap.String("address", addr.Short()))
}

// UpdateWeights sets the hybrid weights, clamping both to [0,1].
func (e *Engine) UpdateWeights(stakeWeight, storageWeight float64) {
	e.setWeights(power.NewWeights(stakeWeight, storageWeight))
}

func (e *Engine) setWeights(w power.HybridWeights) {
	e.weights = w.Clamped()
	e.publishWeights()
	e.logger.Info("hybrid weights updated",
		zap.Float64("stake_weight", e.weights.StakeWeight),
		zap.Float64("storage_weight", e.weights.StorageWeight),
	)
}

// Weights returns the current hybrid weights.
func (e *Engine) Weights() power.HybridWeights {
	return e.weights
}

// CurrentRound returns the live round bookkeeping (for inspection).
func (e *Engine) CurrentRound() *ConsensusRound {
	return e.round
}

// ValidatorManager returns the validator registry the engine reads from.
func (e *Engine) ValidatorManager() ValidatorRegistry {
	return e.registry
}

// History returns the retained round snapshots, oldest first.
func (e *Engine) History() []ConsensusRound {
	return e.history.Snapshots()
}

// Evidence returns the evidence pool.
func (e *Engine) Evidence() *EvidencePool {
	return e.evidencePool
}

// Address returns the local validator identity.
func (e *Engine) Address() types.Address {
	return e.address
}

// Proposal returns a proposal seen at the current height.
func (e *Engine) Proposal(id types.Hash) (*types.Proposal, bool) {
	p, ok := e.bodies[id]
	return p, ok
}

// SubscribeCommits returns a channel that receives committed proposals.
func (e *Engine) SubscribeCommits() <-chan CommitEvent {
	return e.commitCh
}

// DeliverProposal queues a proposal received from a peer. It is safe for
// concurrent use and never blocks.
func (e *Engine) DeliverProposal(p *types.Proposal) {
	if p == nil {
		return
	}
	e.deliver(inbound{proposal: p})
}

// DeliverVote queues a vote received from a peer. It is safe for
// concurrent use and never blocks.
func (e *Engine) DeliverVote(v *types.Vote) {
	if v == nil {
		return
	}
	e.deliver(inbound{vote: v})
}

func (e *Engine) deliver(m inbound) {
	select {
	case e.inboundCh <- m:
	default:
		e.logger.Warn("inbound queue full, dropping message")
	}
}

// now reads the clock as unix seconds.
func (e *Engine) now() (time.Time, uint64, error) {
	t := e.clock()
	if t.Before(time.Unix(0, 0)) {
		return t, 0, timeError("clock reads before the unix epoch")
	}
	return t, uint64(t.Unix()), nil
}

func (e *Engine) publishWeights() {
	e.metrics.StakeWeight.Set(e.weights.StakeWeight)
	e.metrics.StorageWeight.Set(e.weights.StorageWeight)
}

func (e *Engine) publishRound() {
	e.metrics.ConsensusHeight.Set(float64(e.round.Height))
	e.metrics.ConsensusRound.Set(float64(e.round.Round))
	e.metrics.ConsensusStep.Set(float64(e.round.Step))
}

func (e *Engine) enterStep(s Step) {
	e.round.Step = s
	e.metrics.ConsensusStep.Set(float64(s))
}

// switchToBFTMode favours stake after a timeout.
func (e *Engine) switchToBFTMode() {
	e.logger.Info("switching to BFT weighting")
	e.setWeights(power.BFTWeights)
}

// validateWorkProof favours storage once work-proof evidence is reported.
func (e *Engine) validateWorkProof() {
	e.logger.Info("work proof reported, favouring storage")
	e.setWeights(power.WorkProofWeights)
}

// adjustHybridParameters rebalances stake and storage equally.
func (e *Engine) adjustHybridParameters() {
	e.logger.Info("difficulty adjusted, balancing hybrid weights")
	e.setWeights(power.BalancedWeights)
}

// rebalance applies the weight change selected by t and reports whether
// one was applied.
func (e *Engine) rebalance(t Trigger) bool {
	switch t {
	case TriggerTimeout:
		e.switchToBFTMode()
	case TriggerWorkProofFound:
		e.validateWorkProof()
	case TriggerDifficultyAdjustment:
		e.adjustHybridParameters()
	default:
		return false
	}
	e.metrics.WeightRebalances.WithLabelValues(t.String()).Inc()
	return true
}
