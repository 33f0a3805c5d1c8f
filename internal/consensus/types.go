package consensus

import (
	"fmt"
	"time"

	"github.com/echenim/Bedrock/hybrid/internal/power"
	"github.com/echenim/Bedrock/hybrid/internal/telemetry"
	"github.com/echenim/Bedrock/hybrid/internal/types"
	"go.uber.org/zap"
)

// Step represents the current phase of a consensus round.
type Step int

const (
	StepPropose Step = iota
	StepPreVote
	StepCommit
)

func (s Step) String() string {
	switch s {
	case StepPropose:
		return "Propose"
	case StepPreVote:
		return "PreVote"
	case StepCommit:
		return "Commit"
	default:
		return "Unknown"
	}
}

// MarshalText renders the step by name.
func (s Step) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a step name written by MarshalText.
func (s *Step) UnmarshalText(text []byte) error {
	for _, c := range []Step{StepPropose, StepPreVote, StepCommit} {
		if c.String() == string(text) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("consensus: unknown step %q", text)
}

// Trigger is the external signal carried by StartRound that selects an
// adaptive weight rebalancing.
type Trigger int

const (
	TriggerUnknown Trigger = iota
	TriggerTimeout
	TriggerWorkProofFound
	TriggerDifficultyAdjustment
)

func (t Trigger) String() string {
	switch t {
	case TriggerTimeout:
		return "timeout"
	case TriggerWorkProofFound:
		return "work_proof_found"
	case TriggerDifficultyAdjustment:
		return "difficulty_adjustment"
	default:
		return "unknown"
	}
}

// ParseTrigger maps the wire name of a trigger to its value. Unrecognised
// names map to TriggerUnknown.
func ParseTrigger(s string) Trigger {
	switch s {
	case "timeout":
		return TriggerTimeout
	case "work_proof_found":
		return TriggerWorkProofFound
	case "difficulty_adjustment":
		return TriggerDifficultyAdjustment
	default:
		return TriggerUnknown
	}
}

// ValidatorRegistry is the read-only view of the validator roster.
// Implementations must reflect membership at call time.
type ValidatorRegistry interface {
	ActiveValidators() []types.Validator
	Validator(addr types.Address) (types.Validator, bool)
}

// BlockAssembler supplies the opaque block payload for a proposal.
type BlockAssembler interface {
	BlockData(height uint64, round uint32, w power.HybridWeights) ([]byte, error)
}

// Signer signs consensus messages on behalf of a validator identity.
type Signer interface {
	Sign(msg []byte, signer types.Address) (types.Signature, error)
}

// Verifier checks signatures on received proposals and votes.
type Verifier interface {
	Verify(pubKey, msg []byte, sig types.Signature) bool
}

// ProofFactory constructs the stake and storage proofs carried by a
// proposal.
type ProofFactory interface {
	StakeProof(validator types.Address, amount uint64, commitment types.Hash, anchorHeight, lockSeconds uint64) (*types.StakeProof, error)
	StorageProof(contentHash types.Hash, capacity uint64, utilizationPct uint8, challenges, commitments []types.Hash) (*types.StorageProof, error)
}

// Transport abstracts sending proposals and votes to peers.
type Transport interface {
	BroadcastProposal(p *types.Proposal) error
	BroadcastVote(v *types.Vote) error
}

// CommitSink receives every committed proposal.
type CommitSink interface {
	SaveCommit(p *types.Proposal) error
}

// RoundArchiver receives every round snapshot pushed into history.
type RoundArchiver interface {
	ArchiveRound(r ConsensusRound) error
}

// Clock returns the current wall time.
type Clock func() time.Time

// EngineConfig holds configuration for the consensus engine.
type EngineConfig struct {
	// Address is the local validator identity. Zero means the node has no
	// identity yet; see Engine.SetValidatorIdentity.
	Address types.Address

	Registry  ValidatorRegistry
	Assembler BlockAssembler
	Signer    Signer
	Verifier  Verifier
	Proofs    ProofFactory
	Transport Transport
	Sink      CommitSink
	Archiver  RoundArchiver
	Clock     Clock
	Logger    *zap.Logger
	Metrics   *telemetry.Metrics

	// Weights are the initial hybrid weights; they are clamped.
	Weights power.HybridWeights

	ProposeTimeout   time.Duration
	PreVoteTimeout   time.Duration
	PreCommitTimeout time.Duration

	// EarlyQuorumExit ends a phase wait as soon as its outcome is known
	// instead of always waiting the full timeout.
	EarlyQuorumExit bool

	HistorySize  int // round snapshots retained (default: 100)
	InboundQueue int // buffered inbound messages (default: 256)
}

// DefaultEngineConfig returns an EngineConfig with sensible defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Weights:          power.BalancedWeights,
		ProposeTimeout:   3 * time.Second,
		PreVoteTimeout:   time.Second,
		PreCommitTimeout: time.Second,
		HistorySize:      DefaultHistorySize,
		InboundQueue:     256,
	}
}
