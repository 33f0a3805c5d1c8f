package consensus

import "github.com/echenim/Bedrock/hybrid/internal/types"

// ConsensusEvent is accepted and emitted by Engine.HandleConsensusEvent.
// Variants the engine does not know are logged and ignored.
type ConsensusEvent interface {
	EventName() string
}

// StartRound prepares bookkeeping for height and applies the trigger's
// weight rebalancing.
type StartRound struct {
	Height  uint64
	Trigger Trigger
}

// NewBlock runs one full Propose/PreVote/Commit cycle on top of
// PreviousHash.
type NewBlock struct {
	Height       uint64
	PreviousHash types.Hash
}

// ValidatorJoined and ValidatorLeft are roster notifications relayed by the
// outer loop; the engine reads membership from the registry instead.
type ValidatorJoined struct{ Address types.Address }
type ValidatorLeft struct{ Address types.Address }

// RoundPrepared is emitted after StartRound.
type RoundPrepared struct {
	Height uint64
}

// RoundCompleted is emitted when a proposal commits.
type RoundCompleted struct {
	Height     uint64
	Round      uint32
	ProposalID types.Hash
}

// RoundFailed is emitted when a round ends without a commit, either with
// ErrNoConsensus or a classified error.
type RoundFailed struct {
	Height uint64
	Round  uint32
	Error  string
	Cause  error `json:"-"`
}

func (StartRound) EventName() string      { return "StartRound" }
func (NewBlock) EventName() string        { return "NewBlock" }
func (ValidatorJoined) EventName() string { return "ValidatorJoined" }
func (ValidatorLeft) EventName() string   { return "ValidatorLeft" }
func (RoundPrepared) EventName() string   { return "RoundPrepared" }
func (RoundCompleted) EventName() string  { return "RoundCompleted" }
func (RoundFailed) EventName() string     { return "RoundFailed" }
