package consensus

import (
	"time"

	"github.com/echenim/Bedrock/hybrid/internal/types"
)

// ConsensusRound is the live round bookkeeping. It is owned and mutated
// only by the engine goroutine.
type ConsensusRound struct {
	Height    uint64         `json:"height"`
	Round     uint32         `json:"round"`
	Step      Step           `json:"step"`
	StartTime time.Time      `json:"start_time"`
	Proposer  *types.Address `json:"proposer,omitempty"`

	// Proposals lists proposal ids in arrival order.
	Proposals []types.Hash `json:"proposals"`

	// Votes is the vote pool: height -> vote id -> vote. Votes for every
	// round of a height share the pool; quorum sums filter by round.
	Votes map[uint64]map[types.Hash]*types.Vote `json:"votes"`

	TimedOut       bool        `json:"timed_out"`
	LockedProposal *types.Hash `json:"locked_proposal,omitempty"`
	ValidProposal  *types.Hash `json:"valid_proposal,omitempty"`
}

// NewConsensusRound creates round bookkeeping at the given height.
func NewConsensusRound(height uint64, now time.Time) *ConsensusRound {
	return &ConsensusRound{
		Height:    height,
		Step:      StepPropose,
		StartTime: now,
		Votes:     make(map[uint64]map[types.Hash]*types.Vote),
	}
}

// ResetForHeight starts fresh bookkeeping for height at round 0, dropping
// locks.
func (r *ConsensusRound) ResetForHeight(height uint64, now time.Time) {
	*r = *NewConsensusRound(height, now)
}

// Advance moves to the next round of the same height. Locked and valid
// proposals are kept.
func (r *ConsensusRound) Advance(now time.Time) {
	r.Round++
	r.Step = StepPropose
	r.StartTime = now
	r.Proposer = nil
	r.Proposals = nil
	r.Votes = make(map[uint64]map[types.Hash]*types.Vote)
	r.TimedOut = false
}

// HeightVotes returns the vote pool for the current height.
func (r *ConsensusRound) HeightVotes() map[types.Hash]*types.Vote {
	return r.Votes[r.Height]
}

// HasProposal reports whether id was announced in this round.
func (r *ConsensusRound) HasProposal(id types.Hash) bool {
	for _, p := range r.Proposals {
		if p == id {
			return true
		}
	}
	return false
}

// AddVote inserts v into the pool under its height. The same vote id
// simply overwrites itself.
func (r *ConsensusRound) AddVote(v *types.Vote) {
	pool, ok := r.Votes[v.Height]
	if !ok {
		pool = make(map[types.Hash]*types.Vote)
		r.Votes[v.Height] = pool
	}
	pool[v.ID] = v
}

// VoteCount returns the number of votes pooled for the current height.
func (r *ConsensusRound) VoteCount() int {
	return len(r.Votes[r.Height])
}

// Snapshot returns a copy that shares only immutable votes with r.
func (r *ConsensusRound) Snapshot() ConsensusRound {
	s := *r
	if r.Proposer != nil {
		p := *r.Proposer
		s.Proposer = &p
	}
	if r.LockedProposal != nil {
		l := *r.LockedProposal
		s.LockedProposal = &l
	}
	if r.ValidProposal != nil {
		v := *r.ValidProposal
		s.ValidProposal = &v
	}
	s.Proposals = append([]types.Hash(nil), r.Proposals...)
	s.Votes = make(map[uint64]map[types.Hash]*types.Vote, len(r.Votes))
	for h, pool := range r.Votes {
		cp := make(map[types.Hash]*types.Vote, len(pool))
		for id, v := range pool {
			cp[id] = v
		}
		s.Votes[h] = cp
	}
	return s
}
