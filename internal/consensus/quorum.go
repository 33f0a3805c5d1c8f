package consensus

import (
	"bytes"
	"sort"

	"github.com/echenim/Bedrock/hybrid/internal/power"
	"github.com/echenim/Bedrock/hybrid/internal/types"
)

// powerTable is a snapshot of hybrid power for the active set.
type powerTable struct {
	byAddr map[types.Address]float64
	total  float64
}

func newPowerTable(vals []types.Validator, w power.HybridWeights) powerTable {
	t := powerTable{byAddr: make(map[types.Address]float64, len(vals))}
	for _, v := range vals {
		t.byAddr[v.Address] = power.Power(v, w)
	}
	t.total = power.TotalPower(vals, w)
	return t
}

// tally sums the power behind each proposal for votes of type vt cast in
// the live round. A voter counts at most once per proposal and votes
// from outside the active set carry no power. Each sum is taken in voter
// address order so it does not depend on map iteration.
func tally(r *ConsensusRound, vt types.VoteType, pt powerTable) map[types.Hash]float64 {
	voters := make(map[types.Hash]map[types.Address]struct{})
	for _, v := range r.HeightVotes() {
		if v.Type != vt || v.Round != r.Round || v.Height != r.Height {
			continue
		}
		if _, ok := pt.byAddr[v.Voter]; !ok {
			continue
		}
		set, ok := voters[v.ProposalID]
		if !ok {
			set = make(map[types.Address]struct{})
			voters[v.ProposalID] = set
		}
		set[v.Voter] = struct{}{}
	}

	sums := make(map[types.Hash]float64, len(voters))
	for id, set := range voters {
		addrs := make([]types.Address, 0, len(set))
		for addr := range set {
			addrs = append(addrs, addr)
		}
		sort.Slice(addrs, func(i, j int) bool {
			return bytes.Compare(addrs[i][:], addrs[j][:]) < 0
		})
		var sum float64
		for _, addr := range addrs {
			sum += pt.byAddr[addr]
		}
		sums[id] = sum
	}
	return sums
}

// BestPendingProposal returns the first proposal announced in the round.
func BestPendingProposal(r *ConsensusRound) (types.Hash, bool) {
	if len(r.Proposals) == 0 {
		return types.ZeroHash, false
	}
	return r.Proposals[0], true
}

// PreVoteQuorum returns the proposal whose pre-vote power in the live
// round reaches two thirds of the active set's total power. Announced
// proposals are checked in arrival order, then any others by id.
func PreVoteQuorum(r *ConsensusRound, vals []types.Validator, w power.HybridWeights) (types.Hash, bool) {
	pt := newPowerTable(vals, w)
	sums := tally(r, types.VotePreVote, pt)
	for _, id := range candidateOrder(r, sums) {
		if power.HasQuorum(sums[id], pt.total) {
			return id, true
		}
	}
	return types.ZeroHash, false
}

// HasCommitQuorum reports whether commit votes for proposalID in the live
// round reach two thirds of the active set's total power.
func HasCommitQuorum(r *ConsensusRound, vals []types.Validator, w power.HybridWeights, proposalID types.Hash) bool {
	pt := newPowerTable(vals, w)
	sums := tally(r, types.VoteCommit, pt)
	return power.HasQuorum(sums[proposalID], pt.total)
}

func candidateOrder(r *ConsensusRound, sums map[types.Hash]float64) []types.Hash {
	order := make([]types.Hash, 0, len(sums))
	for _, id := range r.Proposals {
		if _, ok := sums[id]; ok {
			order = append(order, id)
		}
	}
	var rest []types.Hash
	for id := range sums {
		if !r.HasProposal(id) {
			rest = append(rest, id)
		}
	}
	sort.Slice(rest, func(i, j int) bool {
		return bytes.Compare(rest[i][:], rest[j][:]) < 0
	})
	return append(order, rest...)
}
