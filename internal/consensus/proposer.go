package consensus

import (
	"bytes"
	"sort"

	"github.com/echenim/Bedrock/hybrid/internal/power"
	"github.com/echenim/Bedrock/hybrid/internal/types"
)

// MaxProposerCandidates bounds proposer rotation to the strongest
// validators.
const MaxProposerCandidates = 5

// ProposerCandidates returns up to MaxProposerCandidates validators ordered
// by hybrid power, highest first. Equal power is ordered by address so the
// result never depends on registry ordering.
func ProposerCandidates(vals []types.Validator, w power.HybridWeights) []types.Validator {
	type scored struct {
		v types.Validator
		p float64
	}
	ranked := make([]scored, len(vals))
	for i, v := range vals {
		ranked[i] = scored{v: v, p: power.Power(v, w)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].p != ranked[j].p {
			return ranked[i].p > ranked[j].p
		}
		return bytes.Compare(ranked[i].v.Address[:], ranked[j].v.Address[:]) < 0
	})

	n := len(ranked)
	if n > MaxProposerCandidates {
		n = MaxProposerCandidates
	}
	out := make([]types.Validator, n)
	for i := 0; i < n; i++ {
		out[i] = ranked[i].v
	}
	return out
}

// SelectProposer returns the proposer for (height, round): candidate index
// (height + round) mod len(candidates). It returns false for an empty set.
func SelectProposer(vals []types.Validator, w power.HybridWeights, height uint64, round uint32) (types.Validator, bool) {
	candidates := ProposerCandidates(vals, w)
	if len(candidates) == 0 {
		return types.Validator{}, false
	}
	idx := (height + uint64(round)) % uint64(len(candidates))
	return candidates[idx], true
}
