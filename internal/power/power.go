// Package power computes hybrid voting power: a blend of staked capital,
// provided storage and a small reputation bonus.
//
//	power = sqrt(stake)*stake_weight + (storage_bytes/2^30)*storage_weight + reputation/1000
//
// The square root dampens stake concentration while storage scales
// linearly per GiB.
package power

import (
	"math"

	"github.com/echenim/Bedrock/hybrid/internal/types"
)

const (
	// BytesPerGiB converts provided storage into GiB units.
	BytesPerGiB = 1 << 30
	// ReputationDivisor scales reputation into a minor additive bonus.
	ReputationDivisor = 1000.0
)

// HybridWeights scale the stake and storage terms. Each lies in [0,1];
// they need not sum to 1.
type HybridWeights struct {
	StakeWeight   float64 `json:"stake_weight"`
	StorageWeight float64 `json:"storage_weight"`
}

// Preset weightings applied by the adaptive rebalancing handlers.
var (
	// BFTWeights favours stake after a timeout.
	BFTWeights = HybridWeights{StakeWeight: 0.8, StorageWeight: 0.2}
	// WorkProofWeights favours storage once work-proof evidence is seen.
	WorkProofWeights = HybridWeights{StakeWeight: 0.3, StorageWeight: 0.7}
	// BalancedWeights is applied on difficulty adjustment.
	BalancedWeights = HybridWeights{StakeWeight: 0.5, StorageWeight: 0.5}
)

// NewWeights returns weights with both values clamped to [0,1].
func NewWeights(stake, storage float64) HybridWeights {
	return HybridWeights{
		StakeWeight:   clampUnit(stake),
		StorageWeight: clampUnit(storage),
	}
}

// Clamped returns a copy of w with both values clamped to [0,1].
func (w HybridWeights) Clamped() HybridWeights {
	return NewWeights(w.StakeWeight, w.StorageWeight)
}

func clampUnit(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// Power returns the hybrid voting power of v under w. Activity is not
// consulted here; callers pass only validators that count.
func Power(v types.Validator, w HybridWeights) float64 {
	stakeTerm := math.Sqrt(float64(v.Stake)) * w.StakeWeight
	storageTerm := float64(v.StorageProvided) / BytesPerGiB * w.StorageWeight
	reputationTerm := float64(v.Reputation) / ReputationDivisor
	return stakeTerm + storageTerm + reputationTerm
}

// TotalPower sums Power over vals in address order, so every node adding
// up the same set gets the same bits.
func TotalPower(vals []types.Validator, w HybridWeights) float64 {
	sorted := make([]types.Validator, len(vals))
	copy(sorted, vals)
	types.SortByAddress(sorted)

	var total float64
	for _, v := range sorted {
		total += Power(v, w)
	}
	return total
}

// QuorumTolerance is the relative slack allowed below an exact two-thirds
// share. Powers carry square roots, so a share that is two thirds in real
// arithmetic can sum a few ulps short in float64.
const QuorumTolerance = 1e-12

// HasQuorum reports whether power is at least two thirds of total, up to
// QuorumTolerance. A zero total never has quorum.
func HasQuorum(power, total float64) bool {
	if total <= 0 {
		return false
	}
	return 3*power >= 2*total*(1-QuorumTolerance)
}

// QuorumThreshold returns two thirds of total, for display.
func QuorumThreshold(total float64) float64 {
	return total * 2 / 3
}
