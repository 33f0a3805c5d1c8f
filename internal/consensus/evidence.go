package consensus

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/echenim/Bedrock/hybrid/internal/types"
)

// EvidencePool collects double-vote evidence, keeping the first record
// per validator.
type EvidencePool struct {
	mu       sync.Mutex
	evidence map[types.Address]*types.SlashingEvidence
}

// NewEvidencePool creates a new EvidencePool.
func NewEvidencePool() *EvidencePool {
	return &EvidencePool{
		evidence: make(map[types.Address]*types.SlashingEvidence),
	}
}

// AddEvidence records equivocation evidence.
func (ep *EvidencePool) AddEvidence(ev *types.SlashingEvidence) error {
	if ev == nil {
		return fmt.Errorf("consensus: nil evidence")
	}
	if ev.DoubleVote == nil {
		return fmt.Errorf("consensus: evidence has no double vote")
	}
	if !types.IsEquivocation(ev.DoubleVote.VoteA, ev.DoubleVote.VoteB) {
		return fmt.Errorf("consensus: votes in evidence do not conflict")
	}

	ep.mu.Lock()
	defer ep.mu.Unlock()

	validatorID := ev.DoubleVote.ValidatorID
	// Don't overwrite existing evidence for the same validator.
	if _, exists := ep.evidence[validatorID]; exists {
		return nil
	}

	ep.evidence[validatorID] = ev
	return nil
}

// Pending returns all recorded evidence ordered by validator address.
func (ep *EvidencePool) Pending() []*types.SlashingEvidence {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	result := make([]*types.SlashingEvidence, 0, len(ep.evidence))
	for _, ev := range ep.evidence {
		result = append(result, ev)
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i].DoubleVote.ValidatorID, result[j].DoubleVote.ValidatorID
		return bytes.Compare(a[:], b[:]) < 0
	})
	return result
}

// HasEvidence returns true if evidence exists for the given validator.
func (ep *EvidencePool) HasEvidence(addr types.Address) bool {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	_, ok := ep.evidence[addr]
	return ok
}

// Size returns the number of recorded evidence items.
func (ep *EvidencePool) Size() int {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	return len(ep.evidence)
}
