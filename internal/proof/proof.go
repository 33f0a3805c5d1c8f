// Package proof constructs and checks the stake and storage proofs carried
// in a proposal's consensus proof envelope.
package proof

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/echenim/Bedrock/hybrid/internal/crypto"
	"github.com/echenim/Bedrock/hybrid/internal/types"
)

const (
	// DefaultLockSeconds is the stake lock attached to every proposal (one day).
	DefaultLockSeconds uint64 = 86400
	// DefaultUtilizationPct is the storage utilization figure reported by
	// the hybrid engine.
	DefaultUtilizationPct uint8 = 80
)

var (
	ErrZeroIdentity        = errors.New("proof: zero validator identity")
	ErrZeroLock            = errors.New("proof: lock duration must be positive")
	ErrUtilizationRange    = errors.New("proof: utilization above 100%")
	ErrNoCommitments       = errors.New("proof: storage proof has no commitments")
	ErrCommitmentMismatch  = errors.New("proof: commitment does not match")
	ErrWrongConsensusType  = errors.New("proof: not a hybrid consensus proof")
	ErrMissingStakeProof   = errors.New("proof: missing stake proof")
	ErrMissingStorageProof = errors.New("proof: missing storage proof")
	ErrProofOwner          = errors.New("proof: proof does not belong to proposer")
)

// Factory builds proofs. Construction validates structure only; zero stake
// and zero capacity are legal and simply carry no power.
type Factory struct{}

// StakeProof constructs a stake proof.
func (Factory) StakeProof(validator types.Address, amount uint64, commitment types.Hash, anchorHeight, lockSeconds uint64) (*types.StakeProof, error) {
	if validator.IsZero() {
		return nil, ErrZeroIdentity
	}
	if lockSeconds == 0 {
		return nil, ErrZeroLock
	}
	return &types.StakeProof{
		Validator:    validator,
		Amount:       amount,
		Commitment:   commitment,
		AnchorHeight: anchorHeight,
		LockSeconds:  lockSeconds,
	}, nil
}

// StorageProof constructs a storage proof.
func (Factory) StorageProof(contentHash types.Hash, capacity uint64, utilizationPct uint8, challenges, commitments []types.Hash) (*types.StorageProof, error) {
	if contentHash.IsZero() {
		return nil, ErrZeroIdentity
	}
	if utilizationPct > 100 {
		return nil, fmt.Errorf("%w: %d", ErrUtilizationRange, utilizationPct)
	}
	if len(commitments) == 0 {
		return nil, ErrNoCommitments
	}
	if challenges == nil {
		challenges = []types.Hash{}
	}
	return &types.StorageProof{
		ContentHash:    contentHash,
		Capacity:       capacity,
		UtilizationPct: utilizationPct,
		Challenges:     append([]types.Hash(nil), challenges...),
		Commitments:    append([]types.Hash(nil), commitments...),
	}, nil
}

// StakeCommitment binds an identity to a stake amount.
func StakeCommitment(validator types.Address, amount uint64) types.Hash {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], amount)
	return crypto.HashDomain(types.DomainStakeCommitment, validator[:], buf[:])
}

// StorageCommitment binds an identity to a storage capacity.
func StorageCommitment(validator types.Address, capacity uint64) types.Hash {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], capacity)
	return crypto.HashDomain(types.DomainStorageCommitment, validator[:], buf[:])
}

// AnchorHeight returns the height a stake proof built at height is anchored
// to: the previous height, floored at zero.
func AnchorHeight(height uint64) uint64 {
	if height == 0 {
		return 0
	}
	return height - 1
}

// VerifyStakeProof checks that the commitment matches validator and amount.
func VerifyStakeProof(p *types.StakeProof) error {
	if p == nil {
		return ErrMissingStakeProof
	}
	if p.Validator.IsZero() {
		return ErrZeroIdentity
	}
	if p.LockSeconds == 0 {
		return ErrZeroLock
	}
	if p.Commitment != StakeCommitment(p.Validator, p.Amount) {
		return fmt.Errorf("%w: stake", ErrCommitmentMismatch)
	}
	return nil
}

// VerifyStorageProof checks that the first commitment matches the content
// identity and capacity.
func VerifyStorageProof(p *types.StorageProof) error {
	if p == nil {
		return ErrMissingStorageProof
	}
	if p.UtilizationPct > 100 {
		return ErrUtilizationRange
	}
	if len(p.Commitments) == 0 {
		return ErrNoCommitments
	}
	owner := types.Address(p.ContentHash)
	if p.Commitments[0] != StorageCommitment(owner, p.Capacity) {
		return fmt.Errorf("%w: storage", ErrCommitmentMismatch)
	}
	return nil
}

// VerifyConsensusProof checks a hybrid proof envelope attached by proposer.
func VerifyConsensusProof(cp *types.ConsensusProof, proposer types.Address) error {
	if cp.ConsensusType != types.ConsensusHybrid {
		return ErrWrongConsensusType
	}
	if err := VerifyStakeProof(cp.StakeProof); err != nil {
		return err
	}
	if err := VerifyStorageProof(cp.StorageProof); err != nil {
		return err
	}
	if cp.StakeProof.Validator != proposer || types.Address(cp.StorageProof.ContentHash) != proposer {
		return ErrProofOwner
	}
	return nil
}
