package consensus

import (
	"fmt"

	"github.com/echenim/Bedrock/hybrid/internal/crypto"
	"github.com/echenim/Bedrock/hybrid/internal/proof"
	"github.com/echenim/Bedrock/hybrid/internal/types"
	"go.uber.org/zap"
)

// CreateProposal builds and signs a proposal for the live round:
//  1. Fetch the block payload from the assembler
//  2. Derive the deterministic proposal id
//  3. Attach the hybrid consensus proof
//  4. Sign id, proposer, payload and domain tag
func (e *Engine) CreateProposal(previousHash types.Hash) (*types.Proposal, error) {
	if e.address.IsZero() {
		return nil, validatorError("no validator identity configured")
	}
	_, ts, err := e.now()
	if err != nil {
		return nil, err
	}

	var blockData []byte
	if e.assembler != nil {
		blockData, err = e.assembler.BlockData(e.round.Height, e.round.Round, e.weights)
		if err != nil {
			return nil, fmt.Errorf("consensus: assemble block: %w", err)
		}
	}

	p := &types.Proposal{
		Proposer:     e.address,
		Height:       e.round.Height,
		Round:        e.round.Round,
		PreviousHash: previousHash,
		BlockData:    blockData,
		Timestamp:    ts,
	}
	p.ID = crypto.ProposalID(p)

	cp, err := e.createConsensusProof()
	if err != nil {
		return nil, err
	}
	p.ConsensusProof = *cp

	sig, err := e.signer.Sign(p.SigningPayload(), e.address)
	if err != nil {
		return nil, &Error{Kind: KindValidator, Msg: "sign proposal", Err: err}
	}
	p.Signature = sig

	e.logger.Info("created proposal",
		zap.Uint64("height", p.Height),
		zap.Uint32("round", p.Round),
		zap.String("id", p.ID.Short()),
		zap.Int("block_bytes", len(blockData)),
	)
	return p, nil
}

// createConsensusProof assembles the hybrid proof envelope from the local
// validator's registry record.
func (e *Engine) createConsensusProof() (*types.ConsensusProof, error) {
	if e.address.IsZero() {
		return nil, validatorError("no validator identity configured")
	}
	v, ok := e.registry.Validator(e.address)
	if !ok {
		return nil, validatorError("validator record missing for " + e.address.Short())
	}
	_, ts, err := e.now()
	if err != nil {
		return nil, err
	}

	stake, err := e.proofs.StakeProof(
		v.Address,
		v.Stake,
		proof.StakeCommitment(v.Address, v.Stake),
		proof.AnchorHeight(e.round.Height),
		proof.DefaultLockSeconds,
	)
	if err != nil {
		return nil, proofError(err)
	}

	storage, err := e.proofs.StorageProof(
		types.Hash(v.Address),
		v.StorageProvided,
		proof.DefaultUtilizationPct,
		[]types.Hash{},
		[]types.Hash{proof.StorageCommitment(v.Address, v.StorageProvided)},
	)
	if err != nil {
		return nil, proofError(err)
	}

	return &types.ConsensusProof{
		ConsensusType: types.ConsensusHybrid,
		StakeProof:    stake,
		StorageProof:  storage,
		Timestamp:     ts,
	}, nil
}

// ValidateProposal checks a received proposal against the live round:
//   - height and round match
//   - the id is the deterministic derivation of its contents
//   - the proposer is the one selected for (height, round)
//   - the signature verifies under the proposer's key
//   - the consensus proof belongs to the proposer and is consistent
func (e *Engine) ValidateProposal(p *types.Proposal) error {
	if p == nil {
		return fmt.Errorf("nil proposal")
	}
	if p.Height != e.round.Height {
		return fmt.Errorf("proposal height %d != expected %d", p.Height, e.round.Height)
	}
	if p.Round != e.round.Round {
		return fmt.Errorf("proposal round %d != expected %d", p.Round, e.round.Round)
	}
	if id := crypto.ProposalID(p); id != p.ID {
		return fmt.Errorf("proposal id mismatch: got %s, derived %s", p.ID.Short(), id.Short())
	}

	expected, ok := SelectProposer(e.registry.ActiveValidators(), e.weights, p.Height, p.Round)
	if !ok {
		return fmt.Errorf("no proposer for (h=%d, r=%d)", p.Height, p.Round)
	}
	if p.Proposer != expected.Address {
		return fmt.Errorf("wrong proposer: got %s, expected %s",
			p.Proposer.Short(), expected.Address.Short())
	}

	if !e.verifier.Verify(expected.PublicKey, p.SigningPayload(), p.Signature) {
		return fmt.Errorf("invalid proposal signature")
	}

	if err := proof.VerifyConsensusProof(&p.ConsensusProof, p.Proposer); err != nil {
		return fmt.Errorf("consensus proof: %w", err)
	}
	return nil
}

// handleProposal processes a received proposal message.
func (e *Engine) handleProposal(p *types.Proposal) {
	if _, known := e.bodies[p.ID]; known && p.Height == e.round.Height {
		return
	}
	if err := e.ValidateProposal(p); err != nil {
		e.metrics.MessagesRejected.Inc()
		e.logger.Warn("invalid proposal", zap.Error(err))
		return
	}
	e.addProposal(p)
}

func (e *Engine) addProposal(p *types.Proposal) {
	if _, known := e.bodies[p.ID]; !known {
		e.bodies[p.ID] = p
	}
	if !e.round.HasProposal(p.ID) {
		e.round.Proposals = append(e.round.Proposals, p.ID)
	}
}
