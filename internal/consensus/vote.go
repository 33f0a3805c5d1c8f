package consensus

import (
	"fmt"

	"github.com/echenim/Bedrock/hybrid/internal/crypto"
	"github.com/echenim/Bedrock/hybrid/internal/types"
	"go.uber.org/zap"
)

// CastVote builds, signs and pools the local validator's vote for
// proposalID in the live round, then broadcasts it. Casting the same vote
// twice yields the same id and leaves the pool unchanged.
func (e *Engine) CastVote(proposalID types.Hash, vt types.VoteType) (*types.Vote, error) {
	if e.address.IsZero() {
		return nil, validatorError("no validator identity configured")
	}
	_, ts, err := e.now()
	if err != nil {
		return nil, err
	}

	v := &types.Vote{
		Voter:      e.address,
		ProposalID: proposalID,
		Type:       vt,
		Height:     e.round.Height,
		Round:      e.round.Round,
		Timestamp:  ts,
	}
	v.ID = crypto.VoteID(v)

	sig, err := e.signer.Sign(v.SigningPayload(), e.address)
	if err != nil {
		return nil, &Error{Kind: KindValidator, Msg: "sign vote", Err: err}
	}
	v.Signature = sig

	if err := e.addVote(v); err != nil {
		return nil, err
	}
	e.metrics.VotesCast.Inc()

	e.logger.Debug("cast vote",
		zap.Stringer("type", vt),
		zap.Uint64("height", v.Height),
		zap.Uint32("round", v.Round),
		zap.String("proposal", proposalID.Short()),
	)

	if e.transport != nil {
		if err := e.transport.BroadcastVote(v); err != nil {
			e.logger.Error("failed to broadcast vote", zap.Error(err))
		}
	}
	return v, nil
}

// addVote inserts a vote into the pool. A vote that conflicts with an
// earlier one from the same voter in the same height, round and phase is
// recorded as evidence and not pooled.
func (e *Engine) addVote(v *types.Vote) error {
	for _, existing := range e.round.Votes[v.Height] {
		if !types.IsEquivocation(existing, v) {
			continue
		}
		_, ts, _ := e.now()
		ev := &types.SlashingEvidence{
			DoubleVote: &types.DoubleVoteEvidence{
				VoteA:       existing,
				VoteB:       v,
				ValidatorID: v.Voter,
			},
			Height:    v.Height,
			Timestamp: ts,
		}
		if err := e.evidencePool.AddEvidence(ev); err != nil {
			e.logger.Error("failed to record evidence", zap.Error(err))
		}
		e.metrics.EvidenceDetected.Inc()
		return fmt.Errorf("consensus: equivocation detected from %s", v.Voter.Short())
	}
	e.round.AddVote(v)
	return nil
}

// ValidateVote checks a received vote: it must come from an active
// validator, carry its derived id and verify under the voter's key.
func (e *Engine) ValidateVote(v *types.Vote) error {
	if v == nil {
		return fmt.Errorf("nil vote")
	}
	if v.Type != types.VotePreVote && v.Type != types.VoteCommit {
		return fmt.Errorf("unknown vote type %d", v.Type)
	}
	val, ok := e.registry.Validator(v.Voter)
	if !ok || !val.Active {
		return fmt.Errorf("vote from inactive or unknown validator %s", v.Voter.Short())
	}
	if id := crypto.VoteID(v); id != v.ID {
		return fmt.Errorf("vote id mismatch: got %s, derived %s", v.ID.Short(), id.Short())
	}
	if !e.verifier.Verify(val.PublicKey, v.SigningPayload(), v.Signature) {
		return fmt.Errorf("invalid vote signature")
	}
	return nil
}

// handleVote processes a received vote message.
func (e *Engine) handleVote(v *types.Vote) {
	if existing, ok := e.round.Votes[v.Height][v.ID]; ok && existing.Voter == v.Voter {
		return
	}
	if err := e.ValidateVote(v); err != nil {
		e.metrics.MessagesRejected.Inc()
		e.logger.Debug("rejected vote", zap.Error(err))
		return
	}
	if err := e.addVote(v); err != nil {
		e.logger.Warn("conflicting vote", zap.Error(err))
		return
	}
	e.metrics.VotesReceived.Inc()
}
