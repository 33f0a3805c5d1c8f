package consensus

import (
	"context"
	"errors"
	"time"

	"github.com/echenim/Bedrock/hybrid/internal/power"
	"github.com/echenim/Bedrock/hybrid/internal/types"
	"go.uber.org/zap"
)

// HandleConsensusEvent processes one event to completion, including any
// phase waits, and returns the events it emits. ctx cancels a running
// round, which then fails with the context error.
func (e *Engine) HandleConsensusEvent(ctx context.Context, ev ConsensusEvent) []ConsensusEvent {
	switch ev := ev.(type) {
	case StartRound:
		return e.handleStartRound(ev)
	case *StartRound:
		return e.handleStartRound(*ev)
	case NewBlock:
		return e.handleNewBlock(ctx, ev)
	case *NewBlock:
		return e.handleNewBlock(ctx, *ev)
	case nil:
		return nil
	default:
		e.logger.Debug("ignoring consensus event", zap.String("event", ev.EventName()))
		return nil
	}
}

func (e *Engine) handleStartRound(ev StartRound) []ConsensusEvent {
	if !e.rebalance(ev.Trigger) {
		e.logger.Info("no rebalancing for trigger",
			zap.Uint64("height", ev.Height),
			zap.Stringer("trigger", ev.Trigger),
		)
	}

	now := e.clock()
	if ev.Height != e.round.Height {
		e.resetForHeight(ev.Height, now)
	} else {
		// Re-preparing the live height keeps the round number so proposer
		// rotation continues across retries.
		e.round.Step = StepPropose
		e.round.StartTime = now
	}
	e.publishRound()

	e.logger.Info("round prepared",
		zap.Uint64("height", e.round.Height),
		zap.Uint32("round", e.round.Round),
	)
	return []ConsensusEvent{RoundPrepared{Height: ev.Height}}
}

func (e *Engine) handleNewBlock(ctx context.Context, ev NewBlock) []ConsensusEvent {
	if ev.Height != e.round.Height {
		e.resetForHeight(ev.Height, e.clock())
	}
	height, round := e.round.Height, e.round.Round
	start := time.Now()

	id, err := e.runRound(ctx, ev.PreviousHash)
	e.metrics.RoundDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		e.metrics.RoundsFailed.Inc()
		if errors.Is(err, ErrNoConsensus) {
			e.logger.Info("round ended without consensus",
				zap.Uint64("height", height),
				zap.Uint32("round", round),
			)
		} else {
			e.logger.Warn("round failed",
				zap.Uint64("height", height),
				zap.Uint32("round", round),
				zap.Error(err),
			)
		}
		e.advanceToNextRound()
		return []ConsensusEvent{RoundFailed{
			Height: height,
			Round:  round,
			Error:  err.Error(),
			Cause:  err,
		}}
	}

	e.metrics.RoundsCompleted.Inc()
	e.commit(id)
	return []ConsensusEvent{RoundCompleted{Height: height, Round: round, ProposalID: id}}
}

// runRound drives one Propose -> PreVote -> Commit cycle and returns the
// committed proposal id, ErrNoConsensus, or a classified error.
func (e *Engine) runRound(ctx context.Context, previousHash types.Hash) (types.Hash, error) {
	r := e.round
	r.ValidProposal = nil
	e.enterStep(StepPropose)
	e.publishRound()
	e.replayPending()

	vals := e.registry.ActiveValidators()
	e.metrics.ActiveValidators.Set(float64(len(vals)))
	e.metrics.TotalPower.Set(power.TotalPower(vals, e.weights))

	proposer, ok := SelectProposer(vals, e.weights, r.Height, r.Round)
	if !ok {
		return types.ZeroHash, validatorError("no proposer available")
	}
	addr := proposer.Address
	r.Proposer = &addr

	e.logger.Debug("entering propose",
		zap.Uint64("height", r.Height),
		zap.Uint32("round", r.Round),
		zap.String("proposer", addr.Short()),
	)

	if !e.address.IsZero() && addr == e.address {
		p, err := e.CreateProposal(previousHash)
		if err != nil {
			return types.ZeroHash, err
		}
		e.addProposal(p)
		e.metrics.ProposalsCreated.Inc()
		if e.transport != nil {
			if err := e.transport.BroadcastProposal(p); err != nil {
				e.logger.Error("failed to broadcast proposal", zap.Error(err))
			}
		}
	}

	if err := e.waitPhase(ctx, e.cfg.ProposeTimeout, func() bool {
		return len(r.Proposals) > 0
	}); err != nil {
		return types.ZeroHash, err
	}

	// PreVote.
	e.enterStep(StepPreVote)
	if id, ok := BestPendingProposal(r); ok {
		if _, err := e.CastVote(id, types.VotePreVote); err != nil {
			return types.ZeroHash, err
		}
	}
	if err := e.waitPhase(ctx, e.cfg.PreVoteTimeout, func() bool {
		_, ok := PreVoteQuorum(r, e.registry.ActiveValidators(), e.weights)
		return ok
	}); err != nil {
		return types.ZeroHash, err
	}
	if id, ok := PreVoteQuorum(r, e.registry.ActiveValidators(), e.weights); ok {
		r.ValidProposal = &id
	}

	// Commit.
	e.enterStep(StepCommit)
	if r.ValidProposal != nil {
		locked := *r.ValidProposal
		r.LockedProposal = &locked
		if _, err := e.CastVote(*r.ValidProposal, types.VoteCommit); err != nil {
			return types.ZeroHash, err
		}
	}
	if err := e.waitPhase(ctx, e.cfg.PreCommitTimeout, func() bool {
		return r.ValidProposal != nil &&
			HasCommitQuorum(r, e.registry.ActiveValidators(), e.weights, *r.ValidProposal)
	}); err != nil {
		return types.ZeroHash, err
	}

	if r.ValidProposal != nil &&
		HasCommitQuorum(r, e.registry.ActiveValidators(), e.weights, *r.ValidProposal) {
		return *r.ValidProposal, nil
	}
	r.TimedOut = true
	return types.ZeroHash, ErrNoConsensus
}

// advanceToNextRound archives the live round and moves to round+1 of the
// same height.
func (e *Engine) advanceToNextRound() {
	e.archive()
	e.round.Advance(e.clock())
	e.publishRound()
	e.logger.Debug("advanced to next round",
		zap.Uint64("height", e.round.Height),
		zap.Uint32("round", e.round.Round),
	)
}

func (e *Engine) resetForHeight(height uint64, now time.Time) {
	e.round.ResetForHeight(height, now)
	e.bodies = make(map[types.Hash]*types.Proposal)
	e.publishRound()
}

func (e *Engine) archive() {
	snap := e.round.Snapshot()
	e.history.Push(snap)
	if e.archiver != nil {
		if err := e.archiver.ArchiveRound(snap); err != nil {
			e.logger.Error("failed to archive round", zap.Error(err))
		}
	}
}
