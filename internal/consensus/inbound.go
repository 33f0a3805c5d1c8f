package consensus

import "go.uber.org/zap"

// route dispatches an inbound message by its position relative to the
// live (height, round): stale heights are dropped, messages ahead are
// stashed until the round catches up.
func (e *Engine) route(m inbound) {
	height, round := m.position()
	switch {
	case height < e.round.Height:
		e.logger.Debug("dropping message for past height",
			zap.Uint64("got", height),
			zap.Uint64("want", e.round.Height),
		)
		return

	case height > e.round.Height || round > e.round.Round:
		e.stash(m)
		return
	}

	if m.proposal != nil {
		if round < e.round.Round {
			return
		}
		e.handleProposal(m.proposal)
		return
	}
	// Votes from earlier rounds of this height are pooled; quorum sums
	// ignore them.
	e.handleVote(m.vote)
}

func (e *Engine) stash(m inbound) {
	if len(e.pending) >= e.cfg.InboundQueue {
		e.logger.Warn("pending message stash full, dropping oldest")
		e.pending = e.pending[1:]
	}
	e.pending = append(e.pending, m)
}

// replayPending routes stashed messages that the live round has caught up
// with and discards those that fell behind.
func (e *Engine) replayPending() {
	if len(e.pending) == 0 {
		return
	}
	kept := e.pending[:0]
	var ready []inbound
	for _, m := range e.pending {
		height, round := m.position()
		switch {
		case height < e.round.Height:
		case height > e.round.Height || round > e.round.Round:
			kept = append(kept, m)
		default:
			ready = append(ready, m)
		}
	}
	e.pending = kept
	for _, m := range ready {
		e.route(m)
	}
}
