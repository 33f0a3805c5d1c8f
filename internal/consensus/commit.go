package consensus

import (
	"github.com/echenim/Bedrock/hybrid/internal/types"
	"go.uber.org/zap"
)

// commit finalizes a proposal: persists it to the sink, archives the
// round and notifies subscribers.
func (e *Engine) commit(id types.Hash) {
	r := e.round
	cert := MakeCertificate(r, e.registry.ActiveValidators(), e.weights, id)
	body, ok := e.bodies[id]

	e.logger.Info("committed proposal",
		zap.Uint64("height", r.Height),
		zap.Uint32("round", r.Round),
		zap.String("id", id.Short()),
		zap.Int("votes", len(cert.Votes)),
		zap.Float64("power", cert.Power),
		zap.Float64("total_power", cert.TotalPower),
	)

	if e.sink != nil {
		if !ok {
			e.logger.Warn("committed proposal body unknown, not persisted",
				zap.String("id", id.Short()))
		} else if err := e.sink.SaveCommit(body); err != nil {
			e.logger.Error("failed to save commit", zap.Error(err))
		}
	}

	e.archive()

	evt := CommitEvent{
		Height:      r.Height,
		Round:       r.Round,
		ProposalID:  id,
		Proposal:    body,
		Certificate: cert,
	}
	select {
	case e.commitCh <- evt:
	default:
		// Don't block if no one is listening.
	}
}
