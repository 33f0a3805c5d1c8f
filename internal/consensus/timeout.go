package consensus

import (
	"context"
	"time"
)

// waitPhase suspends the round for d while draining inbound messages and
// serving inspections. It returns early only when early quorum exit is enabled and done reports
// true, or when ctx is cancelled.
func (e *Engine) waitPhase(ctx context.Context, d time.Duration, done func() bool) error {
	e.replayPending()
	if e.cfg.EarlyQuorumExit && done() {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-timer.C:
			e.metrics.TimeoutsTriggered.Inc()
			return nil

		case in := <-e.inspectCh:
			in.run(e)

		case m := <-e.inboundCh:
			e.route(m)
			if e.cfg.EarlyQuorumExit && done() {
				return nil
			}
		}
	}
}
