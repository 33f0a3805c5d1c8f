package node

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/echenim/Bedrock/hybrid/internal/consensus"
	"github.com/echenim/Bedrock/hybrid/internal/storage"
	"github.com/echenim/Bedrock/hybrid/internal/types"
	"go.uber.org/zap"
)

// Pacer is the outer event loop. It opens the first round after the last
// persisted commit, then asks for one block per height. A failed round
// is retried at the same height after a timeout trigger.
type Pacer struct {
	dispatcher *consensus.Dispatcher
	store      storage.Store
	logger     *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPacer creates a pacer driving dispatcher from the tip of store.
func NewPacer(dispatcher *consensus.Dispatcher, store storage.Store, logger *zap.Logger) *Pacer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pacer{
		dispatcher: dispatcher,
		store:      store,
		logger:     logger.Named("pacer"),
	}
}

// Start resumes from the store and runs the loop until Stop.
func (p *Pacer) Start(ctx context.Context) error {
	height, prev, err := p.resume()
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return errors.New("node: pacer already running")
	}
	ctx, p.cancel = context.WithCancel(ctx)

	p.logger.Info("pacer starting",
		zap.Uint64("height", height),
		zap.String("previous", prev.Short()),
	)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx, height, prev)
	}()
	return nil
}

// Stop ends the loop and waits for it to exit.
func (p *Pacer) Stop() error {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
	return nil
}

func (p *Pacer) Name() string { return "pacer" }

// resume returns the next height to decide and the id it must extend.
func (p *Pacer) resume() (uint64, types.Hash, error) {
	latest, err := p.store.LatestHeight()
	if err != nil {
		return 0, types.ZeroHash, fmt.Errorf("node: read latest height: %w", err)
	}
	if latest == 0 {
		return 1, types.ZeroHash, nil
	}
	tip, err := p.store.GetCommit(latest)
	if err != nil {
		return 0, types.ZeroHash, fmt.Errorf("node: read commit %d: %w", latest, err)
	}
	return latest + 1, tip.ID, nil
}

func (p *Pacer) run(ctx context.Context, height uint64, prev types.Hash) {
	if !p.submit(ctx, consensus.StartRound{Height: height}) {
		return
	}

	for {
		out, err := p.dispatcher.Submit(ctx, consensus.NewBlock{Height: height, PreviousHash: prev})
		if err != nil {
			p.exit(ctx, err)
			return
		}

		for _, ev := range out {
			switch ev := ev.(type) {
			case consensus.RoundCompleted:
				height = ev.Height + 1
				prev = ev.ProposalID

			case consensus.RoundFailed:
				p.logger.Info("round failed, retrying",
					zap.Uint64("height", ev.Height),
					zap.Uint32("round", ev.Round),
					zap.String("reason", ev.Error),
				)
				if !p.submit(ctx, consensus.StartRound{Height: height, Trigger: consensus.TriggerTimeout}) {
					return
				}
			}
		}
	}
}

func (p *Pacer) submit(ctx context.Context, ev consensus.ConsensusEvent) bool {
	if _, err := p.dispatcher.Submit(ctx, ev); err != nil {
		p.exit(ctx, err)
		return false
	}
	return true
}

func (p *Pacer) exit(ctx context.Context, err error) {
	if ctx.Err() != nil || errors.Is(err, consensus.ErrDispatcherStopped) {
		p.logger.Info("pacer stopped")
		return
	}
	p.logger.Error("pacer stopped on error", zap.Error(err))
}
