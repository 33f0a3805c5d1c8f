package node

import (
	"fmt"

	"github.com/echenim/Bedrock/hybrid/internal/consensus"
	"github.com/echenim/Bedrock/hybrid/internal/mempool"
	"github.com/echenim/Bedrock/hybrid/internal/storage"
	"github.com/echenim/Bedrock/hybrid/internal/telemetry"
	"github.com/echenim/Bedrock/hybrid/internal/types"
	"go.uber.org/zap"
)

// commitSink persists what the engine commits and archives, and prunes
// committed payloads from the mempool.
type commitSink struct {
	store   storage.Store
	mempool *mempool.Mempool
	metrics *telemetry.Metrics
	logger  *zap.Logger
}

var (
	_ consensus.CommitSink    = (*commitSink)(nil)
	_ consensus.RoundArchiver = (*commitSink)(nil)
)

func newCommitSink(store storage.Store, mp *mempool.Mempool, metrics *telemetry.Metrics, logger *zap.Logger) *commitSink {
	return &commitSink{
		store:   store,
		mempool: mp,
		metrics: metrics,
		logger:  logger.Named("sink"),
	}
}

func (s *commitSink) SaveCommit(p *types.Proposal) error {
	if err := s.store.SaveCommit(p); err != nil {
		return fmt.Errorf("node: persist commit: %w", err)
	}
	s.metrics.CommitsPersisted.Inc()

	// Block data from other proposers may not be in our format.
	removed, err := s.mempool.RemoveCommitted(p.BlockData)
	if err != nil {
		s.logger.Warn("committed block data not decodable",
			zap.Uint64("height", p.Height),
			zap.Error(err),
		)
		return nil
	}
	s.logger.Info("commit persisted",
		zap.Uint64("height", p.Height),
		zap.Uint32("round", p.Round),
		zap.String("id", p.ID.Short()),
		zap.Int("txs_removed", removed),
	)
	return nil
}

func (s *commitSink) ArchiveRound(r consensus.ConsensusRound) error {
	return s.store.SaveRoundSnapshot(roundRecord(r))
}

func roundRecord(r consensus.ConsensusRound) storage.RoundRecord {
	return storage.RoundRecord{
		Height:         r.Height,
		Round:          r.Round,
		Step:           r.Step.String(),
		StartTime:      r.StartTime,
		Proposer:       r.Proposer,
		Proposals:      r.Proposals,
		Votes:          r.VoteCount(),
		TimedOut:       r.TimedOut,
		LockedProposal: r.LockedProposal,
		ValidProposal:  r.ValidProposal,
	}
}
