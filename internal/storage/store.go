package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/echenim/Bedrock/hybrid/internal/config"
	"github.com/echenim/Bedrock/hybrid/internal/types"
	"go.uber.org/zap"
)

var (
	ErrNotFound = errors.New("storage: not found")
	ErrClosed   = errors.New("storage: store closed")
)

// Store persists committed proposals and archived round snapshots.
type Store interface {
	// SaveCommit records a committed proposal under its height. Saving a
	// second proposal at the same height overwrites the first.
	SaveCommit(p *types.Proposal) error
	// GetCommit returns the committed proposal at height, or ErrNotFound.
	GetCommit(height uint64) (*types.Proposal, error)
	// LatestHeight returns the highest committed height, 0 if none.
	LatestHeight() (uint64, error)

	SaveRoundSnapshot(rec RoundRecord) error
	GetRoundSnapshot(height uint64, round uint32) (*RoundRecord, error)

	Close() error
}

// RoundRecord is the archived summary of one finished round.
type RoundRecord struct {
	Height         uint64         `json:"height"`
	Round          uint32         `json:"round"`
	Step           string         `json:"step"`
	StartTime      time.Time      `json:"start_time"`
	Proposer       *types.Address `json:"proposer,omitempty"`
	Proposals      []types.Hash   `json:"proposals"`
	Votes          int            `json:"votes"`
	TimedOut       bool           `json:"timed_out"`
	LockedProposal *types.Hash    `json:"locked_proposal,omitempty"`
	ValidProposal  *types.Hash    `json:"valid_proposal,omitempty"`
}

// Open returns the backend named by cfg.
func Open(cfg config.StorageConfig, logger *zap.Logger) (Store, error) {
	switch cfg.Backend {
	case config.BackendPebble:
		return OpenPebble(cfg.DBPath, logger)
	case config.BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", cfg.Backend)
	}
}

// Key layout. Heights and rounds are big-endian so keys sort numerically.
var (
	prefixCommit = []byte("c/")
	prefixRound  = []byte("r/")
	keyLatest    = []byte("m/latest_height")
)

func commitKey(height uint64) []byte {
	return binary.BigEndian.AppendUint64(append([]byte{}, prefixCommit...), height)
}

func roundKey(height uint64, round uint32) []byte {
	k := binary.BigEndian.AppendUint64(append([]byte{}, prefixRound...), height)
	return binary.BigEndian.AppendUint32(k, round)
}
