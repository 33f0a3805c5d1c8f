package storage

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/echenim/Bedrock/hybrid/internal/types"
)

type roundKeyT struct {
	height uint64
	round  uint32
}

// MemoryStore keeps records in maps. Values are stored encoded so callers
// never share memory with the store.
type MemoryStore struct {
	mu      sync.RWMutex
	commits map[uint64][]byte
	rounds  map[roundKeyT][]byte
	latest  uint64
	closed  bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		commits: make(map[uint64][]byte),
		rounds:  make(map[roundKeyT][]byte),
	}
}

func (s *MemoryStore) SaveCommit(p *types.Proposal) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("storage: encode commit: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.commits[p.Height] = data
	if p.Height > s.latest {
		s.latest = p.Height
	}
	return nil
}

func (s *MemoryStore) GetCommit(height uint64) (*types.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	data, ok := s.commits[height]
	if !ok {
		return nil, fmt.Errorf("%w: commit at height %d", ErrNotFound, height)
	}
	var p types.Proposal
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("storage: decode commit: %w", err)
	}
	return &p, nil
}

func (s *MemoryStore) LatestHeight() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}
	return s.latest, nil
}

func (s *MemoryStore) SaveRoundSnapshot(rec RoundRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("storage: encode round: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.rounds[roundKeyT{rec.Height, rec.Round}] = data
	return nil
}

func (s *MemoryStore) GetRoundSnapshot(height uint64, round uint32) (*RoundRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	data, ok := s.rounds[roundKeyT{height, round}]
	if !ok {
		return nil, fmt.Errorf("%w: round %d/%d", ErrNotFound, height, round)
	}
	var rec RoundRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("storage: decode round: %w", err)
	}
	return &rec, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
