package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/echenim/Bedrock/hybrid/internal/types"
	"go.uber.org/zap"
)

// PebbleStore persists records in a pebble database. Every write is
// synced before returning.
type PebbleStore struct {
	mu     sync.Mutex
	db     *pebble.DB
	latest uint64
	logger *zap.Logger
}

// OpenPebble opens or creates the database at dir.
func OpenPebble(dir string, logger *zap.Logger) (*PebbleStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("storage: open pebble at %s: %w", dir, err)
	}

	s := &PebbleStore{db: db, logger: logger.Named("storage")}
	latest, err := s.readLatest()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.latest = latest

	s.logger.Info("opened commit store",
		zap.String("path", dir),
		zap.Uint64("latest_height", latest),
	)
	return s, nil
}

func (s *PebbleStore) SaveCommit(p *types.Proposal) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("storage: encode commit: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return ErrClosed
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(commitKey(p.Height), data, nil); err != nil {
		return fmt.Errorf("storage: stage commit: %w", err)
	}
	latest := s.latest
	if p.Height > latest {
		latest = p.Height
		if err := b.Set(keyLatest, binary.BigEndian.AppendUint64(nil, latest), nil); err != nil {
			return fmt.Errorf("storage: stage latest height: %w", err)
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("storage: write commit: %w", err)
	}
	s.latest = latest

	s.logger.Debug("saved commit",
		zap.Uint64("height", p.Height),
		zap.String("id", p.ID.Short()),
	)
	return nil
}

func (s *PebbleStore) GetCommit(height uint64) (*types.Proposal, error) {
	var p types.Proposal
	if err := s.getJSON(commitKey(height), &p); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: commit at height %d", ErrNotFound, height)
		}
		return nil, err
	}
	return &p, nil
}

func (s *PebbleStore) LatestHeight() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return 0, ErrClosed
	}
	return s.latest, nil
}

func (s *PebbleStore) SaveRoundSnapshot(rec RoundRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("storage: encode round: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return ErrClosed
	}
	if err := s.db.Set(roundKey(rec.Height, rec.Round), data, pebble.Sync); err != nil {
		return fmt.Errorf("storage: write round: %w", err)
	}
	return nil
}

func (s *PebbleStore) GetRoundSnapshot(height uint64, round uint32) (*RoundRecord, error) {
	var rec RoundRecord
	if err := s.getJSON(roundKey(height, round), &rec); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: round %d/%d", ErrNotFound, height, round)
		}
		return nil, err
	}
	return &rec, nil
}

func (s *PebbleStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *PebbleStore) readLatest() (uint64, error) {
	val, closer, err := s.db.Get(keyLatest)
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("storage: read latest height: %w", err)
	}
	defer closer.Close()
	if len(val) != 8 {
		return 0, fmt.Errorf("storage: corrupt latest height (%d bytes)", len(val))
	}
	return binary.BigEndian.Uint64(val), nil
}

// getJSON decodes the value at key into out. The value is only valid
// until closer is closed, so decoding happens first.
func (s *PebbleStore) getJSON(key []byte, out any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return ErrClosed
	}

	val, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("storage: read: %w", err)
	}
	defer closer.Close()

	if err := json.Unmarshal(val, out); err != nil {
		return fmt.Errorf("storage: decode: %w", err)
	}
	return nil
}
