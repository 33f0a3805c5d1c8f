package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/echenim/Bedrock/hybrid/internal/config"
	"github.com/echenim/Bedrock/hybrid/internal/types"
)

func testProposal(height uint64, tag byte) *types.Proposal {
	return &types.Proposal{
		ID:        types.Hash{tag, byte(height)},
		Proposer:  types.Address{tag},
		Height:    height,
		BlockData: []byte{tag, tag},
		Timestamp: 1_700_000_000 + height,
		Signature: types.Signature{0xAA, tag},
		ConsensusProof: types.ConsensusProof{
			ConsensusType: types.ConsensusHybrid,
		},
	}
}

// backends runs fn against each store implementation.
func backends(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) {
		s := NewMemoryStore()
		defer s.Close()
		fn(t, s)
	})
	t.Run("pebble", func(t *testing.T) {
		s, err := OpenPebble(t.TempDir(), nil)
		require.NoError(t, err)
		defer s.Close()
		fn(t, s)
	})
}

func TestCommitRoundTrip(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		p := testProposal(3, 1)
		require.NoError(t, s.SaveCommit(p))

		got, err := s.GetCommit(3)
		require.NoError(t, err)
		require.Equal(t, p, got)

		_, err = s.GetCommit(4)
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestLatestHeight(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		h, err := s.LatestHeight()
		require.NoError(t, err)
		require.Zero(t, h)

		require.NoError(t, s.SaveCommit(testProposal(2, 1)))
		require.NoError(t, s.SaveCommit(testProposal(5, 1)))
		require.NoError(t, s.SaveCommit(testProposal(4, 1)))

		h, err = s.LatestHeight()
		require.NoError(t, err)
		require.Equal(t, uint64(5), h)
	})
}

func TestCommitOverwrite(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		require.NoError(t, s.SaveCommit(testProposal(1, 1)))
		require.NoError(t, s.SaveCommit(testProposal(1, 2)))

		got, err := s.GetCommit(1)
		require.NoError(t, err)
		require.Equal(t, types.Address{2}, got.Proposer)
	})
}

func TestRoundSnapshotRoundTrip(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		locked := types.Hash{9}
		proposer := types.Address{7}
		rec := RoundRecord{
			Height:         8,
			Round:          2,
			Step:           "commit",
			StartTime:      time.Unix(1_700_000_000, 0).UTC(),
			Proposer:       &proposer,
			Proposals:      []types.Hash{{1}, {2}},
			Votes:          6,
			LockedProposal: &locked,
		}
		require.NoError(t, s.SaveRoundSnapshot(rec))

		got, err := s.GetRoundSnapshot(8, 2)
		require.NoError(t, err)
		require.Equal(t, rec, *got)

		_, err = s.GetRoundSnapshot(8, 3)
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestClosedStore(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		require.NoError(t, s.Close())
		require.ErrorIs(t, s.SaveCommit(testProposal(1, 1)), ErrClosed)
		_, err := s.GetCommit(1)
		require.ErrorIs(t, err, ErrClosed)
		_, err = s.LatestHeight()
		require.ErrorIs(t, err, ErrClosed)
	})
}

func TestPebbleReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "commits")

	s, err := OpenPebble(dir, nil)
	require.NoError(t, err)
	p := testProposal(12, 3)
	require.NoError(t, s.SaveCommit(testProposal(11, 3)))
	require.NoError(t, s.SaveCommit(p))
	require.NoError(t, s.Close())

	s, err = OpenPebble(dir, nil)
	require.NoError(t, err)
	defer s.Close()

	h, err := s.LatestHeight()
	require.NoError(t, err)
	require.Equal(t, uint64(12), h)

	got, err := s.GetCommit(12)
	require.NoError(t, err)
	require.Equal(t, p, got)
}

func TestOpenBackends(t *testing.T) {
	s, err := Open(config.StorageConfig{Backend: config.BackendMemory}, nil)
	require.NoError(t, err)
	require.IsType(t, &MemoryStore{}, s)
	require.NoError(t, s.Close())

	s, err = Open(config.StorageConfig{Backend: config.BackendPebble, DBPath: t.TempDir()}, nil)
	require.NoError(t, err)
	require.IsType(t, &PebbleStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(config.StorageConfig{Backend: "sqlite"}, nil)
	require.Error(t, err)
}
