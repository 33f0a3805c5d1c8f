package mempool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/echenim/Bedrock/hybrid/internal/config"
	"github.com/echenim/Bedrock/hybrid/internal/power"
	"github.com/echenim/Bedrock/hybrid/internal/telemetry"
	"github.com/echenim/Bedrock/hybrid/internal/types"
	"go.uber.org/zap"
)

var (
	ErrDuplicateTx = errors.New("mempool: duplicate transaction")
	ErrCommittedTx = errors.New("mempool: transaction recently committed")
	ErrPoolFull    = errors.New("mempool: full and tx fee too low")
)

// Stats summarizes the pool for operators.
type Stats struct {
	Size          int          `json:"size"`
	Bytes         int          `json:"bytes"`
	MaxSize       int          `json:"max_size"`
	MaxBlockBytes int          `json:"max_block_bytes"`
	Committed     int          `json:"recently_committed"`
	Pending       []types.Hash `json:"pending"`
}

// Mempool holds opaque payloads until a proposal includes them. It
// implements consensus.BlockAssembler.
type Mempool struct {
	mu        sync.RWMutex
	queue     *txQueue
	byHash    map[types.Hash]*Tx
	bytes     int
	committed *RecentSet[types.Hash]
	cfg       config.MempoolConfig
	metrics   *telemetry.Metrics
	logger    *zap.Logger
}

// NewMempool creates an empty pool.
func NewMempool(cfg config.MempoolConfig, metrics *telemetry.Metrics, logger *zap.Logger) *Mempool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}
	return &Mempool{
		queue:     newTxQueue(),
		byHash:    make(map[types.Hash]*Tx),
		committed: NewRecentSet[types.Hash](cfg.CacheSize),
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger.Named("mempool"),
	}
}

// Submit wraps payload with fee and adds it to the pool.
func (m *Mempool) Submit(payload []byte, fee uint64) (types.Hash, error) {
	return m.AddTx(EncodeTx(payload, fee))
}

// AddTx validates and adds a raw transaction. When the pool is full the
// lowest-fee transaction is evicted if the new one pays strictly more.
func (m *Mempool) AddTx(raw []byte) (types.Hash, error) {
	tx, err := ParseTx(raw, m.cfg.MaxTxBytes)
	if err != nil {
		m.metrics.TxsRejected.Inc()
		return types.ZeroHash, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byHash[tx.Hash]; exists {
		m.metrics.TxsRejected.Inc()
		return tx.Hash, ErrDuplicateTx
	}
	if m.committed.Contains(tx.Hash) {
		m.metrics.TxsRejected.Inc()
		return tx.Hash, ErrCommittedTx
	}

	if m.cfg.MaxSize > 0 && len(m.byHash) >= m.cfg.MaxSize {
		lowest := m.queue.lowest()
		if lowest == nil || tx.Fee <= lowest.Fee {
			m.metrics.TxsRejected.Inc()
			return types.ZeroHash, ErrPoolFull
		}
		m.removeLocked(lowest.Hash)
		m.logger.Debug("evicted transaction",
			zap.String("hash", lowest.Hash.Short()),
			zap.Uint64("fee", lowest.Fee),
		)
	}

	m.byHash[tx.Hash] = tx
	m.bytes += tx.Size
	m.queue.insert(tx)
	m.metrics.TxsAccepted.Inc()
	m.metrics.MempoolSize.Set(float64(len(m.byHash)))

	m.logger.Debug("transaction added",
		zap.String("hash", tx.Hash.Short()),
		zap.Uint64("fee", tx.Fee),
		zap.Int("pool_size", len(m.byHash)),
	)
	return tx.Hash, nil
}

// BlockData assembles the payload for a proposal at (height, round).
// Transactions are taken in fee order and any that would overflow
// max_block_bytes are skipped.
func (m *Mempool) BlockData(height uint64, round uint32, w power.HybridWeights) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := m.cfg.MaxBlockBytes
	if limit > 0 && limit < blockHeaderSize {
		return nil, fmt.Errorf("mempool: max_block_bytes %d below header size %d", limit, blockHeaderSize)
	}

	var (
		txs  [][]byte
		size = blockHeaderSize
	)
	for _, tx := range m.queue.ordered() {
		next := size + 4 + tx.Size
		if limit > 0 && next > limit {
			continue
		}
		txs = append(txs, tx.Raw)
		size = next
	}

	return EncodeBlock(BlockHeader{Height: height, Round: round, Weights: w}, txs), nil
}

// RemoveTxs drops transactions by hash and remembers them as committed.
func (m *Mempool) RemoveTxs(hashes []types.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, h := range hashes {
		m.removeLocked(h)
		m.committed.Add(h)
	}
	m.metrics.MempoolSize.Set(float64(len(m.byHash)))
}

// RemoveCommitted drops every transaction carried by a committed block
// payload and returns how many were in the pool.
func (m *Mempool) RemoveCommitted(blockData []byte) (int, error) {
	_, txs, err := DecodeBlock(blockData)
	if err != nil {
		return 0, err
	}

	hashes := make([]types.Hash, len(txs))
	present := 0
	for i, raw := range txs {
		hashes[i] = TxHash(raw)
		if m.Has(hashes[i]) {
			present++
		}
	}
	m.RemoveTxs(hashes)
	return present, nil
}

func (m *Mempool) removeLocked(h types.Hash) {
	tx, ok := m.byHash[h]
	if !ok {
		return
	}
	delete(m.byHash, h)
	m.bytes -= tx.Size
	m.queue.remove(tx)
}

// Size returns the number of pending transactions.
func (m *Mempool) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byHash)
}

// Has reports whether a transaction is pending.
func (m *Mempool) Has(h types.Hash) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byHash[h]
	return ok
}

// Get returns a pending transaction by hash.
func (m *Mempool) Get(h types.Hash) (*Tx, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.byHash[h]
	return tx, ok
}

// Flush removes every pending transaction. The committed cache is kept.
func (m *Mempool) Flush() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.byHash = make(map[types.Hash]*Tx)
	m.queue = newTxQueue()
	m.bytes = 0
	m.metrics.MempoolSize.Set(0)
}

// Stats returns a summary with pending hashes in priority order.
func (m *Mempool) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{
		Size:          len(m.byHash),
		Bytes:         m.bytes,
		MaxSize:       m.cfg.MaxSize,
		MaxBlockBytes: m.cfg.MaxBlockBytes,
		Committed:     m.committed.Len(),
		Pending:       m.queue.hashes(),
	}
}
