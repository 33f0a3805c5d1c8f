package mempool

import (
	"bytes"
	"sort"

	"github.com/echenim/Bedrock/hybrid/internal/types"
)

// txQueue keeps transactions sorted by fee descending, then hash
// ascending. Reaping is a prefix walk and eviction pops the tail.
type txQueue struct {
	items []*Tx
}

func newTxQueue() *txQueue {
	return &txQueue{}
}

// before reports whether a sorts ahead of b.
func before(a, b *Tx) bool {
	if a.Fee != b.Fee {
		return a.Fee > b.Fee
	}
	return bytes.Compare(a.Hash[:], b.Hash[:]) < 0
}

func (q *txQueue) Len() int { return len(q.items) }

func (q *txQueue) insert(tx *Tx) {
	i := sort.Search(len(q.items), func(i int) bool { return before(tx, q.items[i]) })
	q.items = append(q.items, nil)
	copy(q.items[i+1:], q.items[i:])
	q.items[i] = tx
}

func (q *txQueue) index(tx *Tx) int {
	i := sort.Search(len(q.items), func(i int) bool { return !before(q.items[i], tx) })
	if i < len(q.items) && q.items[i].Hash == tx.Hash {
		return i
	}
	return -1
}

func (q *txQueue) remove(tx *Tx) bool {
	i := q.index(tx)
	if i < 0 {
		return false
	}
	copy(q.items[i:], q.items[i+1:])
	q.items[len(q.items)-1] = nil
	q.items = q.items[:len(q.items)-1]
	return true
}

// lowest returns the transaction that would be evicted first.
func (q *txQueue) lowest() *Tx {
	if len(q.items) == 0 {
		return nil
	}
	return q.items[len(q.items)-1]
}

// ordered returns the queue contents in priority order.
func (q *txQueue) ordered() []*Tx {
	out := make([]*Tx, len(q.items))
	copy(out, q.items)
	return out
}

func (q *txQueue) hashes() []types.Hash {
	out := make([]types.Hash, len(q.items))
	for i, tx := range q.items {
		out[i] = tx.Hash
	}
	return out
}
