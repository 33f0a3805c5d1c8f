package consensus

// DefaultHistorySize is the number of past rounds retained.
const DefaultHistorySize = 100

// RoundHistory retains the most recent round snapshots in a fixed-size
// ring buffer, evicting the oldest first.
type RoundHistory struct {
	ring     []ConsensusRound
	pos      int
	size     int
	capacity int
}

// NewRoundHistory creates a history with the given capacity.
func NewRoundHistory(capacity int) *RoundHistory {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &RoundHistory{
		ring:     make([]ConsensusRound, capacity),
		capacity: capacity,
	}
}

// Push records a snapshot, overwriting the oldest entry when full.
func (h *RoundHistory) Push(r ConsensusRound) {
	h.ring[h.pos] = r
	h.pos = (h.pos + 1) % h.capacity
	if h.size < h.capacity {
		h.size++
	}
}

// Len returns the number of retained snapshots.
func (h *RoundHistory) Len() int {
	return h.size
}

// Capacity returns the maximum number of retained snapshots.
func (h *RoundHistory) Capacity() int {
	return h.capacity
}

// Snapshots returns the retained snapshots, oldest first.
func (h *RoundHistory) Snapshots() []ConsensusRound {
	out := make([]ConsensusRound, 0, h.size)
	start := (h.pos - h.size + h.capacity) % h.capacity
	for i := 0; i < h.size; i++ {
		out = append(out, h.ring[(start+i)%h.capacity])
	}
	return out
}
