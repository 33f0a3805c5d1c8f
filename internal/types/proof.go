package types

// ConsensusType identifies the consensus family a proof envelope belongs to.
type ConsensusType int

const (
	ConsensusHybrid ConsensusType = iota
	ConsensusProofOfStake
	ConsensusProofOfStorage
	ConsensusProofOfWork
)

func (c ConsensusType) String() string {
	switch c {
	case ConsensusHybrid:
		return "Hybrid"
	case ConsensusProofOfStake:
		return "ProofOfStake"
	case ConsensusProofOfStorage:
		return "ProofOfStorage"
	case ConsensusProofOfWork:
		return "ProofOfWork"
	default:
		return "Unknown"
	}
}

// StakeProof binds a validator to a locked stake anchored at a height.
type StakeProof struct {
	Validator    Address `json:"validator"`
	Amount       uint64  `json:"amount"`
	Commitment   Hash    `json:"commitment"`
	AnchorHeight uint64  `json:"anchor_height"`
	LockSeconds  uint64  `json:"lock_seconds"`
}

// StorageProof attests to provided storage capacity.
type StorageProof struct {
	ContentHash    Hash   `json:"content_hash"`
	Capacity       uint64 `json:"capacity"`
	UtilizationPct uint8  `json:"utilization_pct"`
	Challenges     []Hash `json:"challenges"`
	Commitments    []Hash `json:"commitments"`
}

// WorkProof is carried for envelope compatibility; the hybrid engine never
// populates it.
type WorkProof struct {
	Nonce      uint64 `json:"nonce"`
	Difficulty uint64 `json:"difficulty"`
	Digest     Hash   `json:"digest"`
}

// ZkDidProof is carried for envelope compatibility; unused here.
type ZkDidProof struct {
	Proof []byte `json:"proof"`
}

// ConsensusProof is the proof envelope attached to every proposal.
type ConsensusProof struct {
	ConsensusType ConsensusType `json:"consensus_type"`
	StakeProof    *StakeProof   `json:"stake_proof,omitempty"`
	StorageProof  *StorageProof `json:"storage_proof,omitempty"`
	WorkProof     *WorkProof    `json:"work_proof,omitempty"`
	ZkDidProof    *ZkDidProof   `json:"zk_did_proof,omitempty"`
	Timestamp     uint64        `json:"timestamp"`
}
