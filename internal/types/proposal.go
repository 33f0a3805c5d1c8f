package types

import "encoding/binary"

// Proposal is a candidate block authored by the round's proposer.
// It is immutable once built and referenced by ID afterwards.
type Proposal struct {
	ID             Hash           `json:"id"`
	Proposer       Address        `json:"proposer"`
	Height         uint64         `json:"height"`
	Round          uint32         `json:"round"`
	PreviousHash   Hash           `json:"previous_hash"`
	BlockData      []byte         `json:"block_data"`
	Timestamp      uint64         `json:"timestamp"`
	Signature      Signature      `json:"signature"`
	ConsensusProof ConsensusProof `json:"consensus_proof"`
}

// IDSegments returns the byte segments the proposal id is derived from.
// Order: height(8 LE) || round(4 LE) || previous_hash || block_data || proposer.
func (p *Proposal) IDSegments() [][]byte {
	var hr [12]byte
	binary.LittleEndian.PutUint64(hr[:8], p.Height)
	binary.LittleEndian.PutUint32(hr[8:], p.Round)
	return [][]byte{
		hr[:8],
		hr[8:],
		p.PreviousHash[:],
		p.BlockData,
		p.Proposer[:],
	}
}

// SigningPayload returns the canonical bytes to sign for this proposal.
// Format: id(32) || proposer(32) || block_data || domain tag
func (p *Proposal) SigningPayload() []byte {
	buf := make([]byte, 0, 64+len(p.BlockData)+len(DomainProposal))
	buf = append(buf, p.ID[:]...)
	buf = append(buf, p.Proposer[:]...)
	buf = append(buf, p.BlockData...)
	buf = append(buf, DomainProposal...)
	return buf
}

// SlashingEvidence wraps evidence of validator misbehaviour.
type SlashingEvidence struct {
	DoubleVote *DoubleVoteEvidence `json:"double_vote,omitempty"`
	Height     uint64              `json:"height"`
	Timestamp  uint64              `json:"timestamp"`
}

// DoubleVoteEvidence proves a validator voted for two different proposals
// in the same height, round and phase.
type DoubleVoteEvidence struct {
	VoteA       *Vote   `json:"vote_a"`
	VoteB       *Vote   `json:"vote_b"`
	ValidatorID Address `json:"validator_id"`
}
