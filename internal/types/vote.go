package types

import (
	"encoding/binary"
	"fmt"
)

// Signature is an opaque post-quantum signature.
type Signature []byte

// Domain tags mixed into every id and signing payload so a digest of one
// kind can never be replayed as another.
const (
	DomainProposal          = "hybrid/proposal/v1"
	DomainVote              = "hybrid/vote/v1"
	DomainStakeCommitment   = "hybrid/stake-commitment/v1"
	DomainStorageCommitment = "hybrid/storage-commitment/v1"
	DomainAddress           = "hybrid/address/v1"
	DomainTx                = "hybrid/tx/v1"
)

// VoteType distinguishes the two voting phases.
type VoteType uint8

const (
	VotePreVote VoteType = iota + 1
	VoteCommit
)

func (t VoteType) String() string {
	switch t {
	case VotePreVote:
		return "PreVote"
	case VoteCommit:
		return "Commit"
	default:
		return fmt.Sprintf("VoteType(%d)", uint8(t))
	}
}

// Vote is a validator's signed vote for a proposal in one phase.
type Vote struct {
	ID         Hash      `json:"id"`
	Voter      Address   `json:"voter"`
	ProposalID Hash      `json:"proposal_id"`
	Type       VoteType  `json:"vote_type"`
	Height     uint64    `json:"height"`
	Round      uint32    `json:"round"`
	Timestamp  uint64    `json:"timestamp"`
	Signature  Signature `json:"signature"`
}

// IDSegments returns the byte segments the vote id is derived from.
// Order: proposal_id || voter || type(1) || height(8 LE) || round(4 LE).
func (v *Vote) IDSegments() [][]byte {
	var hr [12]byte
	binary.LittleEndian.PutUint64(hr[:8], v.Height)
	binary.LittleEndian.PutUint32(hr[8:], v.Round)
	return [][]byte{
		v.ProposalID[:],
		v.Voter[:],
		{byte(v.Type)},
		hr[:8],
		hr[8:],
	}
}

// SigningPayload returns the canonical bytes to sign for this vote.
// Format: id(32) || voter(32) || proposal_id(32) || type(1) || domain tag
func (v *Vote) SigningPayload() []byte {
	buf := make([]byte, 0, 32*3+1+len(DomainVote))
	buf = append(buf, v.ID[:]...)
	buf = append(buf, v.Voter[:]...)
	buf = append(buf, v.ProposalID[:]...)
	buf = append(buf, byte(v.Type))
	buf = append(buf, DomainVote...)
	return buf
}

// IsEquivocation checks if two votes from the same voter conflict:
// same voter, height, round and phase but a different proposal.
func IsEquivocation(a, b *Vote) bool {
	return a.Voter == b.Voter &&
		a.Height == b.Height &&
		a.Round == b.Round &&
		a.Type == b.Type &&
		a.ProposalID != b.ProposalID
}
