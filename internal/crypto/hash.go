package crypto

import (
	"encoding/binary"

	"github.com/echenim/Bedrock/hybrid/internal/types"
	"lukechampine.com/blake3"
)

// HashDomain computes a domain-separated BLAKE3-256 digest over the given
// segments. The domain tag and every segment are length-prefixed (4 bytes
// LE), so segment boundaries cannot be shifted to forge a collision.
func HashDomain(domain string, segments ...[]byte) types.Hash {
	h := blake3.New(types.HashSize, nil)

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(domain)))
	h.Write(lenBuf[:])
	h.Write([]byte(domain))

	for _, seg := range segments {
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(seg)))
		h.Write(lenBuf[:])
		h.Write(seg)
	}

	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// Hash computes the plain BLAKE3-256 digest of data.
func Hash(data []byte) types.Hash {
	return blake3.Sum256(data)
}

// ProposalID derives the deterministic id of a proposal.
func ProposalID(p *types.Proposal) types.Hash {
	return HashDomain(types.DomainProposal, p.IDSegments()...)
}

// VoteID derives the deterministic id of a vote.
func VoteID(v *types.Vote) types.Hash {
	return HashDomain(types.DomainVote, v.IDSegments()...)
}
