package consensus

import (
	"bytes"
	"sort"

	"github.com/echenim/Bedrock/hybrid/internal/power"
	"github.com/echenim/Bedrock/hybrid/internal/types"
)

// CommitCertificate collects the commit votes that finalized a proposal.
type CommitCertificate struct {
	ProposalID types.Hash    `json:"proposal_id"`
	Height     uint64        `json:"height"`
	Round      uint32        `json:"round"`
	Votes      []*types.Vote `json:"votes"`
	Power      float64       `json:"power"`
	TotalPower float64       `json:"total_power"`
}

// MakeCertificate gathers the live round's commit votes for proposalID,
// one per active voter, ordered by voter address.
func MakeCertificate(r *ConsensusRound, vals []types.Validator, w power.HybridWeights, proposalID types.Hash) *CommitCertificate {
	pt := newPowerTable(vals, w)
	cert := &CommitCertificate{
		ProposalID: proposalID,
		Height:     r.Height,
		Round:      r.Round,
		TotalPower: pt.total,
	}

	seen := make(map[types.Address]struct{})
	for _, v := range r.HeightVotes() {
		if v.Type != types.VoteCommit || v.Round != r.Round || v.ProposalID != proposalID {
			continue
		}
		if _, ok := pt.byAddr[v.Voter]; !ok {
			continue
		}
		if _, dup := seen[v.Voter]; dup {
			continue
		}
		seen[v.Voter] = struct{}{}
		cert.Votes = append(cert.Votes, v)
	}
	sort.Slice(cert.Votes, func(i, j int) bool {
		return bytes.Compare(cert.Votes[i].Voter[:], cert.Votes[j].Voter[:]) < 0
	})
	for _, v := range cert.Votes {
		cert.Power += pt.byAddr[v.Voter]
	}
	return cert
}
