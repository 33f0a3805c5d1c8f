package types_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/echenim/Bedrock/hybrid/internal/types"
)

// --- Hash & Address ---

func TestHashFromBytesRoundTrip(t *testing.T) {
	b := make([]byte, 32)
	for i := range b {
		b[i] = byte(i)
	}
	h, err := types.HashFromBytes(b)
	if err != nil {
		t.Fatalf("HashFromBytes: %v", err)
	}
	if h.IsZero() {
		t.Fatal("hash should not be zero")
	}
	if h.String() != "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f" {
		t.Fatalf("unexpected hex: %s", h.String())
	}
	if h.Short() != "00010203" {
		t.Fatalf("unexpected short form: %s", h.Short())
	}
}

func TestHashFromBytesRejectsWrongLength(t *testing.T) {
	_, err := types.HashFromBytes([]byte{1, 2, 3})
	if err == nil {
		t.Fatal("should reject wrong length")
	}
}

func TestHashFromHex(t *testing.T) {
	hexStr := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	h, err := types.HashFromHex(hexStr)
	if err != nil {
		t.Fatalf("HashFromHex: %v", err)
	}
	if h.String() != hexStr {
		t.Fatalf("round-trip mismatch: got %s", h.String())
	}
}

func TestAddressFromBytesRoundTrip(t *testing.T) {
	b := make([]byte, 32)
	b[0] = 0xff
	a, err := types.AddressFromBytes(b)
	if err != nil {
		t.Fatalf("AddressFromBytes: %v", err)
	}
	if a.IsZero() {
		t.Fatal("address should not be zero")
	}
}

func TestHashJSONIsHex(t *testing.T) {
	var h types.Hash
	h[0] = 0xab
	data, err := json.Marshal(struct {
		ID types.Hash `json:"id"`
	}{h})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !bytes.Contains(data, []byte(`"ab000000`)) {
		t.Fatalf("expected hex encoding, got %s", data)
	}

	var out struct {
		ID types.Hash `json:"id"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.ID != h {
		t.Fatal("hash changed across JSON")
	}
}

// --- Votes ---

func testVote() *types.Vote {
	return &types.Vote{
		Voter:      types.Address{1},
		ProposalID: types.Hash{2},
		Type:       types.VotePreVote,
		Height:     7,
		Round:      1,
	}
}

func TestVoteIDSegmentsChangeWithRound(t *testing.T) {
	a := testVote()
	b := testVote()
	b.Round = 2

	segA := bytes.Join(a.IDSegments(), nil)
	segB := bytes.Join(b.IDSegments(), nil)
	if bytes.Equal(segA, segB) {
		t.Fatal("round must be part of the vote id preimage")
	}
}

func TestVoteSigningPayloadEndsWithDomain(t *testing.T) {
	v := testVote()
	payload := v.SigningPayload()
	if !bytes.HasSuffix(payload, []byte(types.DomainVote)) {
		t.Fatal("signing payload must end with the vote domain tag")
	}
	if len(payload) != 32*3+1+len(types.DomainVote) {
		t.Fatalf("unexpected payload length %d", len(payload))
	}
}

func TestIsEquivocation(t *testing.T) {
	a := testVote()
	b := testVote()
	if types.IsEquivocation(a, b) {
		t.Fatal("identical votes are not equivocation")
	}

	b.ProposalID = types.Hash{3}
	if !types.IsEquivocation(a, b) {
		t.Fatal("different proposal in same phase should be equivocation")
	}

	b.Type = types.VoteCommit
	if types.IsEquivocation(a, b) {
		t.Fatal("different phases are not equivocation")
	}
}

func TestVoteTypeString(t *testing.T) {
	if types.VotePreVote.String() != "PreVote" || types.VoteCommit.String() != "Commit" {
		t.Fatal("unexpected vote type names")
	}
}

// --- Proposals ---

func TestProposalIDSegmentsIncludeAllInputs(t *testing.T) {
	base := types.Proposal{
		Proposer:     types.Address{9},
		Height:       3,
		Round:        0,
		PreviousHash: types.Hash{4},
		BlockData:    []byte("payload"),
	}
	ref := bytes.Join(base.IDSegments(), nil)

	mutations := map[string]func(p *types.Proposal){
		"height":   func(p *types.Proposal) { p.Height++ },
		"round":    func(p *types.Proposal) { p.Round++ },
		"previous": func(p *types.Proposal) { p.PreviousHash[0]++ },
		"data":     func(p *types.Proposal) { p.BlockData = []byte("other") },
		"proposer": func(p *types.Proposal) { p.Proposer[0]++ },
	}
	for name, mutate := range mutations {
		p := base
		mutate(&p)
		if bytes.Equal(ref, bytes.Join(p.IDSegments(), nil)) {
			t.Errorf("changing %s did not change the id preimage", name)
		}
	}
}

// --- Validators ---

func TestSortByAddress(t *testing.T) {
	vals := []types.Validator{
		{Address: types.Address{3}},
		{Address: types.Address{1}},
		{Address: types.Address{2}},
	}
	types.SortByAddress(vals)
	for i, want := range []byte{1, 2, 3} {
		if vals[i].Address[0] != want {
			t.Fatalf("position %d: got %d, want %d", i, vals[i].Address[0], want)
		}
	}
}

func TestValidatorValidate(t *testing.T) {
	v := types.Validator{}
	if err := v.Validate(); err == nil {
		t.Fatal("zero address should be rejected")
	}
	v.Address = types.Address{1}
	if err := v.Validate(); err == nil {
		t.Fatal("missing public key should be rejected")
	}
	v.PublicKey = []byte{1}
	if err := v.Validate(); err != nil {
		t.Fatalf("valid record rejected: %v", err)
	}
}

func TestFindByAddress(t *testing.T) {
	vals := []types.Validator{{Address: types.Address{1}}, {Address: types.Address{2}, Stake: 5}}
	v, ok := types.FindByAddress(vals, types.Address{2})
	if !ok || v.Stake != 5 {
		t.Fatal("expected to find validator 2")
	}
	if _, ok := types.FindByAddress(vals, types.Address{9}); ok {
		t.Fatal("unexpected match")
	}
}

func TestConsensusTypeString(t *testing.T) {
	if types.ConsensusHybrid.String() != "Hybrid" {
		t.Fatalf("got %s", types.ConsensusHybrid.String())
	}
}
