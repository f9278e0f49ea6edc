package gov

import (
	"bytes"
	"io"
	"sort"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/nzengi/zk-sac-engine/inter"
)

// stakeKV is one snapshot entry in the canonical proposal encoding.
type stakeKV struct {
	Addr  common.Address
	Stake uint64
}

// ballotKV is one recorded vote in the canonical proposal encoding.
type ballotKV struct {
	Addr    common.Address
	Approve bool
}

// proposalView is the canonical encoding of a Proposal: the maps flattened
// into address-sorted lists so the stream does not depend on map order.
type proposalView struct {
	Payload       inter.GovernanceProposal
	Status        Status
	VotingStart   idx.Block
	VotingEnd     idx.Block
	ApprovedAt    idx.Block
	Deadline      idx.Block
	Stakes        []stakeKV
	SnapshotTotal uint64
	Ballots       []ballotKV
}

// EncodeRLP implements rlp.Encoder, so snapshot stores can persist the
// module's records between restarts.
func (p *Proposal) EncodeRLP(w io.Writer) error {
	view := proposalView{
		Payload:       p.Payload,
		Status:        p.Status,
		VotingStart:   p.VotingStart,
		VotingEnd:     p.VotingEnd,
		ApprovedAt:    p.ApprovedAt,
		Deadline:      p.Deadline,
		Stakes:        make([]stakeKV, 0, len(p.SnapshotStakes)),
		SnapshotTotal: p.SnapshotTotal,
		Ballots:       make([]ballotKV, 0, len(p.Ballots)),
	}
	for addr, stake := range p.SnapshotStakes {
		view.Stakes = append(view.Stakes, stakeKV{Addr: addr, Stake: stake})
	}
	sort.Slice(view.Stakes, func(i, j int) bool {
		return bytes.Compare(view.Stakes[i].Addr[:], view.Stakes[j].Addr[:]) < 0
	})
	for addr, approve := range p.Ballots {
		view.Ballots = append(view.Ballots, ballotKV{Addr: addr, Approve: approve})
	}
	sort.Slice(view.Ballots, func(i, j int) bool {
		return bytes.Compare(view.Ballots[i].Addr[:], view.Ballots[j].Addr[:]) < 0
	})
	return rlp.Encode(w, &view)
}

// DecodeRLP implements rlp.Decoder.
func (p *Proposal) DecodeRLP(s *rlp.Stream) error {
	var view proposalView
	if err := s.Decode(&view); err != nil {
		return err
	}
	p.Payload = view.Payload
	p.Status = view.Status
	p.VotingStart = view.VotingStart
	p.VotingEnd = view.VotingEnd
	p.ApprovedAt = view.ApprovedAt
	p.Deadline = view.Deadline
	p.SnapshotTotal = view.SnapshotTotal
	p.SnapshotStakes = make(map[common.Address]uint64, len(view.Stakes))
	for _, kv := range view.Stakes {
		p.SnapshotStakes[kv.Addr] = kv.Stake
	}
	p.Ballots = make(map[common.Address]bool, len(view.Ballots))
	for _, kv := range view.Ballots {
		p.Ballots[kv.Addr] = kv.Approve
	}
	return nil
}
