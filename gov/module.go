package gov

import (
	"math/big"
	"sort"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/common"

	"github.com/nzengi/zk-sac-engine/inter"
	"github.com/nzengi/zk-sac-engine/ledgercore"
)

// Module is the governance state machine. It is driven exclusively by
// committed blocks, one OnBlockCommitted call per block in height order.
// The engine owns the module and serializes access; methods are not safe
// for concurrent use.
type Module struct {
	proposals map[uint64]*Proposal
}

// NewModule returns an empty module.
func NewModule() *Module {
	return &Module{proposals: make(map[uint64]*Proposal)}
}

// OnBlockCommitted advances the lifecycle by one committed block. st must be
// the block's post-state and executed the protocol changes its effects
// carried. The order inside one block is fixed: changes that entered this
// block mark their proposals executed, new proposals are accepted, votes are
// recorded, windows this block reaches the end of are tallied, and stale
// approvals expire last. Payloads that fail validation are ignored; a
// committed block is never rejected here.
func (m *Module) OnBlockCommitted(st *ledgercore.WorldState, header *inter.BlockHeader, proposals []inter.GovernanceProposal, votes []inter.SignedGovVote, executed []inter.ProtocolChange) {
	num := header.Number

	m.markExecuted(executed)
	for i := range proposals {
		m.accept(st, num, &proposals[i])
	}
	for i := range votes {
		m.recordVote(&votes[i])
	}
	for _, p := range m.proposals {
		if p.Status == StatusVoting && num >= p.VotingEnd {
			closeVoting(p, num)
		}
	}
	for _, p := range m.proposals {
		if p.Status == StatusApproved && num > p.ApprovedAt+p.Deadline {
			p.Status = StatusExpired
		}
	}
}

// ExecutableChanges returns the parameter changes the next block's effects
// must carry: the changes of every approved proposal, concatenated in
// ascending proposal id order. The producer and every validator derive the
// same list from the same committed history, so the list is never gossiped.
func (m *Module) ExecutableChanges() []inter.ProtocolChange {
	var changes []inter.ProtocolChange
	for _, id := range m.approvedIDs() {
		changes = append(changes, m.proposals[id].Payload.Changes...)
	}
	return changes
}

// Proposal returns a copy of the record for id.
func (m *Module) Proposal(id uint64) (Proposal, bool) {
	p, ok := m.proposals[id]
	if !ok {
		return Proposal{}, false
	}
	return *p.Copy(), true
}

// Proposals returns copies of all records in ascending id order. Used for
// inspection and for snapshotting the module alongside the world state.
func (m *Module) Proposals() []Proposal {
	ids := make([]uint64, 0, len(m.proposals))
	for id := range m.proposals {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	ps := make([]Proposal, 0, len(ids))
	for _, id := range ids {
		ps = append(ps, *m.proposals[id].Copy())
	}
	return ps
}

// Restore replaces the module contents with previously captured records.
func (m *Module) Restore(ps []Proposal) {
	m.proposals = make(map[uint64]*Proposal, len(ps))
	for i := range ps {
		m.proposals[ps[i].Payload.ID] = ps[i].Copy()
	}
}

// markExecuted transitions the approved proposals whose changes the block
// carried, consuming the executed list in ascending proposal id order. The
// list layout mirrors ExecutableChanges, so a full execution consumes it
// exactly.
func (m *Module) markExecuted(executed []inter.ProtocolChange) {
	if len(executed) == 0 {
		return
	}
	for _, id := range m.approvedIDs() {
		p := m.proposals[id]
		n := len(p.Payload.Changes)
		if n > len(executed) || !changesEqual(executed[:n], p.Payload.Changes) {
			break
		}
		p.Status = StatusExecuted
		executed = executed[n:]
	}
}

func (m *Module) accept(st *ledgercore.WorldState, num idx.Block, payload *inter.GovernanceProposal) {
	if existing, ok := m.proposals[payload.ID]; ok && !existing.Status.Terminal() {
		// Live ids are unique; only a terminal record frees its id.
		return
	}
	if !payload.VerifySig() {
		return
	}
	minStake := st.Rules.Validators.MinStake
	minScore := st.Rules.Validators.MinScore
	proposer := st.ValidatorByAddress(payload.Proposer)
	if proposer == nil || !proposer.Eligible(minStake, minScore) {
		return
	}
	if st.Rules.ValidateProposal(payload) != nil {
		return
	}

	snapshot := make(map[common.Address]uint64)
	var total uint64
	for i := range st.Validators {
		v := &st.Validators[i]
		if !v.Eligible(minStake, minScore) {
			continue
		}
		snapshot[v.Address] = v.Stake
		total = addSat(total, v.Stake)
	}

	record := &Proposal{
		Payload:        *payload,
		Status:         StatusVoting,
		VotingStart:    num,
		VotingEnd:      num + payload.VotingPeriod,
		Deadline:       st.Rules.Governance.ExecutionDeadline,
		SnapshotStakes: snapshot,
		SnapshotTotal:  total,
		Ballots:        make(map[common.Address]bool),
	}
	record.Payload.Changes = append([]inter.ProtocolChange{}, payload.Changes...)
	m.proposals[payload.ID] = record
}

func (m *Module) recordVote(sv *inter.SignedGovVote) {
	p, ok := m.proposals[sv.Vote.ProposalID]
	if !ok || p.Status != StatusVoting {
		return
	}
	if _, inSnapshot := p.SnapshotStakes[sv.Voter]; !inSnapshot {
		return
	}
	if !sv.VerifySig() {
		return
	}
	p.Ballots[sv.Voter] = sv.Vote.Approve
}

// closeVoting tallies the ballots against the stake snapshot. Approval needs
// both the quorum (voted stake over total) and the threshold (approving
// stake over total); falling short of either is a normal rejection, not an
// error.
func closeVoting(p *Proposal, num idx.Block) {
	var votedFor, votedAgainst uint64
	for voter, approve := range p.Ballots {
		w := p.SnapshotStakes[voter]
		if approve {
			votedFor = addSat(votedFor, w)
		} else {
			votedAgainst = addSat(votedAgainst, w)
		}
	}
	turnout := addSat(votedFor, votedAgainst)
	if meetsBP(turnout, p.SnapshotTotal, p.Payload.QuorumBP) &&
		meetsBP(votedFor, p.SnapshotTotal, p.Payload.ThresholdBP) {
		p.Status = StatusApproved
		p.ApprovedAt = num
	} else {
		p.Status = StatusRejected
	}
}

func (m *Module) approvedIDs() []uint64 {
	var ids []uint64
	for id, p := range m.proposals {
		if p.Status == StatusApproved {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func changesEqual(a, b []inter.ProtocolChange) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// meetsBP reports whether part is at least bp basis points of total,
// computed without uint64 overflow.
func meetsBP(part, total uint64, bp uint32) bool {
	lhs := new(big.Int).Mul(new(big.Int).SetUint64(part), big.NewInt(10000))
	rhs := new(big.Int).Mul(new(big.Int).SetUint64(total), new(big.Int).SetUint64(uint64(bp)))
	return lhs.Cmp(rhs) >= 0
}

func addSat(a, b uint64) uint64 {
	if a+b < a {
		return ^uint64(0)
	}
	return a + b
}
