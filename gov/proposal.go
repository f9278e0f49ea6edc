// Package gov runs the on-chain governance lifecycle: proposals are accepted
// out of committed blocks, voted on with stake frozen at acceptance, and
// their parameter changes handed to the block effects once approved.
//
// Key concepts:
//   - Proposal: Module-side record: window, stake snapshot, ballots, status
//   - Module: A deterministic state machine fed by committed blocks
//   - ExecutableChanges: The approved changes the next block's effects carry
//
// Usage:
//
//	m := gov.NewModule()
//	m.OnBlockCommitted(postState, &b.Header, b.Proposals, b.Votes, effects.Changes)
//	changes := m.ExecutableChanges()
//
// The module is not part of the hashed world state. Every node replays the
// same committed blocks through it and lands on the same records; the rules
// changes themselves enter the state through the provable transition, the
// module only decides when.
package gov

import (
	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/common"

	"github.com/nzengi/zk-sac-engine/inter"
)

// Status is a proposal's position in the lifecycle.
type Status uint8

const (
	// StatusVoting means the voting window is open.
	StatusVoting Status = iota + 1
	// StatusApproved means the tally passed and execution is pending.
	StatusApproved
	// StatusRejected means the tally failed. Terminal.
	StatusRejected
	// StatusExecuted means the changes entered the rules. Terminal.
	StatusExecuted
	// StatusExpired means the approval lapsed unexecuted. Terminal.
	StatusExpired
)

// String returns a stable name for logging and CLI output.
func (s Status) String() string {
	switch s {
	case StatusVoting:
		return "Voting"
	case StatusApproved:
		return "Approved"
	case StatusRejected:
		return "Rejected"
	case StatusExecuted:
		return "Executed"
	case StatusExpired:
		return "Expired"
	}
	return "Unknown"
}

// Terminal reports whether no further transition is possible. A terminal
// record frees its proposal id for reuse.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusExecuted || s == StatusExpired
}

// Proposal is the module-side record of an accepted proposal.
type Proposal struct {
	// Payload is the immutable wire form the proposer signed.
	Payload inter.GovernanceProposal

	Status Status

	// VotingStart and VotingEnd delimit the absolute voting window. The
	// proposer cannot know the inclusion height in advance, so the window is
	// anchored here at acceptance: votes count from the carrying block
	// through the block that closes the window.
	VotingStart idx.Block
	VotingEnd   idx.Block

	// ApprovedAt is the height the tally passed, zero until then. An
	// approved proposal must execute within Deadline blocks of it.
	ApprovedAt idx.Block
	Deadline   idx.Block

	// SnapshotStakes freezes the eligible voting power at acceptance.
	// Stake gained or lost afterwards never moves an in-flight tally.
	SnapshotStakes map[common.Address]uint64
	SnapshotTotal  uint64

	// Ballots holds the latest vote of each snapshot voter. A re-vote
	// overwrites the previous one.
	Ballots map[common.Address]bool
}

// Copy returns a deep copy.
func (p *Proposal) Copy() *Proposal {
	cp := *p
	cp.Payload.Changes = append([]inter.ProtocolChange{}, p.Payload.Changes...)
	cp.SnapshotStakes = make(map[common.Address]uint64, len(p.SnapshotStakes))
	for addr, stake := range p.SnapshotStakes {
		cp.SnapshotStakes[addr] = stake
	}
	cp.Ballots = make(map[common.Address]bool, len(p.Ballots))
	for addr, approve := range p.Ballots {
		cp.Ballots[addr] = approve
	}
	return &cp
}
