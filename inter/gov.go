package inter

import (
	"crypto/ecdsa"
	"crypto/sha256"

	"github.com/Fantom-foundation/lachesis-base/common/bigendian"
	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Governance payloads piggyback on blocks the same way transactions do, so
// proposals and votes inherit block ordering and finality. A proposal names
// the protocol parameters it wants changed; votes are stake-weighted against
// a snapshot taken when the proposal's block is committed.

// ParamID enumerates the protocol parameters adjustable through governance.
// The numeric values are part of the wire format and must never be reused.
type ParamID uint8

const (
	ParamUnknown           ParamID = 0
	ParamMaxBlockSize      ParamID = 1  // bytes
	ParamMaxBlockTxs       ParamID = 2  // transactions per block
	ParamRoundInterval     ParamID = 3  // nanoseconds
	ParamMinStake          ParamID = 4  // stake units
	ParamMinScore          ParamID = 5  // basis points
	ParamSlashRatio        ParamID = 6  // basis points
	ParamRewardRatio       ParamID = 7  // basis points, annualized
	ParamVotingPeriod      ParamID = 8  // blocks
	ParamApprovalThreshold ParamID = 9  // basis points
	ParamQuorum            ParamID = 10 // basis points
	ParamExecutionDeadline ParamID = 11 // blocks
	ParamProofTimeout      ParamID = 12 // nanoseconds
)

// String returns a stable name for logging and CLI output.
func (p ParamID) String() string {
	switch p {
	case ParamMaxBlockSize:
		return "MaxBlockSize"
	case ParamMaxBlockTxs:
		return "MaxBlockTxs"
	case ParamRoundInterval:
		return "RoundInterval"
	case ParamMinStake:
		return "MinStake"
	case ParamMinScore:
		return "MinScore"
	case ParamSlashRatio:
		return "SlashRatio"
	case ParamRewardRatio:
		return "RewardRatio"
	case ParamVotingPeriod:
		return "VotingPeriod"
	case ParamApprovalThreshold:
		return "ApprovalThreshold"
	case ParamQuorum:
		return "Quorum"
	case ParamExecutionDeadline:
		return "ExecutionDeadline"
	case ParamProofTimeout:
		return "ProofTimeout"
	}
	return "Unknown"
}

// ProtocolChange sets a single protocol parameter to a new value. All
// adjustable parameters fit in a uint64; fractions are expressed in basis
// points, durations in nanoseconds.
type ProtocolChange struct {
	Param ParamID
	Value uint64
}

// GovernanceProposal is the wire form of a protocol-amendment request.
// It is immutable once signed; tallies and status are tracked by the
// governance module, not carried here.
type GovernanceProposal struct {
	// ID is chosen by the proposer and must be unique among live proposals.
	ID uint64

	// Proposer must be an eligible validator at the proposal's acceptance.
	Proposer common.Address

	// Changes are applied atomically if the proposal passes.
	Changes []ProtocolChange

	// VotingPeriod is the length of the voting window in blocks, anchored
	// at the block that carries the proposal.
	VotingPeriod idx.Block

	// QuorumBP is the minimum participation, in basis points of the
	// snapshot's total eligible stake.
	QuorumBP uint32

	// ThresholdBP is the approval threshold, in basis points of the
	// snapshot's total eligible stake.
	ThresholdBP uint32

	// Sig is the proposer's signature over the unsigned encoding.
	Sig Signature
}

// GovVote is a single yes/no vote on a proposal.
type GovVote struct {
	ProposalID uint64
	Approve    bool
}

// SignedGovVote proves WHO cast the vote. The vote weight is not carried on
// the wire; it is read from the proposal's stake snapshot at tally time.
type SignedGovVote struct {
	Vote  GovVote
	Voter common.Address
	Sig   Signature
}

// Hash computes the canonical hash of a proposal, used as its identity in
// gossip and storage.
func (p *GovernanceProposal) Hash() hash.Hash {
	b, err := p.MarshalBinary()
	if err != nil {
		panic("can't hash: " + err.Error())
	}
	return hash.Of(b)
}

// SigningHash returns the digest the proposer signs, a Keccak256 hash of the
// canonical encoding without the signature.
func (p *GovernanceProposal) SigningHash() common.Hash {
	b, err := p.marshalBinaryUnsigned()
	if err != nil {
		panic("can't hash: " + err.Error())
	}
	return crypto.Keccak256Hash(b)
}

// Sign signs the proposal in place with the proposer's key.
func (p *GovernanceProposal) Sign(key *ecdsa.PrivateKey) error {
	sig, err := crypto.Sign(p.SigningHash().Bytes(), key)
	if err != nil {
		return err
	}
	p.Sig, err = SigFromBytes(sig)
	return err
}

// VerifySig reports whether the signature recovers to the declared proposer.
func (p *GovernanceProposal) VerifySig() bool {
	pub, err := crypto.SigToPub(p.SigningHash().Bytes(), p.Sig.Bytes())
	if err != nil {
		return false
	}
	return crypto.PubkeyToAddress(*pub) == p.Proposer
}

// EstimateSize returns an approximate encoded size in bytes.
func (p *GovernanceProposal) EstimateSize() int {
	return 8 + common.AddressLength + len(p.Changes)*(1+8) + 8 + 4 + 4 + SigLength
}

// Hash computes the canonical hash of a vote.
func (v GovVote) Hash() hash.Hash {
	hasher := sha256.New()
	hasher.Write(bigendian.Uint64ToBytes(v.ProposalID))
	if v.Approve {
		hasher.Write([]byte{1})
	} else {
		hasher.Write([]byte{0})
	}
	return hash.BytesToHash(hasher.Sum(nil))
}

// Hash computes the canonical hash of a signed vote, covering the vote, the
// voter and the signature bytes.
func (sv *SignedGovVote) Hash() hash.Hash {
	v := sv.Vote.Hash()
	return hash.Of(v.Bytes(), sv.Voter.Bytes(), sv.Sig.Bytes())
}

// SigningHash returns the digest the voter signs. The voter address is part
// of the pre-image so a captured signature cannot be re-attributed.
func (sv *SignedGovVote) SigningHash() common.Hash {
	var approve byte
	if sv.Vote.Approve {
		approve = 1
	}
	return crypto.Keccak256Hash(
		bigendian.Uint64ToBytes(sv.Vote.ProposalID),
		[]byte{approve},
		sv.Voter.Bytes(),
	)
}

// Sign signs the vote in place with the voter's key.
func (sv *SignedGovVote) Sign(key *ecdsa.PrivateKey) error {
	sig, err := crypto.Sign(sv.SigningHash().Bytes(), key)
	if err != nil {
		return err
	}
	sv.Sig, err = SigFromBytes(sig)
	return err
}

// VerifySig reports whether the signature recovers to the declared voter.
func (sv *SignedGovVote) VerifySig() bool {
	pub, err := crypto.SigToPub(sv.SigningHash().Bytes(), sv.Sig.Bytes())
	if err != nil {
		return false
	}
	return crypto.PubkeyToAddress(*pub) == sv.Voter
}
