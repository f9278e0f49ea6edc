package inter

import (
	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// MinCorroborations defines the threshold for proving a bad proof.
// A single validator might report a failing proof because of its own
// hardware fault or a corrupted download, not because the producer cheated.
//
// To avoid slashing producers for observer-side faults, the protocol
// requires at least 2 validators (the reporter + 1 corroborator) to sign
// the same failure claim before it is actionable. Two independent faults
// producing the same claim is not a realistic accident.
const (
	MinCorroborations = 2
)

// DoubleProposal proves that a producer signed two different headers for
// the same production slot. This is self-contained equivocation evidence:
// the two signatures are the whole proof, no corroboration needed.
//
// The slot is (Number, Round). A producer legitimately re-selected at a
// later round may sign a fresh header for the same height, so headers
// that differ in Round are not equivocation.
type DoubleProposal struct {
	// Pair contains the two conflicting signed headers. Both must verify,
	// carry the same Number, Round and Producer, and hash differently.
	Pair [2]SignedHeader
}

// WellFormed reports whether the pair actually constitutes equivocation.
// It checks structure only; the consensus layer additionally requires
// the producer to be a registered validator before acting on the claim.
func (p *DoubleProposal) WellFormed() bool {
	a, b := &p.Pair[0], &p.Pair[1]
	if a.Header.Number != b.Header.Number {
		return false
	}
	if a.Header.Round != b.Header.Round {
		return false
	}
	if a.Header.Producer != b.Header.Producer {
		return false
	}
	if a.Header.Hash() == b.Header.Hash() {
		return false
	}
	return a.Verify() && b.Verify()
}

// Culprit returns the equivocating producer.
func (p *DoubleProposal) Culprit() common.Address {
	return p.Pair[0].Header.Producer
}

// AttestationHash returns the digest a corroborating validator signs to
// attest that a block's proof fails verification. The domain prefix keeps
// attestation signatures distinct from header and vote signatures.
func AttestationHash(block hash.Hash) common.Hash {
	return crypto.Keccak256Hash([]byte("PFAIL"), block.Bytes())
}

// ProofFailureAttestation is one validator's signed claim that the proof of
// the referenced block fails verification.
type ProofFailureAttestation struct {
	Block    hash.Hash
	Attestor common.Address
	Sig      Signature
}

// Verify reports whether the signature recovers to the declared attestor.
func (a *ProofFailureAttestation) Verify() bool {
	pub, err := crypto.SigToPub(AttestationHash(a.Block).Bytes(), a.Sig.Bytes())
	if err != nil {
		return false
	}
	return crypto.PubkeyToAddress(*pub) == a.Attestor
}

// ProofFailure proves that a producer signed a block whose proof does not
// verify. The bundle must hash to the header's ProofRoot, so the producer
// cannot claim a different proof was meant. Requires MinCorroborations
// matching attestations from distinct validators (see constant doc).
type ProofFailure struct {
	// Proposal is the offending signed header.
	Proposal SignedHeader

	// Bundle is the proof the header commits to, which fails verification.
	Bundle ProofBundle

	// Pals are the corroborating attestations. Pals[0] is the reporter,
	// the rest are independent corroborators.
	Pals [MinCorroborations]ProofFailureAttestation
}

// WellFormed checks the structural validity of the claim: the header
// signature, the proof binding and the attestation signatures over the
// right block hash, from distinct attestors. The truth of the failure
// claim rests on the corroborating attestors; the parent state the
// proof was generated against is not available to a later adjudicator,
// so verification is not re-run.
func (p *ProofFailure) WellFormed() bool {
	if !p.Proposal.Verify() {
		return false
	}
	if p.Bundle.Hash() != p.Proposal.Header.ProofRoot {
		return false
	}
	block := p.Proposal.Header.Hash()
	seen := map[common.Address]bool{}
	for i := range p.Pals {
		a := &p.Pals[i]
		if a.Block != block || seen[a.Attestor] || !a.Verify() {
			return false
		}
		seen[a.Attestor] = true
	}
	return true
}

// Culprit returns the producer of the unprovable block.
func (p *ProofFailure) Culprit() common.Address {
	return p.Proposal.Header.Producer
}

// Evidence is a union container that holds exactly one specific kind of
// misbehaviour proof. Pointers with rlp:"nil" make the fields optional on
// the wire; exactly one must be non-nil.
type Evidence struct {
	DoubleProposal *DoubleProposal `rlp:"nil"`
	ProofFailure   *ProofFailure   `rlp:"nil"`
}

// WellFormed reports whether exactly one variant is set and that variant is
// structurally valid.
func (e *Evidence) WellFormed() bool {
	if (e.DoubleProposal != nil) == (e.ProofFailure != nil) {
		return false
	}
	if e.DoubleProposal != nil {
		return e.DoubleProposal.WellFormed()
	}
	return e.ProofFailure.WellFormed()
}

// Hash computes the canonical hash of the evidence, over its RLP encoding.
func (e *Evidence) Hash() hash.Hash {
	b, err := rlp.EncodeToBytes(e)
	if err != nil {
		panic("can't hash: " + err.Error())
	}
	return hash.Of(b)
}

// Culprit returns the accused producer of whichever variant is set.
func (e *Evidence) Culprit() common.Address {
	if e.DoubleProposal != nil {
		return e.DoubleProposal.Culprit()
	}
	if e.ProofFailure != nil {
		return e.ProofFailure.Culprit()
	}
	return common.Address{}
}
