// Package inter defines the core consensus data structures of the chain:
// blocks, transactions, governance payloads and misbehaviour evidence. Every
// type here has a canonical serialization, so hashes and signatures derived
// from these structures are identical on every node.
//
// Key concepts:
//   - BlockHeader: Block metadata committing to parent, state, txs and proof
//   - Block: A header plus the ordered transactions, the state-transition
//     proof and the producer's signature
//   - ProofBundle: Proof bytes plus the prover's public outputs
//   - TxRoot/ProofRoot: Deterministic digests binding the header to its body
//
// Usage:
//   header := inter.BlockHeader{
//       Number:     n,
//       ParentHash: parent,
//       StateRoot:  root,
//       TxRoot:     inter.CalcTxRoot(txs),
//       Time:       inter.FromUnix(now),
//       Producer:   addr,
//   }
//   sig, _ := inter.SignHeader(&header, key)
//   size := block.EstimateSize()
//
// Blocks are assembled by the producer half of the consensus engine and
// re-checked field by field by every validator before commitment.

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

// BlockHeader is the immutable metadata of a block. The header commits to
// everything needed to validate the block body: the parent linkage, the
// declared post-state root, the transaction digest and the proof digest.
type BlockHeader struct {
	// Number is the block height. Strictly the parent's height plus one.
	Number idx.Block

	// Round is the production round that delivered this block. Rounds grow
	// strictly across blocks; the gap to the parent's round names exactly
	// which producers missed their slots in between. The producer-selection
	// seed is derived from ParentHash and Round, so validators re-derive
	// authority from these two fields alone.
	Round uint32

	// ParentHash is the hash of the previous committed header. Genesis
	// carries the zero hash.
	ParentHash hash.Hash

	// StateRoot is the declared root of the world state after applying this
	// block's transactions. Validators recompute it independently and reject
	// the block on any disagreement.
	StateRoot hash.Hash

	// TxRoot is the deterministic digest of the ordered transaction list.
	// It must equal CalcTxRoot of the body.
	TxRoot hash.Hash

	// ProofRoot is the digest of the state-transition proof bundle carried
	// in the body, binding the header to exactly one proof.
	ProofRoot hash.Hash

	// GovRoot is the digest of the governance payloads in the body (votes,
	// proposals, evidence). The zero hash when the body carries none.
	// Without this commitment a relay could strip or inject individually
	// signed payloads without invalidating the producer signature.
	GovRoot hash.Hash

	// Time is the producer's timestamp for the block.
	Time Timestamp

	// Producer is the address of the validator selected for this round.
	// Authority is re-derived by every validator from the parent state.
	Producer common.Address

	// Extra is opaque producer data, bounded by the network rules.
	Extra []byte
}

// PublicOutputs are the prover's public outputs: the claims the proof
// attests to. They are authoritative only after the proof verifies.
type PublicOutputs struct {
	// StateRoot is the post-state root the prover computed.
	StateRoot hash.Hash
	// TxCount is the number of transactions the prover executed.
	TxCount uint32
	// Success reports whether the proven execution completed.
	Success bool
}

// ProofBundle couples proof bytes with their public outputs. The bundle is
// opaque to the ledger; only the proof oracle interprets the proof bytes.
type ProofBundle struct {
	Proof   []byte
	Outputs PublicOutputs
}

// Hash returns the digest the header's ProofRoot commits to.
func (pb *ProofBundle) Hash() hash.Hash {
	var success byte
	if pb.Outputs.Success {
		success = 1
	}
	return hash.Of(
		pb.Proof,
		pb.Outputs.StateRoot.Bytes(),
		bigendian.Uint32ToBytes(pb.Outputs.TxCount),
		[]byte{success},
	)
}

// Block is the unit of consensus: a header, the ordered transaction list,
// the state-transition proof and the producer's signature. Governance
// payloads and misbehaviour evidence piggyback on blocks the same way the
// transactions do, so they inherit block ordering and finality.
type Block struct {
	Header BlockHeader

	// Txs is the ordered transaction list. TxRoot in the header must match.
	Txs Transactions

	// Proof attests that applying Txs to the parent state yields StateRoot.
	Proof ProofBundle

	// Sig is the producer's signature over the header.
	Sig Signature

	// Votes are governance votes included in this block (optional).
	Votes []SignedGovVote

	// Proposals are governance proposals included in this block (optional).
	Proposals []GovernanceProposal

	// Evidence carries misbehaviour proofs included in this block (optional).
	Evidence []Evidence
}

// SignedHeader couples a header with a producer signature. Used standalone
// inside misbehaviour evidence, where the body is irrelevant.
type SignedHeader struct {
	Header BlockHeader
	Sig    Signature
}

// Hash returns the canonical block id: the hash of the header encoding.
func (h *BlockHeader) Hash() hash.Hash {
	b, err := h.MarshalBinary()
	if err != nil {
		panic("can't hash: " + err.Error())
	}
	return hash.Of(b)
}

// SigningHash returns the digest the producer signs, a Keccak256 hash of the
// canonical header encoding.
func (h *BlockHeader) SigningHash() common.Hash {
	b, err := h.MarshalBinary()
	if err != nil {
		panic("can't hash: " + err.Error())
	}
	return crypto.Keccak256Hash(b)
}

// SignHeader signs the header with the producer's key.
func SignHeader(h *BlockHeader, key *ecdsa.PrivateKey) (Signature, error) {
	sig, err := crypto.Sign(h.SigningHash().Bytes(), key)
	if err != nil {
		return Signature{}, err
	}
	return SigFromBytes(sig)
}

// RecoverProducer recovers the address that signed the header.
func RecoverProducer(h *BlockHeader, sig Signature) (common.Address, error) {
	pub, err := crypto.SigToPub(h.SigningHash().Bytes(), sig.Bytes())
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Verify reports whether the signature recovers to the header's declared
// producer.
func (sh *SignedHeader) Verify() bool {
	got, err := RecoverProducer(&sh.Header, sh.Sig)
	if err != nil {
		return false
	}
	return got == sh.Header.Producer
}

// CalcTxRoot computes the deterministic digest of an ordered transaction
// list.
func CalcTxRoot(txs Transactions) hash.Hash {
	hasher := sha256.New()
	// Write length to prevent extension attacks
	hasher.Write(bigendian.Uint32ToBytes(uint32(txs.Len())))
	for _, tx := range txs {
		h := tx.Hash()
		hasher.Write(h.Bytes())
	}
	return hash.BytesToHash(hasher.Sum(nil))
}

// CalcGovRoot computes the digest of a block's governance payloads.
// Returns the zero hash when all three sections are empty, which is the
// canonical GovRoot for a block without governance content.
func CalcGovRoot(votes []SignedGovVote, proposals []GovernanceProposal, evidence []Evidence) hash.Hash {
	if len(votes) == 0 && len(proposals) == 0 && len(evidence) == 0 {
		return hash.Hash{}
	}
	hasher := sha256.New()
	hasher.Write(bigendian.Uint32ToBytes(uint32(len(votes))))
	for i := range votes {
		h := votes[i].Hash()
		hasher.Write(h.Bytes())
	}
	hasher.Write(bigendian.Uint32ToBytes(uint32(len(proposals))))
	for i := range proposals {
		h := proposals[i].Hash()
		hasher.Write(h.Bytes())
	}
	hasher.Write(bigendian.Uint32ToBytes(uint32(len(evidence))))
	for i := range evidence {
		h := evidence[i].Hash()
		hasher.Write(h.Bytes())
	}
	return hash.BytesToHash(hasher.Sum(nil))
}

// GovRoot computes the governance digest of the block's own body.
func (b *Block) GovRoot() hash.Hash {
	return CalcGovRoot(b.Votes, b.Proposals, b.Evidence)
}

// EstimateSize returns an approximate size of the block in bytes. It is used
// for enforcing the block size cap and for transfer planning; the canonical
// encoding may differ by a few bytes of framing.
func (b *Block) EstimateSize() int {
	// header: number + round + time + producer + 5 hashes + extra
	size := 8 + 4 + 8 + common.AddressLength + 5*32 + len(b.Header.Extra)
	for _, tx := range b.Txs {
		size += tx.EstimateSize()
	}
	size += len(b.Proof.Proof) + 32 + 4 + 1 // proof bytes + outputs
	size += SigLength
	size += len(b.Votes) * (8 + common.AddressLength + 1 + SigLength)
	for i := range b.Proposals {
		size += b.Proposals[i].EstimateSize()
	}
	size += len(b.Evidence) * 2 * (200 + SigLength) // loose upper bound per item
	return size
}
