package inter

import (
	"errors"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/nzengi/zk-sac-engine/utils/cser"
)

// Errors related to block serialization.
var (
	ErrSerMalformedBlock = errors.New("serialization of malformed block: structure violates protocol rules")
)

// ProtocolMaxMsgSize defines the hard limit for network message size (10 MB).
// Used to prevent DoS attacks via massive allocations.
const ProtocolMaxMsgSize = 10 * 1024 * 1024

// MarshalCSER serializes a block header into the canonical format.
//
// Structure:
// 1. Number, Round, Time (compact integers)
// 2. ParentHash, StateRoot, TxRoot, ProofRoot (fixed 32 bytes each)
// 3. GovRoot presence flag + GovRoot (only when the body carries payloads)
// 4. Producer (fixed 20 bytes)
// 5. Extra (length-prefixed)
func (h *BlockHeader) MarshalCSER(w *cser.Writer) error {
	w.U64(uint64(h.Number))
	w.U32(h.Round)
	w.U64(uint64(h.Time))
	w.FixedBytes(h.ParentHash.Bytes())
	w.FixedBytes(h.StateRoot.Bytes())
	w.FixedBytes(h.TxRoot.Bytes())
	w.FixedBytes(h.ProofRoot.Bytes())
	// The zero GovRoot is never transmitted explicitly.
	w.Bool(h.GovRoot != hash.Hash{})
	if (h.GovRoot != hash.Hash{}) {
		w.FixedBytes(h.GovRoot.Bytes())
	}
	w.FixedBytes(h.Producer.Bytes())
	w.SliceBytes(h.Extra)
	return nil
}

// UnmarshalCSER deserializes a block header.
func (h *BlockHeader) UnmarshalCSER(r *cser.Reader) error {
	h.Number = idx.Block(r.U64())
	h.Round = r.U32()
	h.Time = Timestamp(r.U64())
	r.FixedBytes(h.ParentHash[:])
	r.FixedBytes(h.StateRoot[:])
	r.FixedBytes(h.TxRoot[:])
	r.FixedBytes(h.ProofRoot[:])
	anyGov := r.Bool()
	h.GovRoot = hash.Hash{}
	if anyGov {
		r.FixedBytes(h.GovRoot[:])
		if (h.GovRoot == hash.Hash{}) {
			return cser.ErrNonCanonicalEncoding // must not explicitly transmit the empty root
		}
	}
	r.FixedBytes(h.Producer[:])
	h.Extra = r.SliceBytes(ProtocolMaxMsgSize)
	return nil
}

// MarshalBinary implements encoding.BinaryMarshaler for the header.
func (h *BlockHeader) MarshalBinary() ([]byte, error) {
	return cser.MarshalBinaryAdapter(h.MarshalCSER)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler for the header.
func (h *BlockHeader) UnmarshalBinary(raw []byte) error {
	return cser.UnmarshalBinaryAdapter(raw, h.UnmarshalCSER)
}

// MarshalCSER for the proof bundle.
func (pb *ProofBundle) MarshalCSER(w *cser.Writer) error {
	w.SliceBytes(pb.Proof)
	w.FixedBytes(pb.Outputs.StateRoot.Bytes())
	w.U32(pb.Outputs.TxCount)
	w.Bool(pb.Outputs.Success)
	return nil
}

// UnmarshalCSER for the proof bundle.
func (pb *ProofBundle) UnmarshalCSER(r *cser.Reader) error {
	pb.Proof = r.SliceBytes(ProtocolMaxMsgSize)
	r.FixedBytes(pb.Outputs.StateRoot[:])
	pb.Outputs.TxCount = r.U32()
	pb.Outputs.Success = r.Bool()
	return nil
}

// MarshalCSER for the full block (header + signature + body).
// This is the main function called when sending a block over the network.
//
// The body sections are flag-gated: empty sections cost one bit instead of
// a length prefix, and the flags must agree with the header's GovRoot.
func (b *Block) MarshalCSER(w *cser.Writer) error {
	// Sanity checks to ensure the header commitments match the content
	if b.Header.TxRoot != CalcTxRoot(b.Txs) {
		return ErrSerMalformedBlock
	}
	if b.Header.GovRoot != b.GovRoot() {
		return ErrSerMalformedBlock
	}

	// 1. Header
	err := b.Header.MarshalCSER(w)
	if err != nil {
		return err
	}

	// 2. Producer signature
	w.FixedBytes(b.Sig.Bytes())

	// 3. Proof bundle (always present)
	err = b.Proof.MarshalCSER(w)
	if err != nil {
		return err
	}

	// 4. Content flags
	w.Bool(len(b.Txs) != 0)
	w.Bool(len(b.Votes) != 0)
	w.Bool(len(b.Proposals) != 0)
	w.Bool(len(b.Evidence) != 0)

	// 5. Body (conditional on flags)
	if len(b.Txs) != 0 {
		err = MarshalTxsCSER(w, b.Txs)
		if err != nil {
			return err
		}
	}
	if len(b.Votes) != 0 {
		w.U32(uint32(len(b.Votes)))
		for i := range b.Votes {
			err = b.Votes[i].MarshalCSER(w)
			if err != nil {
				return err
			}
		}
	}
	// Proposals and evidence are nested structures; they are RLP encoded
	// and embedded as byte slices.
	if len(b.Proposals) != 0 {
		raw, err := rlp.EncodeToBytes(b.Proposals)
		if err != nil {
			return err
		}
		w.SliceBytes(raw)
	}
	if len(b.Evidence) != 0 {
		raw, err := rlp.EncodeToBytes(b.Evidence)
		if err != nil {
			return err
		}
		w.SliceBytes(raw)
	}
	return nil
}

// UnmarshalCSER for the full block.
// Reads header -> signature -> proof -> flags -> body.
func (b *Block) UnmarshalCSER(r *cser.Reader) error {
	// 1. Header
	err := b.Header.UnmarshalCSER(r)
	if err != nil {
		return err
	}

	// 2. Producer signature
	r.FixedBytes(b.Sig[:])

	// 3. Proof bundle
	err = b.Proof.UnmarshalCSER(r)
	if err != nil {
		return err
	}

	// 4. Content flags
	anyTxs := r.Bool()
	anyVotes := r.Bool()
	anyProposals := r.Bool()
	anyEvidence := r.Bool()

	// 5. Body
	b.Txs = Transactions{}
	if anyTxs {
		b.Txs, err = UnmarshalTxsCSER(r)
		if err != nil {
			return err
		}
		if len(b.Txs) == 0 {
			return cser.ErrNonCanonicalEncoding // flag must not be set for an empty list
		}
	}
	b.Votes = nil
	if anyVotes {
		num := r.U32()
		if num == 0 {
			return cser.ErrNonCanonicalEncoding
		}
		if num > ProtocolMaxMsgSize/(8+1+SigLength) {
			return cser.ErrTooLargeAlloc
		}
		b.Votes = make([]SignedGovVote, num)
		for i := range b.Votes {
			err = b.Votes[i].UnmarshalCSER(r)
			if err != nil {
				return err
			}
		}
	}
	b.Proposals = nil
	if anyProposals {
		raw := r.SliceBytes(ProtocolMaxMsgSize)
		err = rlp.DecodeBytes(raw, &b.Proposals)
		if err != nil {
			return err
		}
		if len(b.Proposals) == 0 {
			return cser.ErrNonCanonicalEncoding
		}
	}
	b.Evidence = nil
	if anyEvidence {
		raw := r.SliceBytes(ProtocolMaxMsgSize)
		err = rlp.DecodeBytes(raw, &b.Evidence)
		if err != nil {
			return err
		}
		if len(b.Evidence) == 0 {
			return cser.ErrNonCanonicalEncoding
		}
	}

	// The commitments must match the decoded content, otherwise two
	// different bodies could claim the same header.
	if b.Header.TxRoot != CalcTxRoot(b.Txs) {
		return ErrSerMalformedBlock
	}
	if b.Header.GovRoot != b.GovRoot() {
		return ErrSerMalformedBlock
	}
	return nil
}

// MarshalBinary implements encoding.BinaryMarshaler for the block.
func (b *Block) MarshalBinary() ([]byte, error) {
	return cser.MarshalBinaryAdapter(b.MarshalCSER)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler for the block.
func (b *Block) UnmarshalBinary(raw []byte) error {
	return cser.UnmarshalBinaryAdapter(raw, b.UnmarshalCSER)
}

// MarshalCSER for a signed governance vote.
func (sv *SignedGovVote) MarshalCSER(w *cser.Writer) error {
	w.U64(sv.Vote.ProposalID)
	w.Bool(sv.Vote.Approve)
	w.FixedBytes(sv.Voter.Bytes())
	w.FixedBytes(sv.Sig.Bytes())
	return nil
}

// UnmarshalCSER for a signed governance vote.
func (sv *SignedGovVote) UnmarshalCSER(r *cser.Reader) error {
	sv.Vote.ProposalID = r.U64()
	sv.Vote.Approve = r.Bool()
	r.FixedBytes(sv.Voter[:])
	r.FixedBytes(sv.Sig[:])
	return nil
}

// marshalCSERUnsigned writes every proposal field except the signature.
// This is the proposer's signing pre-image.
func (p *GovernanceProposal) marshalCSERUnsigned(w *cser.Writer) error {
	w.U64(p.ID)
	w.FixedBytes(p.Proposer.Bytes())
	w.U32(uint32(len(p.Changes)))
	for _, c := range p.Changes {
		w.U8(uint8(c.Param))
		w.U64(c.Value)
	}
	w.U64(uint64(p.VotingPeriod))
	w.U32(p.QuorumBP)
	w.U32(p.ThresholdBP)
	return nil
}

// MarshalCSER for a governance proposal.
func (p *GovernanceProposal) MarshalCSER(w *cser.Writer) error {
	err := p.marshalCSERUnsigned(w)
	if err != nil {
		return err
	}
	w.FixedBytes(p.Sig.Bytes())
	return nil
}

// UnmarshalCSER for a governance proposal.
func (p *GovernanceProposal) UnmarshalCSER(r *cser.Reader) error {
	p.ID = r.U64()
	r.FixedBytes(p.Proposer[:])
	num := r.U32()
	if num > ProtocolMaxMsgSize/(1+8) {
		return cser.ErrTooLargeAlloc
	}
	p.Changes = make([]ProtocolChange, num)
	for i := range p.Changes {
		p.Changes[i].Param = ParamID(r.U8())
		p.Changes[i].Value = r.U64()
	}
	p.VotingPeriod = idx.Block(r.U64())
	p.QuorumBP = r.U32()
	p.ThresholdBP = r.U32()
	r.FixedBytes(p.Sig[:])
	return nil
}

// marshalBinaryUnsigned returns the canonical encoding without the signature.
func (p *GovernanceProposal) marshalBinaryUnsigned() ([]byte, error) {
	return cser.MarshalBinaryAdapter(p.marshalCSERUnsigned)
}

// MarshalBinary implements encoding.BinaryMarshaler for the proposal.
func (p *GovernanceProposal) MarshalBinary() ([]byte, error) {
	return cser.MarshalBinaryAdapter(p.MarshalCSER)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler for the proposal.
func (p *GovernanceProposal) UnmarshalBinary(raw []byte) error {
	return cser.UnmarshalBinaryAdapter(raw, p.UnmarshalCSER)
}
