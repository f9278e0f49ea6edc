// Package proofchain maintains the recursive proof aggregate: one
// constant-size commitment attesting to every state transition since
// genesis.
//
// Key concepts:
//   - ProofChainState: The aggregate chain head with its covered block range
//   - Fold: Verify one block's proof and absorb it into the aggregate
//   - VerifyAggregate: Internal-consistency check of a chain head
//
// Usage:
//
//	pc := proofchain.NewGenesisState(genesisHash, stateRoot)
//	pc, err := proofchain.Fold(ctx, oracle, pc, &block.Header, block.Proof)
//
// Each committed block is folded exactly once, in height order, by the node
// that committed it. The aggregate does not replace per-block verification:
// it records that verification already happened for every folded block, so a
// party trusting the folding discipline checks one commitment instead of N
// proofs.
package proofchain

import (
	"github.com/Fantom-foundation/lachesis-base/common/bigendian"
	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/Fantom-foundation/lachesis-base/inter/idx"
)

// AggregateSize is the byte length of a serialized aggregate:
// count(4) || first(8) || last(8) || root(32).
const AggregateSize = 4 + 8 + 8 + 32

// ProofChainState is the chain head of the proof aggregate. It carries the
// folded commitment plus everything the next fold is checked against: the
// covered block range, the hash of the last folded header and the state root
// that header committed to.
type ProofChainState struct {
	// Aggregate is the serialized commitment, AggregateSize bytes.
	Aggregate []byte

	// FirstBlock and LastBlock delimit the covered range, inclusive. The
	// genesis identity covers the empty range [1,0].
	FirstBlock idx.Block
	LastBlock  idx.Block

	// LastBlockHash is the hash of the last folded header. For the genesis
	// identity it is the genesis hash, which is also block 1's ParentHash,
	// so the parent-link check works the same on every fold.
	LastBlockHash hash.Hash

	// LastStateRoot is the state root of the last folded header. The next
	// fold verifies its proof against this root as the parent state.
	LastStateRoot hash.Hash

	// FoldedCount is the number of blocks folded in so far.
	FoldedCount uint32
}

// NewGenesisState returns the aggregate identity: nothing folded yet, parent
// linkage anchored at the genesis hash and the genesis state root.
func NewGenesisState(genesisHash, stateRoot hash.Hash) *ProofChainState {
	return &ProofChainState{
		Aggregate:     encodeAggregate(0, 1, 0, hashLeaf(genesisHash)),
		FirstBlock:    1,
		LastBlock:     0,
		LastBlockHash: genesisHash,
		LastStateRoot: stateRoot,
		FoldedCount:   0,
	}
}

// Copy returns a deep copy.
func (s *ProofChainState) Copy() *ProofChainState {
	cp := *s
	cp.Aggregate = append([]byte{}, s.Aggregate...)
	return &cp
}

// Root returns the folded commitment carried inside the aggregate, or the
// zero hash when the aggregate is malformed.
func (s *ProofChainState) Root() hash.Hash {
	if len(s.Aggregate) != AggregateSize {
		return hash.Hash{}
	}
	return hash.BytesToHash(s.Aggregate[20:])
}

// VerifyAggregate checks that the chain head is internally consistent: the
// serialized fields match the struct fields, the block range matches the
// fold count and the commitment is present. Validity of the folded proofs
// themselves is established inductively at fold time and is not re-derivable
// from the commitment alone.
func VerifyAggregate(s *ProofChainState) bool {
	if len(s.Aggregate) != AggregateSize {
		return false
	}
	if bigendian.BytesToUint32(s.Aggregate[:4]) != s.FoldedCount {
		return false
	}
	if idx.Block(bigendian.BytesToUint64(s.Aggregate[4:12])) != s.FirstBlock {
		return false
	}
	if idx.Block(bigendian.BytesToUint64(s.Aggregate[12:20])) != s.LastBlock {
		return false
	}
	if s.FoldedCount == 0 {
		// The empty range is [first, first-1].
		if uint64(s.LastBlock)+1 != uint64(s.FirstBlock) {
			return false
		}
	} else {
		if uint64(s.LastBlock) != uint64(s.FirstBlock)+uint64(s.FoldedCount)-1 {
			return false
		}
	}
	return s.Root() != hash.Hash{}
}

func encodeAggregate(count uint32, first, last idx.Block, root hash.Hash) []byte {
	agg := make([]byte, 0, AggregateSize)
	agg = append(agg, bigendian.Uint32ToBytes(count)...)
	agg = append(agg, bigendian.Uint64ToBytes(uint64(first))...)
	agg = append(agg, bigendian.Uint64ToBytes(uint64(last))...)
	agg = append(agg, root.Bytes()...)
	return agg
}
