package proofchain

import (
	"context"
	"errors"
	"fmt"

	"github.com/Fantom-foundation/lachesis-base/hash"

	"github.com/nzengi/zk-sac-engine/inter"
	"github.com/nzengi/zk-sac-engine/zkvm"
)

var (
	// ErrNonContiguousFold is returned when the folded block is not the
	// direct successor of the covered range.
	ErrNonContiguousFold = errors.New("fold is not contiguous with the proof chain")

	// ErrProofChainBroken is returned when the block's proof does not extend
	// the chain head: broken parent linkage, a proof that does not match the
	// header's commitment, or a proof that fails verification.
	ErrProofChainBroken = errors.New("proof chain is broken")
)

// Domain tags keep leaf and interior hashes of the fold tree disjoint.
var (
	leafTag = []byte{0x00}
	nodeTag = []byte{0x01}
)

// Fold verifies one block's proof against the chain head and absorbs it into
// the aggregate. The block must be the direct successor of the covered
// range; its proof is verified against the head's state root as the parent
// state. On any error the prior state is returned unchanged, so the caller's
// head is never half-advanced.
func Fold(ctx context.Context, oracle zkvm.Oracle, prior *ProofChainState, header *inter.BlockHeader, bundle inter.ProofBundle) (*ProofChainState, error) {
	if header.Number != prior.LastBlock+1 {
		return prior, fmt.Errorf("%w: got block %d after block %d", ErrNonContiguousFold, header.Number, prior.LastBlock)
	}
	if header.ParentHash != prior.LastBlockHash {
		return prior, fmt.Errorf("%w: block %d parent hash does not match the folded head", ErrProofChainBroken, header.Number)
	}
	bundleHash := bundle.Hash()
	if bundleHash != header.ProofRoot {
		return prior, fmt.Errorf("%w: block %d proof does not match the header commitment", ErrProofChainBroken, header.Number)
	}
	if !bundle.Outputs.Success || bundle.Outputs.StateRoot != header.StateRoot {
		return prior, fmt.Errorf("%w: block %d proof outputs disagree with the header", ErrProofChainBroken, header.Number)
	}

	stmt := zkvm.Statement{
		ParentRoot: prior.LastStateRoot,
		TxRoot:     header.TxRoot,
		Number:     header.Number,
		Time:       header.Time,
	}
	ok, err := oracle.Verify(ctx, stmt, bundle)
	if err != nil {
		return prior, fmt.Errorf("proof verification failed for block %d: %w", header.Number, err)
	}
	if !ok {
		return prior, fmt.Errorf("%w: block %d proof does not verify against the folded head", ErrProofChainBroken, header.Number)
	}

	next := &ProofChainState{
		FirstBlock:    prior.FirstBlock,
		LastBlock:     header.Number,
		LastBlockHash: header.Hash(),
		LastStateRoot: header.StateRoot,
		FoldedCount:   prior.FoldedCount + 1,
	}
	root := hashNodePair(prior.Root(), hashLeaf(bundleHash))
	next.Aggregate = encodeAggregate(next.FoldedCount, next.FirstBlock, next.LastBlock, root)
	return next, nil
}

func hashLeaf(h hash.Hash) hash.Hash {
	return hash.Of(leafTag, h.Bytes())
}

func hashNodePair(left, right hash.Hash) hash.Hash {
	return hash.Of(nodeTag, left.Bytes(), right.Bytes())
}
