package zkvm

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/Fantom-foundation/lachesis-base/common/bigendian"
	"github.com/Fantom-foundation/lachesis-base/hash"

	"github.com/nzengi/zk-sac-engine/inter"
	"github.com/nzengi/zk-sac-engine/ledgercore"
)

// ProofSize is the byte length of every proof the local backend emits. Real
// proving systems emit constant-size proofs too, so downstream code may rely
// on the length.
const ProofSize = 256

// proofDomain tags the proof seed so proof bytes can never collide with any
// other digest derived from the same fields.
var proofDomain = []byte("zksac/proof/v1")

// LocalBackend is a deterministic in-process oracle. It replays the requested
// transition through the ledger code and derives the proof bytes from the
// statement and outputs, so equal requests always yield equal bundles.
//
// The backend stands where a real proving system would. Its proofs are
// binding commitments rather than zero-knowledge arguments; everything
// around it treats the bundle as opaque, so swapping in a real prover is a
// matter of implementing Oracle.
type LocalBackend struct{}

var _ Oracle = (*LocalBackend)(nil)

// NewLocalBackend returns a backend ready for use. It keeps no state, so one
// instance serves any number of concurrent calls.
func NewLocalBackend() *LocalBackend {
	return &LocalBackend{}
}

// Generate replays the transition and wraps the result in a proof bundle.
// The error is non-nil only when the block-level effects are inapplicable.
// Individual transaction failures are skips, not errors, and show up as a
// smaller TxCount instead.
func (b *LocalBackend) Generate(ctx context.Context, req ProveRequest) (inter.ProofBundle, error) {
	// A synchronous backend honors cancellation at entry only; deadlines
	// during the call are the AsyncCaller's job.
	if err := ctx.Err(); err != nil {
		return inter.ProofBundle{}, err
	}
	applied, skipped := ledgercore.ApplyTransactions(req.Parent, req.Txs)
	final, err := ledgercore.ApplyBlockEffects(applied, req.Effects)
	if err != nil {
		return inter.ProofBundle{}, fmt.Errorf("transition is unprovable: %w", err)
	}
	outputs := inter.PublicOutputs{
		StateRoot: final.StateRoot,
		TxCount:   uint32(len(req.Txs) - len(skipped)),
		Success:   true,
	}
	return inter.ProofBundle{
		Proof:   expandProof(proofSeed(req.Statement(), outputs)),
		Outputs: outputs,
	}, nil
}

// Verify recomputes the proof bytes the statement and outputs commit to and
// compares. A wrong length or any differing byte rejects; the nil error
// reports that verification itself ran fine.
func (b *LocalBackend) Verify(ctx context.Context, stmt Statement, bundle inter.ProofBundle) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if len(bundle.Proof) != ProofSize {
		return false, nil
	}
	want := expandProof(proofSeed(stmt, bundle.Outputs))
	return bytes.Equal(bundle.Proof, want), nil
}

// proofSeed binds a proof to its statement and public outputs.
func proofSeed(stmt Statement, out inter.PublicOutputs) hash.Hash {
	var success byte
	if out.Success {
		success = 1
	}
	return hash.Of(
		proofDomain,
		stmt.ParentRoot.Bytes(),
		stmt.TxRoot.Bytes(),
		bigendian.Uint64ToBytes(uint64(stmt.Number)),
		bigendian.Uint64ToBytes(uint64(stmt.Time)),
		out.StateRoot.Bytes(),
		bigendian.Uint32ToBytes(out.TxCount),
		[]byte{success},
	)
}

// expandProof stretches a seed into ProofSize pseudorandom bytes by hashing
// the seed with a block counter.
func expandProof(seed hash.Hash) []byte {
	proof := make([]byte, 0, ProofSize)
	var block [36]byte
	copy(block[:32], seed.Bytes())
	for i := 0; len(proof) < ProofSize; i++ {
		copy(block[32:], bigendian.Uint32ToBytes(uint32(i)))
		sum := sha256.Sum256(block[:])
		proof = append(proof, sum[:]...)
	}
	return proof[:ProofSize]
}
