// Package zkvm provides the proof oracle: the component that turns a state
// transition into a succinct proof and checks such proofs against their
// public statement.
//
// Key concepts:
//   - Statement: The public inputs a proof is checked against
//   - ProveRequest: The full witness handed to the prover
//   - Oracle: Proof generation and verification behind one interface
//   - LocalBackend: A deterministic in-process prover
//   - AsyncCaller: Concurrency cap, timeout and retries around a backend
//
// Usage:
//
//	oracle := zkvm.NewAsyncCaller(zkvm.NewLocalBackend(), rules.Oracle)
//	bundle, err := oracle.Generate(ctx, req)
//	ok, err := oracle.Verify(ctx, req.Statement(), bundle)
//
// Proof generation is the slow path of block production, so the engine talks
// to the oracle through an AsyncCaller. Verification is cheap and runs on
// every validator for every block.
package zkvm

import (
	"context"
	"errors"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/Fantom-foundation/lachesis-base/inter/idx"

	"github.com/nzengi/zk-sac-engine/inter"
	"github.com/nzengi/zk-sac-engine/ledgercore"
)

// ErrOracleTimeout is returned when a proving call exceeds the configured
// proof timeout. Timeouts are the only failures worth retrying; every other
// proving error is deterministic and would just repeat.
var ErrOracleTimeout = errors.New("proof oracle timed out")

// Statement is the public input of a proof: the claim that executing the
// block at Number/Time on top of ParentRoot, with the transaction list
// committed by TxRoot, yields the prover's outputs. Every field is derivable
// from a header and its parent, so verifiers never need the witness.
type Statement struct {
	ParentRoot hash.Hash
	TxRoot     hash.Hash
	Number     idx.Block
	Time       inter.Timestamp
}

// ProveRequest is the prover's witness: the parent state plus the block
// content to execute on top of it. The request is read-only for the oracle;
// backends work on copies.
type ProveRequest struct {
	// Parent is the world state the block builds on.
	Parent *ledgercore.WorldState

	// Txs is the ordered transaction list of the block.
	Txs inter.Transactions

	// Number and Time mirror the header fields of the block being proven.
	Number idx.Block
	Time   inter.Timestamp

	// Effects are the block-level effects the producer derived for this
	// block. The prover re-applies them after the transactions.
	Effects ledgercore.Effects
}

// Statement returns the public statement this request proves.
func (r *ProveRequest) Statement() Statement {
	return Statement{
		ParentRoot: r.Parent.Root(),
		TxRoot:     inter.CalcTxRoot(r.Txs),
		Number:     r.Number,
		Time:       r.Time,
	}
}

// Oracle generates and verifies state-transition proofs. Implementations
// must be safe for concurrent use: the engine proves and verifies from
// different goroutines.
type Oracle interface {
	// Generate proves the transition described by req and returns the proof
	// bundle with its public outputs filled in.
	Generate(ctx context.Context, req ProveRequest) (inter.ProofBundle, error)

	// Verify checks the bundle against the statement. False with a nil error
	// means the proof does not attest to the statement; a non-nil error means
	// verification itself could not run.
	Verify(ctx context.Context, stmt Statement, bundle inter.ProofBundle) (bool, error)
}
