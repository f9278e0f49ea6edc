package proofchain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/nzengi/zk-sac-engine/inter"
	"github.com/nzengi/zk-sac-engine/ledgercore"
	"github.com/nzengi/zk-sac-engine/opera"
	"github.com/nzengi/zk-sac-engine/opera/genesis"
	"github.com/nzengi/zk-sac-engine/zkvm"
)

type chainStep struct {
	header inter.BlockHeader
	bundle inter.ProofBundle
}

// buildChain proves n empty blocks on top of a fake genesis and returns the
// genesis identifiers plus the per-block headers and proof bundles.
func buildChain(t *testing.T, n int) (genesisHash, genesisRoot hash.Hash, steps []chainStep) {
	t.Helper()
	g := genesis.FakeGenesis(3, 1000*opera.StakeUnit, 100*opera.StakeUnit)
	st, err := ledgercore.ApplyGenesis(&g)
	require.NoError(t, err)
	backend := zkvm.NewLocalBackend()

	genesisHash = g.Hash()
	genesisRoot = st.StateRoot
	parentHash := genesisHash
	for i := 1; i <= n; i++ {
		producer := crypto.PubkeyToAddress(genesis.FakeKey(1 + (i-1)%3).PublicKey)
		req := zkvm.ProveRequest{
			Parent:  st,
			Number:  idx.Block(i),
			Time:    g.Time + inter.Timestamp(time.Duration(i)*time.Second),
			Effects: ledgercore.Effects{Producer: producer},
		}
		bundle, err := backend.Generate(context.Background(), req)
		require.NoError(t, err)

		header := inter.BlockHeader{
			Number:     idx.Block(i),
			Round:      uint32(i),
			ParentHash: parentHash,
			StateRoot:  bundle.Outputs.StateRoot,
			TxRoot:     inter.CalcTxRoot(nil),
			ProofRoot:  bundle.Hash(),
			Time:       req.Time,
			Producer:   producer,
		}
		steps = append(steps, chainStep{header: header, bundle: bundle})

		applied, _ := ledgercore.ApplyTransactions(st, nil)
		st, err = ledgercore.ApplyBlockEffects(applied, req.Effects)
		require.NoError(t, err)
		parentHash = header.Hash()
	}
	return genesisHash, genesisRoot, steps
}

func TestFold_Chain(t *testing.T) {
	genesisHash, genesisRoot, steps := buildChain(t, 3)
	oracle := zkvm.NewLocalBackend()
	pc := NewGenesisState(genesisHash, genesisRoot)

	seen := map[hash.Hash]bool{pc.Root(): true}
	for i, step := range steps {
		next, err := Fold(context.Background(), oracle, pc, &step.header, step.bundle)
		require.NoError(t, err)

		require.Equal(t, idx.Block(1), next.FirstBlock)
		require.Equal(t, step.header.Number, next.LastBlock)
		require.Equal(t, step.header.Hash(), next.LastBlockHash)
		require.Equal(t, step.header.StateRoot, next.LastStateRoot)
		require.Equal(t, uint32(i+1), next.FoldedCount)
		require.True(t, VerifyAggregate(next))
		// Every fold moves the commitment.
		require.False(t, seen[next.Root()])
		seen[next.Root()] = true

		pc = next
	}
}

func TestFold_NonContiguous(t *testing.T) {
	genesisHash, genesisRoot, steps := buildChain(t, 2)
	oracle := zkvm.NewLocalBackend()
	pc := NewGenesisState(genesisHash, genesisRoot)

	// Skipping a height is rejected.
	got, err := Fold(context.Background(), oracle, pc, &steps[1].header, steps[1].bundle)
	require.ErrorIs(t, err, ErrNonContiguousFold)
	require.Same(t, pc, got)

	pc, err = Fold(context.Background(), oracle, pc, &steps[0].header, steps[0].bundle)
	require.NoError(t, err)

	// Folding the same height twice is rejected too.
	got, err = Fold(context.Background(), oracle, pc, &steps[0].header, steps[0].bundle)
	require.ErrorIs(t, err, ErrNonContiguousFold)
	require.Same(t, pc, got)
}

func TestFold_BrokenParentLink(t *testing.T) {
	genesisHash, genesisRoot, steps := buildChain(t, 1)
	oracle := zkvm.NewLocalBackend()
	pc := NewGenesisState(genesisHash, genesisRoot)

	header := steps[0].header
	header.ParentHash = hash.BytesToHash([]byte{7})

	got, err := Fold(context.Background(), oracle, pc, &header, steps[0].bundle)
	require.ErrorIs(t, err, ErrProofChainBroken)
	require.Same(t, pc, got)
}

func TestFold_ProofCommitmentMismatch(t *testing.T) {
	genesisHash, genesisRoot, steps := buildChain(t, 1)
	oracle := zkvm.NewLocalBackend()
	pc := NewGenesisState(genesisHash, genesisRoot)

	header := steps[0].header
	header.ProofRoot = hash.BytesToHash([]byte{8})

	_, err := Fold(context.Background(), oracle, pc, &header, steps[0].bundle)
	require.ErrorIs(t, err, ErrProofChainBroken)
}

func TestFold_OutputsDisagreeWithHeader(t *testing.T) {
	genesisHash, genesisRoot, steps := buildChain(t, 1)
	oracle := zkvm.NewLocalBackend()
	pc := NewGenesisState(genesisHash, genesisRoot)

	header := steps[0].header
	header.StateRoot = hash.BytesToHash([]byte{9})

	_, err := Fold(context.Background(), oracle, pc, &header, steps[0].bundle)
	require.ErrorIs(t, err, ErrProofChainBroken)
}

func TestFold_FailedProof(t *testing.T) {
	genesisHash, genesisRoot, steps := buildChain(t, 1)
	oracle := zkvm.NewLocalBackend()
	pc := NewGenesisState(genesisHash, genesisRoot)

	// A failure-flagged bundle is rejected even when the header commits to
	// exactly these bytes.
	bundle := steps[0].bundle
	bundle.Outputs.Success = false
	header := steps[0].header
	header.ProofRoot = bundle.Hash()

	_, err := Fold(context.Background(), oracle, pc, &header, bundle)
	require.ErrorIs(t, err, ErrProofChainBroken)
}

func TestFold_ProofDoesNotVerify(t *testing.T) {
	genesisHash, genesisRoot, steps := buildChain(t, 1)
	oracle := zkvm.NewLocalBackend()
	pc := NewGenesisState(genesisHash, genesisRoot)

	// Tampered proof bytes, with the header updated to commit to them, pass
	// every structural check and die on oracle verification.
	bundle := steps[0].bundle
	bundle.Proof = append([]byte{}, bundle.Proof...)
	bundle.Proof[0] ^= 1
	header := steps[0].header
	header.ProofRoot = bundle.Hash()

	_, err := Fold(context.Background(), oracle, pc, &header, bundle)
	require.ErrorIs(t, err, ErrProofChainBroken)
}

type erroringOracle struct{ err error }

func (o erroringOracle) Generate(ctx context.Context, req zkvm.ProveRequest) (inter.ProofBundle, error) {
	return inter.ProofBundle{}, o.err
}

func (o erroringOracle) Verify(ctx context.Context, stmt zkvm.Statement, bundle inter.ProofBundle) (bool, error) {
	return false, o.err
}

func TestFold_OracleError(t *testing.T) {
	genesisHash, genesisRoot, steps := buildChain(t, 1)
	pc := NewGenesisState(genesisHash, genesisRoot)

	oracleErr := errors.New("prover unreachable")
	got, err := Fold(context.Background(), erroringOracle{err: oracleErr}, pc, &steps[0].header, steps[0].bundle)
	require.ErrorIs(t, err, oracleErr)
	require.NotErrorIs(t, err, ErrProofChainBroken)
	require.Same(t, pc, got)
}
