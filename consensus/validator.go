package consensus

import (
	"context"
	"fmt"

	"github.com/nzengi/zk-sac-engine/inter"
	"github.com/nzengi/zk-sac-engine/ledgercore"
	"github.com/nzengi/zk-sac-engine/valreg"
	"github.com/nzengi/zk-sac-engine/zkvm"
)

// Validator re-derives foreign blocks and decides whether they extend the
// local head. Checks run in a fixed order, cheapest first, and the first
// failure names the rejection. The producer signature is checked last so a
// malformed block never costs a signature recovery.
type Validator struct {
	oracle zkvm.Oracle
}

// NewValidator wires a validator to the proof oracle it verifies against.
func NewValidator(oracle zkvm.Oracle) *Validator {
	return &Validator{oracle: oracle}
}

// Validate reports whether b extends the given head. A false verdict comes
// with the rejection reason. A transientOracle error means no verdict: the
// proof could not be checked right now, and the block must not be treated
// as invalid.
func (v *Validator) Validate(ctx context.Context, st *ledgercore.WorldState, parent Head, changes []inter.ProtocolChange, b *inter.Block) (bool, error) {
	_, err := v.validate(ctx, st, parent, changes, b)
	return err == nil, err
}

// validate additionally returns the recomputed post-state so the engine can
// commit an accepted block without a second derivation.
func (v *Validator) validate(ctx context.Context, st *ledgercore.WorldState, parent Head, changes []inter.ProtocolChange, b *inter.Block) (*ledgercore.WorldState, error) {
	h := &b.Header

	// Sequencing against the head.
	if want := st.BlockNumber + 1; h.Number != want {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrWrongHeight, h.Number, want)
	}
	if h.ParentHash != parent.Hash {
		return nil, ErrWrongParent
	}
	if h.Round <= parent.Round {
		return nil, fmt.Errorf("%w: got %d, head %d", ErrRoundNotAdvanced, h.Round, parent.Round)
	}

	// Producer authority for the claimed round.
	seed := valreg.SelectionSeed(h.ParentHash, h.Round)
	selected, err := valreg.SelectProducer(seed, st.Validators, st.Rules)
	if err != nil {
		return nil, err
	}
	if selected != h.Producer {
		return nil, fmt.Errorf("%w: round %d belongs to %s, block names %s",
			ErrWrongProducer, h.Round, selected.String(), h.Producer.String())
	}

	// Body shape and size rules.
	rules := st.Rules
	if uint32(len(h.Extra)) > rules.Blocks.MaxExtraData {
		return nil, fmt.Errorf("%w: extra data %d bytes over cap %d", ErrBlockOversized, len(h.Extra), rules.Blocks.MaxExtraData)
	}
	if uint32(len(b.Txs)) > rules.Blocks.MaxBlockTxs {
		return nil, fmt.Errorf("%w: %d txs over cap %d", ErrBlockOversized, len(b.Txs), rules.Blocks.MaxBlockTxs)
	}
	if size := uint64(b.EstimateSize()); size > rules.Blocks.MaxBlockSize {
		return nil, fmt.Errorf("%w: %d bytes over cap %d", ErrBlockOversized, size, rules.Blocks.MaxBlockSize)
	}
	for i := range b.Txs {
		if !b.Txs[i].VerifySig() {
			return nil, fmt.Errorf("%w: tx %d signature", ErrBadTx, i)
		}
	}
	if inter.CalcTxRoot(b.Txs) != h.TxRoot {
		return nil, ErrTxRootMismatch
	}
	if b.GovRoot() != h.GovRoot {
		return nil, ErrGovRootMismatch
	}
	if !rules.Upgrades.Gov && (len(b.Votes) > 0 || len(b.Proposals) > 0) {
		return nil, ErrGovDisabled
	}
	if !rules.Upgrades.Evidence && len(b.Evidence) > 0 {
		return nil, ErrEvidenceDisabled
	}
	for i := range b.Evidence {
		if !adjudicateEvidence(st, &b.Evidence[i]) {
			return nil, fmt.Errorf("%w: item %d", ErrBadEvidence, i)
		}
	}

	// Recompute the transition the header claims.
	post, skipped := ledgercore.ApplyTransactions(st, b.Txs)
	if len(skipped) > 0 {
		return nil, fmt.Errorf("%w: tx %d does not apply", ErrBadTx, skipped[0])
	}
	eff := ledgercore.Effects{
		Producer:  h.Producer,
		Fees:      ledgercore.SumFees(b.Txs, nil),
		Missed:    missedProducers(st, parent, h.Round),
		Offenders: offenders(b.Evidence),
		Changes:   changes,
	}
	final, err := ledgercore.ApplyBlockEffects(post, eff)
	if err != nil {
		return nil, err
	}
	if final.StateRoot != h.StateRoot {
		return nil, fmt.Errorf("%w: header %x, recomputed %x",
			ErrWrongStateRoot, h.StateRoot.Bytes()[:8], final.StateRoot.Bytes()[:8])
	}

	// Proof binding and verification.
	if b.Proof.Hash() != h.ProofRoot {
		return nil, ErrProofMismatch
	}
	out := b.Proof.Outputs
	if !out.Success || out.StateRoot != h.StateRoot || out.TxCount != uint32(len(b.Txs)) {
		return nil, ErrOutputsMismatch
	}
	stmt := zkvm.Statement{
		ParentRoot: st.StateRoot,
		TxRoot:     h.TxRoot,
		Number:     h.Number,
		Time:       h.Time,
	}
	ok, err := v.oracle.Verify(ctx, stmt, b.Proof)
	if err != nil {
		return nil, fmt.Errorf("proof verification unavailable for block %d: %w", h.Number, err)
	}
	if !ok {
		return nil, ErrInvalidProof
	}

	// Producer signature, last.
	signed := inter.SignedHeader{Header: *h, Sig: b.Sig}
	if !signed.Verify() {
		return nil, ErrBadHeaderSig
	}

	return final, nil
}
