package consensus

import (
	"context"
	"errors"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/common"

	"github.com/nzengi/zk-sac-engine/inter"
	"github.com/nzengi/zk-sac-engine/ledgercore"
	"github.com/nzengi/zk-sac-engine/valreg"
	"github.com/nzengi/zk-sac-engine/zkvm"
)

// Head names the latest committed block. Every production and validation
// decision keys off it: the next height, the parent hash the child must
// carry, and the round the child must advance past.
type Head struct {
	Number idx.Block
	Hash   hash.Hash
	Round  uint32
}

// HeadOf reads the head fields back out of a committed header.
func HeadOf(h *inter.BlockHeader) Head {
	return Head{
		Number: h.Number,
		Hash:   h.Hash(),
		Round:  h.Round,
	}
}

// missedProducers lists the producers scheduled for the rounds skipped
// between the head and the delivered round, in round order. Only the first
// MissedSlack skipped rounds are examined, which both matches the penalty
// cap and bounds the walk after a long outage.
func missedProducers(st *ledgercore.WorldState, parent Head, round uint32) []common.Address {
	if round <= parent.Round {
		return nil
	}
	gap := round - parent.Round - 1
	if gap > ledgercore.MissedSlack {
		gap = ledgercore.MissedSlack
	}
	var missed []common.Address
	for i := uint32(1); i <= gap; i++ {
		seed := valreg.SelectionSeed(parent.Hash, parent.Round+i)
		addr, err := valreg.SelectProducer(seed, st.Validators, st.Rules)
		if err != nil {
			continue
		}
		missed = append(missed, addr)
	}
	return missed
}

// offenders lists the culprit of each evidence item, in evidence order.
// Duplicates are kept: two distinct items against the same validator are
// two offenses.
func offenders(evs []inter.Evidence) []common.Address {
	if len(evs) == 0 {
		return nil
	}
	out := make([]common.Address, len(evs))
	for i := range evs {
		out[i] = evs[i].Culprit()
	}
	return out
}

// adjudicateEvidence re-checks one evidence item against the current
// validator set: internal consistency, a registered culprit and, for proof
// failure claims, attestors that are eligible validators other than the
// culprit itself. Historical producer authority is not re-opened; the
// corroborating signatures stand in for it.
func adjudicateEvidence(st *ledgercore.WorldState, ev *inter.Evidence) bool {
	if !ev.WellFormed() {
		return false
	}
	culprit := ev.Culprit()
	if st.ValidatorByAddress(culprit) == nil {
		return false
	}
	if pf := ev.ProofFailure; pf != nil {
		eligible := valreg.Snapshot(st.Validators, st.Rules)
		for i := range pf.Pals {
			attestor := pf.Pals[i].Attestor
			if attestor == culprit {
				return false
			}
			val := st.ValidatorByAddress(attestor)
			if val == nil || !eligible.Exists(val.ID) {
				return false
			}
		}
	}
	return true
}

// transientOracle distinguishes "the oracle could not answer right now"
// from a verdict about the proof itself.
func transientOracle(err error) bool {
	return errors.Is(err, zkvm.ErrOracleTimeout) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}

