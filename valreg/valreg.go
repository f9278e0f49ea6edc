// Package valreg implements deterministic producer selection and the
// stake and score bookkeeping applied by state transitions.
//
// Validators live in the world state. The registry never owns them: it
// reads a validator slice, and mutations happen only through the Record
// and Apply helpers called while a block transition is built, so every
// node derives identical registry updates from the same block.
package valreg

import (
	"errors"
	"math/big"

	"github.com/Fantom-foundation/lachesis-base/common/bigendian"
	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/ethereum/go-ethereum/common"

	"github.com/nzengi/zk-sac-engine/inter"
	"github.com/nzengi/zk-sac-engine/opera"
)

var (
	// ErrNoEligibleValidator is returned when no validator passes the
	// stake, score and activity thresholds.
	ErrNoEligibleValidator = errors.New("no eligible validator")
)

// SelectionSeed derives the producer-selection seed for a round on top of
// the given parent block. The seed is unpredictable before the parent
// exists and reproducible by every node afterwards, so producer authority
// can be re-derived from header fields alone.
func SelectionSeed(parent hash.Hash, round uint32) hash.Hash {
	return hash.Of(parent.Bytes(), bigendian.Uint32ToBytes(round))
}

// SelectProducer picks the producer for a round from the eligible subset
// of the validator set, weighted by stake. vs must be in the canonical
// ascending-address order maintained by the world state; the walk order
// is part of consensus.
//
// The target point is U64(seed) mod total eligible stake. Walking the
// eligible validators in order, the first one whose cumulative stake
// strictly exceeds the target wins, so each validator owns a contiguous
// stake-sized span of the target space.
func SelectProducer(seed hash.Hash, vs []inter.Validator, rules opera.Rules) (common.Address, error) {
	minStake := rules.Validators.MinStake
	minScore := rules.Validators.MinScore

	total := new(big.Int)
	st := new(big.Int)
	for i := range vs {
		if !vs[i].Eligible(minStake, minScore) {
			continue
		}
		total.Add(total, st.SetUint64(vs[i].Stake))
	}
	if total.Sign() == 0 {
		return common.Address{}, ErrNoEligibleValidator
	}

	target := new(big.Int).SetUint64(bigendian.BytesToUint64(seed[:8]))
	target.Mod(target, total)

	cum := new(big.Int)
	for i := range vs {
		if !vs[i].Eligible(minStake, minScore) {
			continue
		}
		cum.Add(cum, st.SetUint64(vs[i].Stake))
		if cum.Cmp(target) > 0 {
			return vs[i].Address, nil
		}
	}
	// Not reachable: the cumulative sum ends at total, and target < total.
	return common.Address{}, ErrNoEligibleValidator
}
