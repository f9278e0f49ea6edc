package valreg

import (
	"math"

	"github.com/Fantom-foundation/lachesis-base/inter/pos"

	"github.com/nzengi/zk-sac-engine/inter"
	"github.com/nzengi/zk-sac-engine/opera"
)

// Snapshot builds a compact weighted view of the eligible validators for
// ID<->index lookups and quorum arithmetic over evidence attestations.
// Weights are stakes scaled down to whole tokens, floored at 1 so an
// eligible validator never vanishes from the snapshot, and capped at the
// pos.Weight range.
func Snapshot(vs []inter.Validator, rules opera.Rules) *pos.Validators {
	builder := pos.NewBuilder()
	for i := range vs {
		if !vs[i].Eligible(rules.Validators.MinStake, rules.Validators.MinScore) {
			continue
		}
		w := vs[i].Stake / opera.StakeUnit
		if w == 0 {
			w = 1
		}
		if w > math.MaxUint32 {
			w = math.MaxUint32
		}
		builder.Set(vs[i].ID, pos.Weight(w))
	}
	return builder.Build()
}
