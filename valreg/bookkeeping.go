package valreg

import (
	"math"
	"math/big"

	"github.com/nzengi/zk-sac-engine/inter"
	"github.com/nzengi/zk-sac-engine/opera"
)

// RecordProduced updates the producer's bookkeeping for a committed block.
func RecordProduced(v *inter.Validator, rules opera.Rules) {
	v.ProducedBlocks++
	v.Score = (v.Score + rules.Validators.ScoreReward).Clamp()
}

// RecordMissed updates a validator's bookkeeping for a round it was
// selected for but delivered no block.
func RecordMissed(v *inter.Validator, rules opera.Rules) {
	v.MissedRounds++
	penalty := rules.Validators.ScorePenalty
	if v.Score <= penalty {
		v.Score = 0
		return
	}
	v.Score -= penalty
}

// ApplySlash burns the configured fraction of the validator's stake and
// deactivates the validator when the remainder falls below the
// eligibility minimum. Returns the burned amount.
func ApplySlash(v *inter.Validator, rules opera.Rules) uint64 {
	burned := mulRatioBP(v.Stake, rules.Economy.SlashRatioBP)
	v.Stake -= burned
	if v.Stake < rules.Validators.MinStake {
		v.Active = false
	}
	return burned
}

// ApplyReward credits a produced-block reward to the validator's stake.
// The addition saturates instead of wrapping.
func ApplyReward(v *inter.Validator, amount uint64) {
	if v.Stake > math.MaxUint64-amount {
		v.Stake = math.MaxUint64
		return
	}
	v.Stake += amount
}

// mulRatioBP computes amount*ratioBP/10000 without intermediate overflow.
func mulRatioBP(amount uint64, ratioBP uint32) uint64 {
	r := new(big.Int).SetUint64(amount)
	r.Mul(r, big.NewInt(int64(ratioBP)))
	r.Div(r, big.NewInt(10000))
	return r.Uint64()
}
