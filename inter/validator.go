package inter

import (
	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/common"

	"github.com/nzengi/zk-sac-engine/inter/validatorpk"
)

// ScoreBP is a validator performance score expressed in basis points,
// a fixed-point fraction of 1/10000. The range is [0, 10000], i.e. [0.0, 1.0].
// Scores are kept fixed-point so that state hashing never touches floats.
type ScoreBP uint32

const (
	// ScoreMax is a perfect performance score (1.0).
	ScoreMax ScoreBP = 10000
)

// Clamp bounds the score to the valid [0, ScoreMax] range.
func (s ScoreBP) Clamp() ScoreBP {
	if s > ScoreMax {
		return ScoreMax
	}
	return s
}

// Float returns the score as a fraction in [0, 1] for display purposes only.
// Consensus code must never branch on the float form.
func (s ScoreBP) Float() float64 {
	return float64(s) / float64(ScoreMax)
}

// Validator is a stake-bearing consensus participant. Validators live inside
// the world state; registry and governance code reads them through the state
// and mutates them only by applying state transitions, never in place.
type Validator struct {
	// ID is the registry-assigned numeric identifier, dense and stable for
	// the lifetime of the validator. Used for compact indexing.
	ID idx.ValidatorID

	// Address is the ledger account controlled by the validator's key.
	// It receives rewards and is the identity producers sign under.
	Address common.Address

	// PubKey is the scheme-tagged public key the validator signs with.
	PubKey validatorpk.PubKey

	// Stake is the amount committed by the validator. It determines the
	// selection weight and the slashing exposure. Unsigned by construction,
	// so it can never go negative.
	Stake uint64

	// Score tracks recent performance. Produced blocks raise it, missed
	// rounds lower it. Validators below the configured minimum are not
	// eligible for producer selection.
	Score ScoreBP

	// Active is cleared when the validator is deactivated by slashing below
	// the minimum stake or by governance removal. Inactive validators keep
	// their ledger entry but carry no selection weight.
	Active bool

	// ProducedBlocks counts blocks this validator produced and the network
	// committed.
	ProducedBlocks uint32

	// MissedRounds counts rounds where this validator was selected but no
	// block was committed.
	MissedRounds uint32
}

// Copy returns a deep copy of the validator.
func (v Validator) Copy() Validator {
	cp := v
	cp.PubKey = v.PubKey.Copy()
	return cp
}

// Eligible reports whether the validator passes the given stake and score
// thresholds. Both producer selection and vote eligibility use this filter.
func (v Validator) Eligible(minStake uint64, minScore ScoreBP) bool {
	return v.Active && v.Stake >= minStake && v.Score >= minScore
}
