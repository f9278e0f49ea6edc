package valreg

import (
	"testing"

	"github.com/Fantom-foundation/lachesis-base/common/bigendian"
	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/nzengi/zk-sac-engine/inter"
	"github.com/nzengi/zk-sac-engine/opera"
)

// stakedSet builds a validator set in canonical ascending-address order,
// one validator per stake, all active with a perfect score.
func stakedSet(stakes ...uint64) []inter.Validator {
	vs := make([]inter.Validator, len(stakes))
	for i, stake := range stakes {
		vs[i] = inter.Validator{
			ID:      idx.ValidatorID(i + 1),
			Address: common.BytesToAddress([]byte{byte(i + 1)}),
			Stake:   stake,
			Score:   inter.ScoreMax,
			Active:  true,
		}
	}
	return vs
}

// seedWithTarget crafts a seed whose leading 8 bytes decode to the given
// value, so U64(seed) is exactly the value before the modulo.
func seedWithTarget(v uint64) hash.Hash {
	var s hash.Hash
	copy(s[:8], bigendian.Uint64ToBytes(v))
	return s
}

// openRules lowers the eligibility floors so unit-scale stakes qualify.
func openRules() opera.Rules {
	r := opera.FakeNetRules()
	r.Validators.MinStake = 1
	return r
}

func TestSelectionSeed(t *testing.T) {
	require := require.New(t)

	parent := hash.Of([]byte("parent"))
	other := hash.Of([]byte("other"))

	require.Equal(SelectionSeed(parent, 3), SelectionSeed(parent, 3))
	require.NotEqual(SelectionSeed(parent, 3), SelectionSeed(parent, 4))
	require.NotEqual(SelectionSeed(parent, 3), SelectionSeed(other, 3))
}

func TestSelectProducer_WeightedWalk(t *testing.T) {
	require := require.New(t)

	rules := openRules()
	vs := stakedSet(100, 200, 300) // cumulative spans: [0,100) [100,300) [300,600)

	cases := []struct {
		target uint64
		winner common.Address
	}{
		{0, vs[0].Address},
		{99, vs[0].Address},
		{100, vs[1].Address},
		{250, vs[1].Address},
		{299, vs[1].Address},
		{300, vs[2].Address},
		{599, vs[2].Address},
		{600, vs[0].Address}, // wraps: 600 mod 600 = 0
		{601, vs[0].Address},
	}
	for _, c := range cases {
		got, err := SelectProducer(seedWithTarget(c.target), vs, rules)
		require.NoError(err)
		require.Equal(c.winner, got, "target %d", c.target)
	}
}

func TestSelectProducer_Deterministic(t *testing.T) {
	require := require.New(t)

	rules := openRules()
	vs := stakedSet(5, 50, 500, 5000)

	for round := uint32(0); round < 64; round++ {
		seed := SelectionSeed(hash.Of([]byte("head")), round)
		first, err := SelectProducer(seed, vs, rules)
		require.NoError(err)
		again, err := SelectProducer(seed, vs, rules)
		require.NoError(err)
		require.Equal(first, again, "round %d", round)
	}
}

func TestSelectProducer_SkipsIneligible(t *testing.T) {
	require := require.New(t)

	rules := openRules()
	rules.Validators.MinStake = 100
	rules.Validators.MinScore = 5000

	vs := stakedSet(100, 200, 300)
	vs[0].Active = false // out: deactivated
	vs[1].Score = 4999   // out: below the score floor

	// Only the third validator remains, so it owns the whole target space.
	for _, target := range []uint64{0, 1, 77, 299} {
		got, err := SelectProducer(seedWithTarget(target), vs, rules)
		require.NoError(err)
		require.Equal(vs[2].Address, got, "target %d", target)
	}

	// Dropping its stake below the minimum empties the eligible set.
	vs[2].Stake = 99
	_, err := SelectProducer(seedWithTarget(0), vs, rules)
	require.ErrorIs(err, ErrNoEligibleValidator)
}

func TestSelectProducer_EmptySet(t *testing.T) {
	_, err := SelectProducer(seedWithTarget(7), nil, openRules())
	require.ErrorIs(t, err, ErrNoEligibleValidator)
}

// The stake distribution of selections over many rounds must track the
// stake distribution of the set. The bound is loose; the point is that no
// validator is starved or dominant beyond its stake share.
func TestSelectProducer_StakeProportionality(t *testing.T) {
	require := require.New(t)

	rules := openRules()
	vs := stakedSet(100, 200, 300)

	counts := map[common.Address]int{}
	parent := hash.Of([]byte("chain"))
	const rounds = 6000
	for round := uint32(0); round < rounds; round++ {
		got, err := SelectProducer(SelectionSeed(parent, round), vs, rules)
		require.NoError(err)
		counts[got]++
	}

	for i, share := range []float64{100.0 / 600, 200.0 / 600, 300.0 / 600} {
		got := float64(counts[vs[i].Address]) / rounds
		require.InDelta(share, got, 0.05, "validator %d", i+1)
	}
}
