package genesis

import (
	"crypto/ecdsa"
	"io"
	"math/rand"
	"time"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/nzengi/zk-sac-engine/inter"
	"github.com/nzengi/zk-sac-engine/inter/validatorpk"
	"github.com/nzengi/zk-sac-engine/opera"
)

// FakeGenesisTime is the default timestamp used for fake genesis blocks.
// Timestamp: 1608600000 seconds since Unix epoch (December 22, 2020).
// This provides a consistent reference point for fake network initialization.
var FakeGenesisTime = inter.Timestamp(1608600000 * time.Second)

// Default fakenet funding.
const (
	// FakeBalance is the default fakenet account balance (1M whole tokens).
	FakeBalance = 1000000 * opera.StakeUnit

	// FakeStake is the default fakenet validator stake (100K whole tokens).
	FakeStake = 100000 * opera.StakeUnit
)

// FakeKey generates a deterministic fake private key for testing purposes.
// Given the same index n, it always generates the same key, which keeps fake
// network validators reproducible across nodes and test runs. Never use such
// keys outside local networks.
func FakeKey(n int) *ecdsa.PrivateKey {
	reader := rand.New(rand.NewSource(int64(n)))

	key, err := ecdsa.GenerateKey(crypto.S256(), noProbeReader{reader})
	if err != nil {
		panic(err)
	}

	return key
}

// noProbeReader passes the seeded stream through to ecdsa.GenerateKey, except
// that it serves the single-byte probe GenerateKey reads with 50% probability
// per call since Go 1.20 (crypto/internal/randutil.MaybeReadByte) without
// consuming the stream. Letting the probe through would randomly shift the
// stream and break FakeKey's per-seed determinism. Scalar derivation itself
// never reads one byte at a time, so only the probe is affected; on older
// toolchains without the probe this wrapper changes nothing.
type noProbeReader struct{ r io.Reader }

func (nr noProbeReader) Read(p []byte) (int, error) {
	if len(p) == 1 {
		p[0] = 0
		return 1, nil
	}
	return nr.r.Read(p)
}

// FakeValidator builds the genesis entry of fake validator n (1-based)
// with the given stake.
func FakeValidator(n int, stake uint64) Validator {
	key := FakeKey(n)
	return Validator{
		ID:      idx.ValidatorID(n),
		Address: crypto.PubkeyToAddress(key.PublicKey),
		PubKey:  validatorpk.FromECDSA(&key.PublicKey),
		Stake:   stake,
	}
}

// FakeGenesis assembles a complete fake network genesis with num validators,
// each pre-funded with balance and staking stake.
func FakeGenesis(num int, balance, stake uint64) Genesis {
	g := Genesis{
		Rules: opera.FakeNetRules(),
		Time:  FakeGenesisTime,
	}
	for i := 1; i <= num; i++ {
		v := FakeValidator(i, stake)
		g.Validators = append(g.Validators, v)
		g.Accounts = append(g.Accounts, Account{Address: v.Address, Balance: balance})
	}
	return g
}
