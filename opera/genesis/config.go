// Package genesis defines the initial-state specification for a ZK-SAC
// network. The genesis establishes the initial validator set, the pre-funded
// account balances, and the network rules that all nodes must agree on
// before block 1 can be produced.
//
// Key concepts:
//   - Validator: a genesis validator entry (ID, address, public key, stake)
//   - Account: a pre-funded account balance
//   - Genesis: the complete specification combining rules, time, validators
//     and allocations
//
// Usage:
//
//	g := genesis.FakeGenesis(3, genesis.FakeBalance, genesis.FakeStake)
//	st, err := ledgercore.ApplyGenesis(&g)
//
// The genesis specification is generated programmatically for test networks
// (fakenet) or taken from a preset for public networks.
package genesis

import (
	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/nzengi/zk-sac-engine/inter"
	"github.com/nzengi/zk-sac-engine/inter/validatorpk"
	"github.com/nzengi/zk-sac-engine/opera"
)

// Validator describes one entry of the genesis validator set.
type Validator struct {
	ID      idx.ValidatorID    // consensus identifier, dense and starting at 1
	Address common.Address     // operator address, receives rewards and pays slashing
	PubKey  validatorpk.PubKey // scheme-tagged public key
	Stake   uint64             // initial stake in the smallest token denomination
}

// Validators is the ordered list of genesis validators.
type Validators []Validator

// TotalStake returns the sum of all genesis stakes.
func (vv Validators) TotalStake() uint64 {
	total := uint64(0)
	for _, v := range vv {
		total += v.Stake
	}
	return total
}

// Account is a pre-funded genesis account.
type Account struct {
	Address common.Address
	Balance uint64
}

// Genesis is the complete initial-state specification of a network.
// Applying it yields the block-0 world state every node starts from.
type Genesis struct {
	Rules      opera.Rules
	Time       inter.Timestamp
	ExtraData  []byte
	Validators Validators
	Accounts   []Account
}

// Hash returns the identifying digest of the genesis specification.
// Two nodes with different genesis hashes are on different networks.
func (g Genesis) Hash() hash.Hash {
	b, err := rlp.EncodeToBytes(&g)
	if err != nil {
		panic("can't encode: " + err.Error())
	}
	return hash.Of(b)
}
