package ledgercore

import (
	"errors"
	"fmt"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/common"

	"github.com/nzengi/zk-sac-engine/inter"
	"github.com/nzengi/zk-sac-engine/opera/genesis"
)

var (
	// ErrNoValidators is returned for a genesis spec with an empty
	// validator set: such a chain could never produce a block.
	ErrNoValidators = errors.New("genesis has no validators")
	// ErrDupValidator is returned when two genesis validators share an ID
	// or an address.
	ErrDupValidator = errors.New("duplicate genesis validator")
	// ErrDupAccount is returned when the genesis funds an address twice.
	ErrDupAccount = errors.New("duplicate genesis account")
)

// ApplyGenesis builds the block-0 world state from a genesis spec.
// Validators start active with a perfect score, sorted into the canonical
// order. The function is pure; the caller persists the result.
func ApplyGenesis(g *genesis.Genesis) (*WorldState, error) {
	if len(g.Validators) == 0 {
		return nil, ErrNoValidators
	}

	ws := &WorldState{
		Accounts: make(map[common.Address]*Account, len(g.Accounts)),
		Rules:    g.Rules.Copy(),
	}

	for _, acc := range g.Accounts {
		if ws.Accounts[acc.Address] != nil {
			return nil, fmt.Errorf("%w: %s", ErrDupAccount, acc.Address.String())
		}
		ws.Accounts[acc.Address] = &Account{Balance: acc.Balance}
	}

	seenID := make(map[idx.ValidatorID]bool, len(g.Validators))
	seenAddr := make(map[common.Address]bool, len(g.Validators))
	ws.Validators = make([]inter.Validator, 0, len(g.Validators))
	for _, v := range g.Validators {
		if seenID[v.ID] || seenAddr[v.Address] {
			return nil, fmt.Errorf("%w: id=%d", ErrDupValidator, v.ID)
		}
		seenID[v.ID] = true
		seenAddr[v.Address] = true
		ws.Validators = append(ws.Validators, inter.Validator{
			ID:      v.ID,
			Address: v.Address,
			PubKey:  v.PubKey.Copy(),
			Stake:   v.Stake,
			Score:   inter.ScoreMax,
			Active:  true,
		})
	}
	SortValidators(ws.Validators)

	ws.StateRoot = ws.Root()
	return ws, nil
}
