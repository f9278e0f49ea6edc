// Package ledgercore maintains the replicated world state and its pure
// transition functions.
//
// Key concepts:
//   - WorldState: accounts, validators and the active rules at a height.
//     Replaced, never mutated in place: every transition copies the state,
//     derives the successor and returns it.
//   - Root: the canonical sha256 digest over a sorted view of the state.
//     Block headers and proof statements commit to it.
//   - Effects: the block-level updates beyond the transaction list
//     (producer reward, missed rounds, slashing, rule changes).
//
// Usage:
//
//	st, err := ledgercore.ApplyGenesis(g)
//	next, skipped := ledgercore.ApplyTransactions(st, txs)
//	next, err = ledgercore.ApplyBlockEffects(next, effects)
package ledgercore

import (
	"bytes"
	"crypto/sha256"
	"sort"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/nzengi/zk-sac-engine/inter"
	"github.com/nzengi/zk-sac-engine/opera"
)

// Account is a ledger balance holder. Accounts are created on first credit
// and never physically deleted; a zero balance keeps the nonce history.
type Account struct {
	// Balance in the smallest token denomination.
	Balance uint64
	// Nonce counts accepted transactions from this account. A transaction
	// must carry the current nonce to apply.
	Nonce uint64
	// Code is an optional opaque program blob attached to the account.
	// The ledger stores and hashes it but does not execute it.
	Code []byte
	// Storage is the account's optional key-value store.
	Storage map[hash.Hash]hash.Hash
}

// Copy returns a deep copy of the account.
func (a *Account) Copy() *Account {
	cp := *a
	if a.Code != nil {
		cp.Code = make([]byte, len(a.Code))
		copy(cp.Code, a.Code)
	}
	if a.Storage != nil {
		cp.Storage = make(map[hash.Hash]hash.Hash, len(a.Storage))
		for k, v := range a.Storage {
			cp.Storage[k] = v
		}
	}
	return &cp
}

// WorldState is the global ledger snapshot at a block height. The engine
// owns exactly one current instance; registry and governance code reads
// the validator portion through it and mutates only by applying state
// transitions.
type WorldState struct {
	// Accounts maps every known address to its ledger entry.
	Accounts map[common.Address]*Account

	// Validators is the validator set in canonical ascending-address
	// order. The order is part of consensus: producer selection walks it.
	Validators []inter.Validator

	// Rules is the protocol parameter set active at this height.
	// Governance execution replaces it from the next block on.
	Rules opera.Rules

	// BlockNumber is the height this state results from. Strictly +1 per
	// committed block.
	BlockNumber idx.Block

	// GlobalNonce counts transactions ever applied on this chain.
	GlobalNonce uint64

	// StateRoot caches Root() for the current contents. Transition
	// functions refresh it before returning; it is never an input.
	StateRoot hash.Hash
}

// Copy returns a deep copy of the world state.
func (ws *WorldState) Copy() *WorldState {
	cp := &WorldState{
		Accounts:    make(map[common.Address]*Account, len(ws.Accounts)),
		Validators:  make([]inter.Validator, len(ws.Validators)),
		Rules:       ws.Rules.Copy(),
		BlockNumber: ws.BlockNumber,
		GlobalNonce: ws.GlobalNonce,
		StateRoot:   ws.StateRoot,
	}
	for addr, acc := range ws.Accounts {
		cp.Accounts[addr] = acc.Copy()
	}
	for i := range ws.Validators {
		cp.Validators[i] = ws.Validators[i].Copy()
	}
	return cp
}

// GetAccount returns the account at the address, or nil when unknown.
func (ws *WorldState) GetAccount(addr common.Address) *Account {
	return ws.Accounts[addr]
}

// ValidatorByAddress returns a pointer into the state's validator slice,
// or nil when the address is not a validator. Callers mutate through it
// only inside transition code operating on a fresh copy.
func (ws *WorldState) ValidatorByAddress(addr common.Address) *inter.Validator {
	for i := range ws.Validators {
		if ws.Validators[i].Address == addr {
			return &ws.Validators[i]
		}
	}
	return nil
}

// ValidatorByID returns a pointer into the state's validator slice, or nil
// when the ID is not registered.
func (ws *WorldState) ValidatorByID(id idx.ValidatorID) *inter.Validator {
	for i := range ws.Validators {
		if ws.Validators[i].ID == id {
			return &ws.Validators[i]
		}
	}
	return nil
}

// SortValidators brings a validator slice into the canonical
// ascending-address order.
func SortValidators(vs []inter.Validator) {
	sort.Slice(vs, func(i, j int) bool {
		return bytes.Compare(vs[i].Address[:], vs[j].Address[:]) < 0
	})
}

// storageKV is one storage entry in the canonical state encoding.
type storageKV struct {
	Key hash.Hash
	Val hash.Hash
}

// accountView is one account in the canonical state encoding, with the
// storage map flattened into a key-sorted list.
type accountView struct {
	Addr    common.Address
	Balance uint64
	Nonce   uint64
	Code    []byte
	Storage []storageKV
}

// stateView is the canonical encoding of the whole state: maps flattened
// into sorted lists so the RLP stream is identical on every node.
type stateView struct {
	Accounts    []accountView
	Validators  []inter.Validator
	Rules       opera.Rules
	BlockNumber idx.Block
	GlobalNonce uint64
}

// view flattens the state into its canonical encoding: maps become
// key-sorted lists, so the RLP stream is identical on every node.
func (ws *WorldState) view() stateView {
	view := stateView{
		Accounts:    make([]accountView, 0, len(ws.Accounts)),
		Validators:  ws.Validators,
		Rules:       ws.Rules,
		BlockNumber: ws.BlockNumber,
		GlobalNonce: ws.GlobalNonce,
	}

	addrs := make([]common.Address, 0, len(ws.Accounts))
	for addr := range ws.Accounts {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool {
		return bytes.Compare(addrs[i][:], addrs[j][:]) < 0
	})
	for _, addr := range addrs {
		acc := ws.Accounts[addr]
		av := accountView{
			Addr:    addr,
			Balance: acc.Balance,
			Nonce:   acc.Nonce,
			Code:    acc.Code,
		}
		if len(acc.Storage) > 0 {
			av.Storage = make([]storageKV, 0, len(acc.Storage))
			for k, v := range acc.Storage {
				av.Storage = append(av.Storage, storageKV{Key: k, Val: v})
			}
			sort.Slice(av.Storage, func(i, j int) bool {
				return bytes.Compare(av.Storage[i].Key[:], av.Storage[j].Key[:]) < 0
			})
		}
		view.Accounts = append(view.Accounts, av)
	}
	return view
}

// Root computes the state root: the sha256 digest of the canonical RLP
// encoding. It reads every account, so transitions call it once at the
// end, not per mutation.
func (ws *WorldState) Root() hash.Hash {
	view := ws.view()
	hasher := sha256.New()
	err := rlp.Encode(hasher, &view)
	if err != nil {
		panic("can't hash: " + err.Error())
	}
	return hash.BytesToHash(hasher.Sum(nil))
}
