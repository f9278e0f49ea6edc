package ledgercore

import (
	"errors"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nzengi/zk-sac-engine/inter"
	"github.com/nzengi/zk-sac-engine/opera"
	"github.com/nzengi/zk-sac-engine/valreg"
)

// MissedSlack caps how many missed-round penalties a single block applies.
// The part of a round gap past the slack carries no penalty; every node
// applies the same cap, so attribution stays deterministic.
const MissedSlack = 50

var (
	// ErrUnknownProducer is returned when block effects name a producer
	// that is not in the validator set.
	ErrUnknownProducer = errors.New("producer is not a registered validator")

	errFeeTooLow           = errors.New("fee below the network minimum")
	errCostOverflow        = errors.New("amount+fee overflows")
	errBadSignature        = errors.New("signature does not recover to sender")
	errUnknownSender       = errors.New("unknown sender account")
	errBadNonce            = errors.New("nonce mismatch")
	errInsufficientBalance = errors.New("balance below amount+fee")
	errBalanceOverflow     = errors.New("recipient balance overflows")
)

// ApplyTransactions applies an ordered transaction list to the state and
// returns the successor state plus the indices of transactions that did
// not apply. The input state is never mutated.
//
// A failing transaction is skipped, not fatal: producers drop skipped
// transactions from the candidate set, and validators re-derive the same
// skip decisions, so both sides reach the same root.
func ApplyTransactions(st *WorldState, txs inter.Transactions) (*WorldState, []uint32) {
	cp := st.Copy()
	var skipped []uint32
	for i, tx := range txs {
		if err := applyTx(cp, tx); err != nil {
			skipped = append(skipped, uint32(i))
		}
	}
	cp.StateRoot = cp.Root()
	return cp, skipped
}

// applyTx applies one transaction in place on a state copy owned by the
// caller. On error the state is unchanged.
func applyTx(ws *WorldState, tx *inter.Transaction) error {
	if tx.Fee < ws.Rules.Economy.MinFee {
		return errFeeTooLow
	}
	cost, overflow := tx.Cost()
	if overflow {
		return errCostOverflow
	}
	if !tx.VerifySig() {
		return errBadSignature
	}
	sender := ws.Accounts[tx.From]
	if sender == nil {
		// No account creation on failure.
		return errUnknownSender
	}
	if sender.Nonce != tx.Nonce {
		return errBadNonce
	}
	if sender.Balance < cost {
		return errInsufficientBalance
	}
	if tx.To != tx.From {
		if r := ws.Accounts[tx.To]; r != nil && r.Balance > math.MaxUint64-tx.Amount {
			return errBalanceOverflow
		}
	}

	sender.Balance -= cost
	sender.Nonce++
	ws.GlobalNonce++

	recipient := ws.Accounts[tx.To]
	if recipient == nil {
		recipient = &Account{}
		ws.Accounts[tx.To] = recipient
	}
	recipient.Balance += tx.Amount
	return nil
}

// SumFees totals the fees of the transactions that applied, given the
// skip indices ApplyTransactions reported. The sum saturates.
func SumFees(txs inter.Transactions, skipped []uint32) uint64 {
	var total uint64
	next := 0
	for i, tx := range txs {
		if next < len(skipped) && skipped[next] == uint32(i) {
			next++
			continue
		}
		if total > math.MaxUint64-tx.Fee {
			return math.MaxUint64
		}
		total += tx.Fee
	}
	return total
}

// Effects are the block-level state updates beyond the transaction list.
// They are not transmitted: producer and validators each derive them from
// the block header and their own state, and must arrive at the same value.
type Effects struct {
	// Producer is the validator charged with the block. It is credited
	// the fees and the stake reward.
	Producer common.Address

	// Fees is the total fee of the applied transactions.
	Fees uint64

	// Missed lists, in round order, the producers selected for the rounds
	// between the parent block and this one that delivered nothing.
	Missed []common.Address

	// Offenders lists validators convicted by evidence carried in this
	// block. Each is slashed at the configured ratio.
	Offenders []common.Address

	// Changes are protocol parameter changes from approved proposals
	// whose execution lands in this block.
	Changes []inter.ProtocolChange
}

// ApplyBlockEffects applies the block-level effects on top of the
// post-transaction state and returns the successor: block number advance,
// producer bookkeeping and reward, missed-round penalties, slashes and
// rule changes. The input state is never mutated.
//
// The reward is computed under the pre-change rules; changed rules take
// effect from the next block.
func ApplyBlockEffects(st *WorldState, e Effects) (*WorldState, error) {
	cp := st.Copy()
	cp.BlockNumber++

	producer := cp.ValidatorByAddress(e.Producer)
	if producer == nil {
		return nil, ErrUnknownProducer
	}
	valreg.RecordProduced(producer, cp.Rules)
	reward := StakeReward(producer.Stake, cp.Rules)
	if reward > math.MaxUint64-e.Fees {
		reward = math.MaxUint64
	} else {
		reward += e.Fees
	}
	valreg.ApplyReward(producer, reward)

	missed := e.Missed
	if len(missed) > MissedSlack {
		missed = missed[:MissedSlack]
	}
	for _, addr := range missed {
		if v := cp.ValidatorByAddress(addr); v != nil {
			valreg.RecordMissed(v, cp.Rules)
		}
	}

	for _, addr := range e.Offenders {
		if v := cp.ValidatorByAddress(addr); v != nil {
			valreg.ApplySlash(v, cp.Rules)
		}
	}

	if len(e.Changes) > 0 {
		rules, err := cp.Rules.ApplyProtocolChanges(e.Changes)
		if err != nil {
			return nil, err
		}
		cp.Rules = rules
	}

	cp.StateRoot = cp.Root()
	return cp, nil
}

// StakeReward returns the per-block production reward on the producer's
// stake: the annualized Economy.RewardRatioBP rate spread over the number
// of rounds a year holds.
func StakeReward(stake uint64, rules opera.Rules) uint64 {
	interval := uint64(rules.Blocks.RoundInterval)
	if interval == 0 {
		return 0
	}
	roundsPerYear := uint64(365*24*time.Hour) / interval
	if roundsPerYear == 0 {
		return 0
	}
	r := new(big.Int).SetUint64(stake)
	r.Mul(r, big.NewInt(int64(rules.Economy.RewardRatioBP)))
	r.Div(r, big.NewInt(10000))
	r.Div(r, new(big.Int).SetUint64(roundsPerYear))
	return r.Uint64()
}
