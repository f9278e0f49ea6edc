// Package txpool holds the pending transactions a producer draws from.
//
// Key concepts:
//   - Pool: Mutex-guarded pending set with a deterministic priority order
//   - Candidates: The best pending transactions under block caps
//   - Priority: Fee desc, then arrival asc, then nonce asc, then hash asc
//
// Usage:
//
//	pool := txpool.New(txpool.DefaultConfig())
//	err := pool.Add(tx)
//	txs := pool.Candidates(int(rules.Blocks.MaxBlockTxs), budget)
//	pool.Forget(committedBlock.Txs)
//
// Only the producer's own pool order matters: validators re-check the block
// content, not the order it was drawn in. Transactions gossiped together are
// stamped with one arrival sequence, which is where the nonce and hash
// tiebreaks earn their keep.
package txpool

import (
	"bytes"
	"errors"
	"sort"
	"sync"

	"github.com/Fantom-foundation/lachesis-base/hash"

	"github.com/nzengi/zk-sac-engine/inter"
	"github.com/nzengi/zk-sac-engine/ledgercore"
)

var (
	// ErrBadSignature is returned for a transaction whose signature does not
	// recover to its declared sender.
	ErrBadSignature = errors.New("transaction signature is invalid")

	// ErrUnderpriced is returned when the fee is below the pool floor.
	ErrUnderpriced = errors.New("transaction fee below the pool floor")

	// ErrKnownTx is returned for a transaction already pending.
	ErrKnownTx = errors.New("transaction already pending")

	// ErrPoolFull is returned when the pool is at capacity and the new
	// transaction does not outrank the worst pending one.
	ErrPoolFull = errors.New("transaction pool is full")
)

// Config bounds the pool.
type Config struct {
	// MaxSize is the pending set capacity. A full pool evicts its worst
	// entry for a better newcomer and rejects the rest.
	MaxSize int

	// MinFee is the anti-spam fee floor. The ledger enforces the network
	// fee floor again at application.
	MinFee uint64
}

// DefaultConfig returns the pool bounds used by the launcher.
func DefaultConfig() Config {
	return Config{
		MaxSize: 16384,
		MinFee:  0,
	}
}

type entry struct {
	tx      *inter.Transaction
	hash    hash.Hash
	arrival uint64
}

// Pool is the pending transaction set. Safe for concurrent use.
type Pool struct {
	mu      sync.RWMutex
	cfg     Config
	entries map[hash.Hash]*entry
	arrival uint64
}

// New returns an empty pool.
func New(cfg Config) *Pool {
	return &Pool{
		cfg:     cfg,
		entries: make(map[hash.Hash]*entry),
	}
}

// Add validates and inserts one transaction, stamped with its own arrival
// sequence.
func (p *Pool) Add(tx *inter.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.add(tx, p.arrival)
	if err == nil {
		p.arrival++
	}
	return err
}

// AddBatch inserts transactions that arrived together, stamping all of them
// with one arrival sequence so the nonce and hash tiebreaks order them. The
// returned slice holds one result per transaction.
func (p *Pool) AddBatch(txs inter.Transactions) []error {
	p.mu.Lock()
	defer p.mu.Unlock()
	errs := make([]error, len(txs))
	added := false
	for i, tx := range txs {
		errs[i] = p.add(tx, p.arrival)
		added = added || errs[i] == nil
	}
	if added {
		p.arrival++
	}
	return errs
}

func (p *Pool) add(tx *inter.Transaction, seq uint64) error {
	if !tx.VerifySig() {
		return ErrBadSignature
	}
	if tx.Fee < p.cfg.MinFee {
		return ErrUnderpriced
	}
	h := tx.Hash()
	if _, ok := p.entries[h]; ok {
		return ErrKnownTx
	}
	e := &entry{tx: tx, hash: h, arrival: seq}
	if p.cfg.MaxSize > 0 && len(p.entries) >= p.cfg.MaxSize {
		worst := p.worst()
		if worst == nil || !less(e, worst) {
			return ErrPoolFull
		}
		delete(p.entries, worst.hash)
	}
	p.entries[h] = e
	return nil
}

// Candidates returns up to maxTxs pending transactions whose estimated
// sizes sum to at most maxBytes, in priority order. Oversized entries are
// skipped, not blocking; a cap of zero or below means unbounded.
func (p *Pool) Candidates(maxTxs, maxBytes int) inter.Transactions {
	p.mu.RLock()
	ordered := p.sorted()
	p.mu.RUnlock()

	var txs inter.Transactions
	var size int
	for _, e := range ordered {
		if maxTxs > 0 && len(txs) >= maxTxs {
			break
		}
		if txSize := e.tx.EstimateSize(); maxBytes > 0 {
			if size+txSize > maxBytes {
				continue
			}
			size += txSize
		}
		txs = append(txs, e.tx)
	}
	return txs
}

// Forget drops the given transactions, typically because a committed block
// included them. Unknown hashes are ignored.
func (p *Pool) Forget(txs inter.Transactions) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, tx := range txs {
		delete(p.entries, tx.Hash())
	}
}

// Prune drops transactions that can never apply again because the sender's
// account nonce has moved past them. Returns the number dropped.
func (p *Pool) Prune(st *ledgercore.WorldState) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	dropped := 0
	for h, e := range p.entries {
		acc := st.GetAccount(e.tx.From)
		if acc != nil && e.tx.Nonce < acc.Nonce {
			delete(p.entries, h)
			dropped++
		}
	}
	return dropped
}

// SetMinFee moves the fee floor, typically after a governance rules change.
// Already pending entries are kept; the ledger re-prices them at inclusion.
func (p *Pool) SetMinFee(fee uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg.MinFee = fee
}

// Len returns the number of pending transactions.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// Has reports whether the transaction is pending.
func (p *Pool) Has(h hash.Hash) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.entries[h]
	return ok
}

// sorted returns the entries in priority order. Caller must hold mu.
func (p *Pool) sorted() []*entry {
	ordered := make([]*entry, 0, len(p.entries))
	for _, e := range p.entries {
		ordered = append(ordered, e)
	}
	sort.Slice(ordered, func(i, j int) bool { return less(ordered[i], ordered[j]) })
	return ordered
}

// worst returns the lowest-priority entry. Caller must hold mu.
func (p *Pool) worst() *entry {
	var w *entry
	for _, e := range p.entries {
		if w == nil || less(w, e) {
			w = e
		}
	}
	return w
}

// less reports whether a outranks b for inclusion: higher fee first, then
// earlier arrival, then lower nonce, then lower hash.
func less(a, b *entry) bool {
	if a.tx.Fee != b.tx.Fee {
		return a.tx.Fee > b.tx.Fee
	}
	if a.arrival != b.arrival {
		return a.arrival < b.arrival
	}
	if a.tx.Nonce != b.tx.Nonce {
		return a.tx.Nonce < b.tx.Nonce
	}
	return bytes.Compare(a.hash.Bytes(), b.hash.Bytes()) < 0
}
