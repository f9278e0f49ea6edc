// Package snapstore persists the engine's committed snapshot so a node can
// resume without replaying the chain.
//
// Key concepts:
//   - Snapshot: World state, proof-chain aggregate, head round and the
//     governance records at one committed height
//   - Store: One versioned record under a fixed key, last write wins
//
// Usage:
//
//	store, err := snapstore.NewLevelDBStore(path, 16, 16)
//	err = store.SaveSnapshot(&snapstore.Snapshot{State: st, Chain: pc, ...})
//	snap, err := store.LoadSnapshot()
//
// The record carries only replicated data. Node configuration that is
// excluded from the state root, like opera.Upgrades, is not in it; the
// launcher overlays it after a restore.
package snapstore

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/nzengi/zk-sac-engine/gov"
	"github.com/nzengi/zk-sac-engine/ledgercore"
	"github.com/nzengi/zk-sac-engine/proofchain"
)

// snapshotVersion is bumped when the record layout changes. A store written
// by a different layout refuses to load instead of misdecoding.
const snapshotVersion = 1

var (
	// ErrNoSnapshot is returned by LoadSnapshot on a store that has never
	// been saved to.
	ErrNoSnapshot = errors.New("no snapshot in the store")

	snapshotKey = []byte("S")
)

// Snapshot is everything the engine needs to resume from a commit.
type Snapshot struct {
	// State is the committed world state.
	State *ledgercore.WorldState

	// Chain is the proof-chain aggregate at the same height.
	Chain *proofchain.ProofChainState

	// HeadRound is the round of the committed head block. The next block's
	// round must exceed it, so it has to survive restarts.
	HeadRound uint32

	// Proposals are the governance records to restore into gov.Module.
	Proposals []gov.Proposal
}

// Store persists snapshots in a key-value database.
type Store struct {
	db ethdb.KeyValueStore
}

// NewStore wraps an opened database.
func NewStore(db ethdb.KeyValueStore) *Store {
	return &Store{db: db}
}

// NewMemStore returns a Store over an in-memory database.
func NewMemStore() *Store {
	return NewStore(memorydb.New())
}

// NewLevelDBStore opens or creates a LevelDB-backed store at path.
func NewLevelDBStore(path string, cacheMB, handles int) (*Store, error) {
	db, err := leveldb.New(path, cacheMB, handles, "zksac/db", false)
	if err != nil {
		return nil, fmt.Errorf("can't open snapshot db at %s: %w", path, err)
	}
	return NewStore(db), nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSnapshot overwrites the stored snapshot. One record, one Put: a crash
// mid-write leaves either the old record or the new one, never a mix.
func (s *Store) SaveSnapshot(snap *Snapshot) error {
	body, err := rlp.EncodeToBytes(snap)
	if err != nil {
		return fmt.Errorf("can't encode snapshot: %w", err)
	}
	rec := make([]byte, 1+len(body))
	rec[0] = snapshotVersion
	copy(rec[1:], body)
	return s.db.Put(snapshotKey, rec)
}

// LoadSnapshot returns the stored snapshot, or ErrNoSnapshot when the store
// is empty.
func (s *Store) LoadSnapshot() (*Snapshot, error) {
	ok, err := s.db.Has(snapshotKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoSnapshot
	}
	rec, err := s.db.Get(snapshotKey)
	if err != nil {
		return nil, err
	}
	if len(rec) == 0 || rec[0] != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot record version %d, expected %d",
			recVersion(rec), snapshotVersion)
	}
	snap := &Snapshot{}
	if err := rlp.DecodeBytes(rec[1:], snap); err != nil {
		return nil, fmt.Errorf("can't decode snapshot: %w", err)
	}
	return snap, nil
}

func recVersion(rec []byte) int {
	if len(rec) == 0 {
		return -1
	}
	return int(rec[0])
}
