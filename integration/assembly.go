// Package integration assembles runnable nodes from their parts: the snapshot
// store, the replicated state, the governance module and the consensus engine.
//
// Key concepts:
//   - MakeEngine: restore-or-genesis bring-up of an engine on top of a store
//   - StorePreset: named sizing profiles for the snapshot store
//
// Usage:
//
//	preset, _ := integration.GetPresetByName("lite")
//	store, _ := snapstore.NewLevelDBStore(dir, preset.CacheMB, preset.Handles)
//	eng, err := integration.MakeEngine(store, &g, consensus.Options{Key: key})
package integration

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/nzengi/zk-sac-engine/consensus"
	"github.com/nzengi/zk-sac-engine/gov"
	"github.com/nzengi/zk-sac-engine/ledgercore"
	"github.com/nzengi/zk-sac-engine/opera/genesis"
	"github.com/nzengi/zk-sac-engine/proofchain"
	"github.com/nzengi/zk-sac-engine/snapstore"
)

// MakeEngine builds a consensus engine on top of store. If the store holds a
// snapshot the engine resumes from it, otherwise g is applied as block zero.
//
// Rules carried by a snapshot win over the rules in g: they are replicated
// state and may have moved past genesis through governance. The Upgrades
// flags are the exception. They are node configuration, excluded from the
// snapshot encoding, so the flags from g overlay whatever state is restored.
func MakeEngine(store *snapstore.Store, g *genesis.Genesis, opts consensus.Options) (*consensus.Engine, error) {
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}

	snap, err := store.LoadSnapshot()
	switch {
	case err == nil:
		snap.State.Rules.Upgrades = g.Rules.Upgrades
		govm := gov.NewModule()
		govm.Restore(snap.Proposals)

		opts.State = snap.State
		opts.Chain = snap.Chain
		opts.HeadRound = snap.HeadRound
		opts.Gov = govm
		opts.Log.WithFields(logrus.Fields{
			"block":     snap.Chain.LastBlock,
			"round":     snap.HeadRound,
			"proposals": len(snap.Proposals),
		}).Info("Resuming from snapshot")

	case errors.Is(err, snapstore.ErrNoSnapshot):
		st, aerr := ledgercore.ApplyGenesis(g)
		if aerr != nil {
			return nil, fmt.Errorf("apply genesis: %w", aerr)
		}
		opts.State = st
		opts.Chain = proofchain.NewGenesisState(g.Hash(), st.StateRoot)
		opts.HeadRound = 0
		opts.Log.WithFields(logrus.Fields{
			"genesis":    g.Hash().String(),
			"network":    g.Rules.Name,
			"validators": len(g.Validators),
		}).Info("Applying genesis state")

	default:
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	opts.Store = store
	return consensus.NewEngine(opts)
}
