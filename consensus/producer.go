package consensus

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/nzengi/zk-sac-engine/inter"
	"github.com/nzengi/zk-sac-engine/ledgercore"
	"github.com/nzengi/zk-sac-engine/txpool"
	"github.com/nzengi/zk-sac-engine/valreg"
	"github.com/nzengi/zk-sac-engine/zkvm"
)

// Producer assembles, proves and signs blocks for the rounds its key wins.
type Producer struct {
	oracle zkvm.Oracle
	key    *ecdsa.PrivateKey
	self   common.Address
	extra  []byte
}

// NewProducer wires a producer to its proof oracle and signing key. Extra
// is carried verbatim in every produced header, truncated to the rules cap.
func NewProducer(oracle zkvm.Oracle, key *ecdsa.PrivateKey, extra []byte) *Producer {
	return &Producer{
		oracle: oracle,
		key:    key,
		self:   crypto.PubkeyToAddress(key.PublicKey),
		extra:  extra,
	}
}

// Address returns the producer identity derived from the signing key.
func (p *Producer) Address() common.Address {
	return p.self
}

// ProduceTask names the slot being filled and the payloads to carry.
// Payload slices must already be gated by the active upgrades; the producer
// includes what it is given.
type ProduceTask struct {
	Parent    Head
	Round     uint32
	Time      inter.Timestamp
	Votes     []inter.SignedGovVote
	Proposals []inter.GovernanceProposal
	Evidence  []inter.Evidence
	Changes   []inter.ProtocolChange
}

// Produce builds, proves and signs the block for the task's round on top of
// st. Transactions come from the pool in priority order; entries the
// transition skips are dropped from the block, never aborting production.
// Returns ErrEmptyProducerSlot when the round belongs to someone else, the
// context error when proving was cut short, and ErrProofGenerationFailed
// for permanent oracle failures.
func (p *Producer) Produce(ctx context.Context, st *ledgercore.WorldState, pool *txpool.Pool, task ProduceTask) (*inter.Block, error) {
	b, _, err := p.produce(ctx, st, pool, task)
	return b, err
}

// produce additionally returns the post-state so the engine can commit the
// block without re-deriving it.
func (p *Producer) produce(ctx context.Context, st *ledgercore.WorldState, pool *txpool.Pool, task ProduceTask) (*inter.Block, *ledgercore.WorldState, error) {
	if task.Round <= task.Parent.Round {
		return nil, nil, fmt.Errorf("%w: round %d at head round %d", ErrRoundNotAdvanced, task.Round, task.Parent.Round)
	}
	seed := valreg.SelectionSeed(task.Parent.Hash, task.Round)
	selected, err := valreg.SelectProducer(seed, st.Validators, st.Rules)
	if err != nil {
		return nil, nil, err
	}
	if selected != p.self {
		return nil, nil, fmt.Errorf("%w: round %d belongs to %s", ErrEmptyProducerSlot, task.Round, selected.String())
	}

	extra := p.extra
	if max := int(st.Rules.Blocks.MaxExtraData); len(extra) > max {
		extra = extra[:max]
	}

	txs := p.selectTxs(st, pool, task, extra)
	post, skipped := ledgercore.ApplyTransactions(st, txs)
	if len(skipped) > 0 {
		// Skipped entries touched nothing, so the post-state already equals
		// the one for the filtered list.
		txs = dropSkipped(txs, skipped)
	}

	eff := ledgercore.Effects{
		Producer:  p.self,
		Fees:      ledgercore.SumFees(txs, nil),
		Missed:    missedProducers(st, task.Parent, task.Round),
		Offenders: offenders(task.Evidence),
		Changes:   task.Changes,
	}
	final, err := ledgercore.ApplyBlockEffects(post, eff)
	if err != nil {
		return nil, nil, err
	}

	number := task.Parent.Number + 1
	bundle, err := p.oracle.Generate(ctx, zkvm.ProveRequest{
		Parent:  st,
		Txs:     txs,
		Number:  number,
		Time:    task.Time,
		Effects: eff,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		if transientOracle(err) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrProofGenerationFailed, err)
	}
	if !bundle.Outputs.Success || bundle.Outputs.StateRoot != final.StateRoot {
		return nil, nil, fmt.Errorf("%w: oracle %x, local %x",
			ErrStateRootMismatch, bundle.Outputs.StateRoot.Bytes()[:8], final.StateRoot.Bytes()[:8])
	}

	header := inter.BlockHeader{
		Number:     number,
		Round:      task.Round,
		ParentHash: task.Parent.Hash,
		StateRoot:  final.StateRoot,
		TxRoot:     inter.CalcTxRoot(txs),
		ProofRoot:  bundle.Hash(),
		GovRoot:    inter.CalcGovRoot(task.Votes, task.Proposals, task.Evidence),
		Time:       task.Time,
		Producer:   p.self,
		Extra:      extra,
	}
	sig, err := inter.SignHeader(&header, p.key)
	if err != nil {
		return nil, nil, err
	}

	b := &inter.Block{
		Header:    header,
		Txs:       txs,
		Proof:     bundle,
		Sig:       sig,
		Votes:     task.Votes,
		Proposals: task.Proposals,
		Evidence:  task.Evidence,
	}
	return b, final, nil
}

// selectTxs pulls pool candidates that fit the rules caps after accounting
// for the size of everything else the block carries.
func (p *Producer) selectTxs(st *ledgercore.WorldState, pool *txpool.Pool, task ProduceTask, extra []byte) inter.Transactions {
	if pool == nil {
		return nil
	}
	skeleton := inter.Block{
		Header:    inter.BlockHeader{Extra: extra},
		Proof:     inter.ProofBundle{Proof: make([]byte, zkvm.ProofSize)},
		Votes:     task.Votes,
		Proposals: task.Proposals,
		Evidence:  task.Evidence,
	}
	budget := int(st.Rules.Blocks.MaxBlockSize) - skeleton.EstimateSize()
	if budget <= 0 {
		return nil
	}
	return pool.Candidates(int(st.Rules.Blocks.MaxBlockTxs), budget)
}

// dropSkipped returns txs without the entries at the skip indices. The
// indices are ascending, as ApplyTransactions reports them.
func dropSkipped(txs inter.Transactions, skipped []uint32) inter.Transactions {
	kept := make(inter.Transactions, 0, len(txs)-len(skipped))
	next := 0
	for i, tx := range txs {
		if next < len(skipped) && skipped[next] == uint32(i) {
			next++
			continue
		}
		kept = append(kept, tx)
	}
	return kept
}
