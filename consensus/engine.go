// Package consensus runs the block production and validation loop.
//
// Key concepts:
//   - Head: the latest committed block; every decision keys off it.
//   - Round: a production slot. Rounds advance on a wall-clock timer and
//     the stake-weighted lottery names one producer per round. Rounds with
//     an absent producer pass silently and the gap is recorded on-chain by
//     the next block.
//   - Commit: folding a validated block's proof into the running proof
//     chain and adopting its post-state. A contradiction at this stage
//     means local components disagree with each other, and the engine
//     halts rather than extend a chain it cannot vouch for.
//
// Usage:
//
//	eng, err := consensus.NewEngine(consensus.Options{...})
//	eng.Start(ctx)
//	defer eng.Stop()
//	eng.SubmitTransaction(tx)
package consensus

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"

	"github.com/nzengi/zk-sac-engine/gov"
	"github.com/nzengi/zk-sac-engine/inter"
	"github.com/nzengi/zk-sac-engine/ledgercore"
	"github.com/nzengi/zk-sac-engine/proofchain"
	"github.com/nzengi/zk-sac-engine/snapstore"
	"github.com/nzengi/zk-sac-engine/transport"
	"github.com/nzengi/zk-sac-engine/txpool"
	"github.com/nzengi/zk-sac-engine/valreg"
	"github.com/nzengi/zk-sac-engine/zkvm"
)

// Queue bounds. Overflow drops the newcomer with an error so callers can
// back off; gossip paths log and move on.
const (
	inboundBuffer       = 16
	maxPendingProposals = 64
	maxPendingVotes     = 1024
	maxPendingEvidence  = 16
)

// Step names what the engine is doing right now.
type Step uint8

const (
	StepIdle Step = iota
	StepProducing
	StepValidating
	StepCommitting
)

func (s Step) String() string {
	switch s {
	case StepIdle:
		return "idle"
	case StepProducing:
		return "producing"
	case StepValidating:
		return "validating"
	case StepCommitting:
		return "committing"
	default:
		return "unknown"
	}
}

// Status is a point-in-time snapshot of the engine for operators and tests.
type Status struct {
	Head    Head
	Round   uint32
	Step    Step
	PoolLen int
	Halted  error
}

// Options configures a new engine. Key, State and Chain are required; the
// rest default to local single-node equivalents.
type Options struct {
	// Key signs produced headers and names the validator identity.
	Key *ecdsa.PrivateKey

	// State and Chain are the committed world state and proof chain to
	// resume from, either fresh out of genesis or restored from a snapshot.
	State *ledgercore.WorldState
	Chain *proofchain.ProofChainState

	// HeadRound is the round of the head block. Zero for genesis.
	HeadRound uint32

	// Backend is the raw proving backend. Defaults to the local oracle.
	Backend zkvm.Oracle

	// Pool holds candidate transactions. Defaults to an empty default pool.
	Pool *txpool.Pool

	// Gov tracks governance proposals. Defaults to a fresh module; restore
	// it from a snapshot before handing it over.
	Gov *gov.Module

	// Store persists commit snapshots. Nil disables persistence.
	Store *snapstore.Store

	// Broadcaster publishes blocks and gossip. Defaults to a null device.
	Broadcaster transport.Broadcaster

	// Log defaults to the standard logger.
	Log *logrus.Logger

	// Extra is carried in every produced header, truncated to the rules cap.
	Extra []byte
}

// Engine drives rounds for one validator: a timer advances rounds, the
// lottery says who produces, own slots run the producer, foreign blocks run
// the validator, and both meet in commit. All chain mutations happen on the
// single loop goroutine; the public surface only enqueues and reads.
type Engine struct {
	mu   sync.RWMutex
	log  *logrus.Logger
	self common.Address
	key  *ecdsa.PrivateKey

	backend   zkvm.Oracle
	oracle    zkvm.Oracle
	producer  *Producer
	validator *Validator

	pool  *txpool.Pool
	gov   *gov.Module
	store *snapstore.Store
	bcast transport.Broadcaster
	extra []byte

	st    *ledgercore.WorldState
	chain *proofchain.ProofChainState
	head  Head
	round uint32
	step  Step

	pendingProposals []inter.GovernanceProposal
	pendingVotes     []inter.SignedGovVote
	pendingEvidence  []inter.Evidence
	seen             map[hash.Hash]bool

	inbound chan *inter.Block
	quit    chan struct{}
	wg      sync.WaitGroup
	running bool
	halted  error
}

// NewEngine validates the options and assembles an engine. The state root
// must match the proof chain's, otherwise the two inputs describe different
// histories.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Key == nil {
		return nil, errors.New("consensus: signing key required")
	}
	if opts.State == nil || opts.Chain == nil {
		return nil, errors.New("consensus: state and proof chain required")
	}
	if opts.State.StateRoot != opts.Chain.LastStateRoot {
		return nil, fmt.Errorf("consensus: state root %x does not match proof chain root %x",
			opts.State.StateRoot.Bytes()[:8], opts.Chain.LastStateRoot.Bytes()[:8])
	}
	if opts.Backend == nil {
		opts.Backend = zkvm.NewLocalBackend()
	}
	if opts.Pool == nil {
		opts.Pool = txpool.New(txpool.DefaultConfig())
	}
	if opts.Gov == nil {
		opts.Gov = gov.NewModule()
	}
	if opts.Broadcaster == nil {
		opts.Broadcaster = transport.NullBroadcaster{}
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}

	e := &Engine{
		log:     opts.Log,
		self:    crypto.PubkeyToAddress(opts.Key.PublicKey),
		key:     opts.Key,
		backend: opts.Backend,
		pool:    opts.Pool,
		gov:     opts.Gov,
		store:   opts.Store,
		bcast:   opts.Broadcaster,
		extra:   opts.Extra,
		st:      opts.State,
		chain:   opts.Chain,
		head: Head{
			Number: opts.Chain.LastBlock,
			Hash:   opts.Chain.LastBlockHash,
			Round:  opts.HeadRound,
		},
		round:   opts.HeadRound,
		seen:    make(map[hash.Hash]bool),
		inbound: make(chan *inter.Block, inboundBuffer),
	}
	e.pool.SetMinFee(opts.State.Rules.Economy.MinFee)
	e.rewireOracle()
	return e, nil
}

// rewireOracle rebuilds the oracle stack from the current rules. Called at
// construction and whenever a committed block changes the oracle rules.
// Loop goroutine only after Start.
func (e *Engine) rewireOracle() {
	e.oracle = zkvm.NewAsyncCaller(e.backend, e.st.Rules.Oracle)
	e.producer = NewProducer(e.oracle, e.key, e.extra)
	e.validator = NewValidator(e.oracle)
}

// Address returns the validator identity the engine signs with.
func (e *Engine) Address() common.Address {
	return e.self
}

// SetBroadcaster wires the network seam. Joining a hub needs the engine as
// the receiver, so the broadcaster usually exists only after construction.
// Call before Start.
func (e *Engine) SetBroadcaster(b transport.Broadcaster) {
	e.mu.Lock()
	e.bcast = b
	e.mu.Unlock()
}

// Start launches the round loop. Returns ErrAlreadyStarted on a running
// engine and the halt cause on a halted one.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return ErrAlreadyStarted
	}
	if e.halted != nil {
		return e.halted
	}
	e.running = true
	e.quit = make(chan struct{})
	e.wg.Add(1)
	go e.loop(ctx)
	return nil
}

// Stop terminates the round loop and waits for it to finish. Safe to call
// on a stopped engine.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.quit)
	e.mu.Unlock()
	e.wg.Wait()
}

func (e *Engine) loop(ctx context.Context) {
	defer e.wg.Done()
	timer := time.NewTimer(e.interval())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.quit:
			return
		case b := <-e.inbound:
			e.processInbound(ctx, b)
		case <-timer.C:
			e.tick(ctx)
			timer.Reset(e.interval())
		}
	}
}

// interval reads the round spacing from the current rules. Governance can
// change it between blocks, so it is re-read every lap.
func (e *Engine) interval() time.Duration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	d := time.Duration(e.st.Rules.Blocks.RoundInterval)
	if d < 10*time.Millisecond {
		d = 10 * time.Millisecond
	}
	return d
}

// tick advances the round and produces when the lottery names us.
func (e *Engine) tick(ctx context.Context) {
	e.mu.Lock()
	if e.halted != nil {
		e.mu.Unlock()
		return
	}
	e.round++
	round := e.round
	st := e.st
	head := e.head
	e.mu.Unlock()

	seed := valreg.SelectionSeed(head.Hash, round)
	selected, err := valreg.SelectProducer(seed, st.Validators, st.Rules)
	if err != nil {
		e.log.WithError(err).WithField("round", round).Warn("round has no eligible producer")
		return
	}
	if selected != e.self {
		e.setStep(StepValidating)
		e.log.WithFields(logrus.Fields{
			"round":    round,
			"producer": selected.String(),
		}).Debug("awaiting block from round producer")
		return
	}
	e.produceRound(ctx, st, head, round)
}

func (e *Engine) produceRound(ctx context.Context, st *ledgercore.WorldState, head Head, round uint32) {
	e.setStep(StepProducing)
	defer e.setStep(StepIdle)

	task := ProduceTask{
		Parent: head,
		Round:  round,
		Time:   inter.FromUnix(time.Now()),
	}
	if st.Rules.Upgrades.Gov {
		task.Votes, task.Proposals = e.pendingGov()
		task.Changes = e.gov.ExecutableChanges()
	}
	if st.Rules.Upgrades.Evidence {
		task.Evidence = e.pendingEvidenceCopy()
	}

	b, final, err := e.producer.produce(ctx, st, e.pool, task)
	if err != nil {
		switch {
		case errors.Is(err, ErrStateRootMismatch):
			e.halt(err)
		case transientOracle(err) || ctx.Err() != nil:
			e.log.WithError(err).WithField("round", round).Warn("proof not ready, slot missed")
		default:
			e.log.WithError(err).WithField("round", round).Error("block production failed")
		}
		return
	}

	e.setStep(StepCommitting)
	if err := e.commit(ctx, b, final, task.Changes); err != nil {
		e.log.WithError(err).Error("could not commit own block")
		return
	}
	e.bcast.BroadcastBlock(b)
}

// processInbound validates and commits delivered blocks. Co-arrived
// candidates are ordered by height then round before any of them is
// considered, so between two competitors for the same height the one from
// the earlier round wins regardless of delivery order.
func (e *Engine) processInbound(ctx context.Context, first *inter.Block) {
	for _, b := range e.drainInbound(first) {
		e.handleCandidate(ctx, b)
	}
}

func (e *Engine) drainInbound(first *inter.Block) []*inter.Block {
	batch := []*inter.Block{first}
	for {
		select {
		case b := <-e.inbound:
			batch = append(batch, b)
		default:
			sort.Slice(batch, func(i, j int) bool {
				hi, hj := &batch[i].Header, &batch[j].Header
				if hi.Number != hj.Number {
					return hi.Number < hj.Number
				}
				return hi.Round < hj.Round
			})
			return batch
		}
	}
}

func (e *Engine) handleCandidate(ctx context.Context, b *inter.Block) {
	e.mu.RLock()
	halted := e.halted != nil
	st := e.st
	head := e.head
	e.mu.RUnlock()
	if halted {
		return
	}
	if b.Header.Number <= head.Number {
		e.log.WithField("number", uint64(b.Header.Number)).Debug("stale block ignored")
		return
	}
	if b.Header.Number > head.Number+1 {
		e.log.WithFields(logrus.Fields{
			"number": uint64(b.Header.Number),
			"head":   uint64(head.Number),
		}).Warn("block ahead of head, dropping")
		return
	}

	e.setStep(StepValidating)
	defer e.setStep(StepIdle)
	changes := e.gov.ExecutableChanges()
	final, err := e.validator.validate(ctx, st, head, changes, b)
	if err != nil {
		if transientOracle(err) {
			e.log.WithError(err).WithField("number", uint64(b.Header.Number)).
				Warn("cannot check proof right now, block dropped without verdict")
		} else {
			e.log.WithError(err).WithFields(logrus.Fields{
				"number":   uint64(b.Header.Number),
				"producer": b.Header.Producer.String(),
			}).Info("block rejected")
		}
		return
	}

	e.setStep(StepCommitting)
	if err := e.commit(ctx, b, final, changes); err != nil {
		e.log.WithError(err).Error("could not commit validated block")
	}
}

// commit folds the block's proof into the chain and adopts its post-state.
// The block has already been produced or validated against the current
// head, so any contradiction here is between local components and halts
// the engine. Transient oracle errors drop the commit without a verdict.
func (e *Engine) commit(ctx context.Context, b *inter.Block, final *ledgercore.WorldState, executed []inter.ProtocolChange) error {
	e.mu.RLock()
	chain := e.chain
	oldOracle := e.st.Rules.Oracle
	oldMinFee := e.st.Rules.Economy.MinFee
	e.mu.RUnlock()

	next, err := proofchain.Fold(ctx, e.oracle, chain, &b.Header, b.Proof)
	if err != nil {
		if errors.Is(err, proofchain.ErrNonContiguousFold) || errors.Is(err, proofchain.ErrProofChainBroken) {
			e.halt(err)
			return e.Halted()
		}
		// The oracle could not re-check the proof; drop the commit and let
		// the block come around again.
		return err
	}

	e.mu.Lock()
	e.st = final
	e.chain = next
	e.head = HeadOf(&b.Header)
	if b.Header.Round > e.round {
		e.round = b.Header.Round
	}
	e.mu.Unlock()

	e.pool.Forget(b.Txs)
	e.pool.Prune(final)
	if final.Rules.Economy.MinFee != oldMinFee {
		e.pool.SetMinFee(final.Rules.Economy.MinFee)
	}
	e.mu.Lock()
	e.gov.OnBlockCommitted(final, &b.Header, b.Proposals, b.Votes, executed)
	e.mu.Unlock()
	e.clearIncluded(b)
	if final.Rules.Oracle != oldOracle {
		e.rewireOracle()
	}
	e.saveSnapshot(b.Header.Round)

	e.log.WithFields(logrus.Fields{
		"number": uint64(b.Header.Number),
		"round":  b.Header.Round,
		"txs":    len(b.Txs),
		"root":   fmt.Sprintf("%x", final.StateRoot.Bytes()[:8]),
	}).Info("block committed")
	return nil
}

func (e *Engine) saveSnapshot(round uint32) {
	if e.store == nil {
		return
	}
	e.mu.RLock()
	snap := &snapstore.Snapshot{
		State:     e.st,
		Chain:     e.chain,
		HeadRound: round,
		Proposals: e.gov.Proposals(),
	}
	e.mu.RUnlock()
	if err := e.store.SaveSnapshot(snap); err != nil {
		e.log.WithError(err).Error("snapshot save failed")
	}
}

// clearIncluded drops pending payloads the committed block carried, ours or
// a peer's.
func (e *Engine) clearIncluded(b *inter.Block) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(b.Proposals) > 0 {
		drop := make(map[hash.Hash]bool, len(b.Proposals))
		for i := range b.Proposals {
			h := b.Proposals[i].Hash()
			drop[h] = true
			delete(e.seen, h)
		}
		kept := e.pendingProposals[:0]
		for i := range e.pendingProposals {
			if !drop[e.pendingProposals[i].Hash()] {
				kept = append(kept, e.pendingProposals[i])
			}
		}
		e.pendingProposals = kept
	}
	if len(b.Votes) > 0 {
		drop := make(map[hash.Hash]bool, len(b.Votes))
		for i := range b.Votes {
			h := b.Votes[i].Hash()
			drop[h] = true
			delete(e.seen, h)
		}
		kept := e.pendingVotes[:0]
		for i := range e.pendingVotes {
			if !drop[e.pendingVotes[i].Hash()] {
				kept = append(kept, e.pendingVotes[i])
			}
		}
		e.pendingVotes = kept
	}
	if len(b.Evidence) > 0 {
		drop := make(map[hash.Hash]bool, len(b.Evidence))
		for i := range b.Evidence {
			h := b.Evidence[i].Hash()
			drop[h] = true
			delete(e.seen, h)
		}
		kept := e.pendingEvidence[:0]
		for i := range e.pendingEvidence {
			if !drop[e.pendingEvidence[i].Hash()] {
				kept = append(kept, e.pendingEvidence[i])
			}
		}
		e.pendingEvidence = kept
	}
}

func (e *Engine) pendingGov() ([]inter.SignedGovVote, []inter.GovernanceProposal) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var votes []inter.SignedGovVote
	var props []inter.GovernanceProposal
	votes = append(votes, e.pendingVotes...)
	props = append(props, e.pendingProposals...)
	return votes, props
}

func (e *Engine) pendingEvidenceCopy() []inter.Evidence {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]inter.Evidence(nil), e.pendingEvidence...)
}

func (e *Engine) setStep(s Step) {
	e.mu.Lock()
	e.step = s
	e.mu.Unlock()
}

// halt latches the first fatal error. A halted engine keeps answering
// reads but refuses to produce, validate or commit.
func (e *Engine) halt(cause error) {
	e.mu.Lock()
	if e.halted == nil {
		e.halted = fmt.Errorf("%w: %v", ErrEngineHalted, cause)
		e.log.WithError(cause).Error("engine halted, refusing further commits")
	}
	e.mu.Unlock()
}

// Halted returns the latched halt error, nil while healthy.
func (e *Engine) Halted() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.halted
}

// Status reports the head, round, step and pool depth.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Status{
		Head:    e.head,
		Round:   e.round,
		Step:    e.step,
		PoolLen: e.pool.Len(),
		Halted:  e.halted,
	}
}

// State returns the latest committed world state. Treat it as read-only;
// transitions always work on copies.
func (e *Engine) State() *ledgercore.WorldState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.st
}

// Chain returns the latest proof chain state.
func (e *Engine) Chain() *proofchain.ProofChainState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.chain
}

// SubmitTransaction admits a transaction into the local pool and gossips
// it. Pool admission errors pass through.
func (e *Engine) SubmitTransaction(tx *inter.Transaction) error {
	if err := e.pool.Add(tx); err != nil {
		return err
	}
	e.bcast.BroadcastTx(tx)
	return nil
}

// SubmitProposal admits a governance proposal for inclusion in a future
// block and gossips it.
func (e *Engine) SubmitProposal(p *inter.GovernanceProposal) error {
	if err := e.addProposal(p); err != nil {
		return err
	}
	e.bcast.BroadcastProposal(p)
	return nil
}

// SubmitVote admits a governance vote for inclusion in a future block and
// gossips it.
func (e *Engine) SubmitVote(v *inter.SignedGovVote) error {
	if err := e.addVote(v); err != nil {
		return err
	}
	e.bcast.BroadcastVote(v)
	return nil
}

// SubmitEvidence queues misbehaviour evidence for inclusion in a future
// block. Evidence travels inside blocks only, so there is nothing to
// gossip.
func (e *Engine) SubmitEvidence(ev *inter.Evidence) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.st.Rules.Upgrades.Evidence {
		return ErrEvidenceDisabled
	}
	if !adjudicateEvidence(e.st, ev) {
		return ErrBadEvidence
	}
	h := ev.Hash()
	if e.seen[h] {
		return ErrKnownPayload
	}
	if len(e.pendingEvidence) >= maxPendingEvidence {
		return ErrQueueFull
	}
	e.seen[h] = true
	e.pendingEvidence = append(e.pendingEvidence, *ev)
	return nil
}

func (e *Engine) addProposal(p *inter.GovernanceProposal) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.st
	if !st.Rules.Upgrades.Gov {
		return ErrGovDisabled
	}
	if !p.VerifySig() {
		return fmt.Errorf("%w: bad signature", ErrBadProposal)
	}
	if err := st.Rules.ValidateProposal(p); err != nil {
		return fmt.Errorf("%w: %v", ErrBadProposal, err)
	}
	val := st.ValidatorByAddress(p.Proposer)
	if val == nil || !val.Eligible(st.Rules.Validators.MinStake, st.Rules.Validators.MinScore) {
		return fmt.Errorf("%w: proposer is not an eligible validator", ErrBadProposal)
	}
	if _, ok := e.gov.Proposal(p.ID); ok {
		return ErrKnownPayload
	}
	h := p.Hash()
	if e.seen[h] {
		return ErrKnownPayload
	}
	if len(e.pendingProposals) >= maxPendingProposals {
		return ErrQueueFull
	}
	e.seen[h] = true
	e.pendingProposals = append(e.pendingProposals, *p)
	return nil
}

// addVote checks only the signature. Whether the vote lands in an open
// window, and with what weight, is the governance module's call at commit
// time; votes may legitimately arrive before their proposal's block.
func (e *Engine) addVote(v *inter.SignedGovVote) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.st.Rules.Upgrades.Gov {
		return ErrGovDisabled
	}
	if !v.VerifySig() {
		return fmt.Errorf("%w: bad signature", ErrBadVote)
	}
	h := v.Hash()
	if e.seen[h] {
		return ErrKnownPayload
	}
	if len(e.pendingVotes) >= maxPendingVotes {
		return ErrQueueFull
	}
	e.seen[h] = true
	e.pendingVotes = append(e.pendingVotes, *v)
	return nil
}

// OnBlockReceived implements transport.Receiver. Never blocks the network
// goroutine; overflow drops the block and relies on re-gossip.
func (e *Engine) OnBlockReceived(b *inter.Block) {
	select {
	case e.inbound <- b:
	default:
		e.log.WithField("number", uint64(b.Header.Number)).Warn("inbound block queue full, dropping")
	}
}

// OnTxReceived implements transport.Receiver.
func (e *Engine) OnTxReceived(tx *inter.Transaction) {
	if err := e.pool.Add(tx); err != nil {
		e.log.WithError(err).Debug("gossiped tx rejected")
	}
}

// OnProposalReceived implements transport.Receiver.
func (e *Engine) OnProposalReceived(p *inter.GovernanceProposal) {
	if err := e.addProposal(p); err != nil {
		e.log.WithError(err).Debug("gossiped proposal rejected")
	}
}

// OnVoteReceived implements transport.Receiver.
func (e *Engine) OnVoteReceived(v *inter.SignedGovVote) {
	if err := e.addVote(v); err != nil {
		e.log.WithError(err).Debug("gossiped vote rejected")
	}
}
