// Package transport is the seam between consensus engines and the network.
//
// Key concepts:
//   - Broadcaster: The outbound half an engine publishes through
//   - Receiver: The inbound half an engine exposes to the network
//   - Hub: An in-process fan-out connecting engines for tests and fakenet
//
// Usage:
//
//	hub := transport.NewHub(logger, 0)
//	bcast := hub.Join("validator-1", engine)
//	bcast.BroadcastBlock(b)
//	hub.Stop()
//
// Real peer-to-peer networking plugs in behind the same two interfaces.
package transport

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/nzengi/zk-sac-engine/inter"
)

// DefaultBuffer is the per-peer queue depth used when NewHub gets no
// explicit one.
const DefaultBuffer = 64

// Broadcaster publishes consensus payloads to every other peer.
type Broadcaster interface {
	BroadcastBlock(*inter.Block)
	BroadcastTx(*inter.Transaction)
	BroadcastProposal(*inter.GovernanceProposal)
	BroadcastVote(*inter.SignedGovVote)
}

// Receiver consumes payloads delivered by the network. Implementations must
// not assume any ordering between payload kinds.
type Receiver interface {
	OnBlockReceived(*inter.Block)
	OnTxReceived(*inter.Transaction)
	OnProposalReceived(*inter.GovernanceProposal)
	OnVoteReceived(*inter.SignedGovVote)
}

// NullBroadcaster drops everything. Single-node setups use it.
type NullBroadcaster struct{}

func (NullBroadcaster) BroadcastBlock(*inter.Block)                 {}
func (NullBroadcaster) BroadcastTx(*inter.Transaction)              {}
func (NullBroadcaster) BroadcastProposal(*inter.GovernanceProposal) {}
func (NullBroadcaster) BroadcastVote(*inter.SignedGovVote)          {}

// message is one queued delivery. Exactly one field is set.
type message struct {
	block    *inter.Block
	tx       *inter.Transaction
	proposal *inter.GovernanceProposal
	vote     *inter.SignedGovVote
}

// Hub is an in-process fan-out connecting N engines. Each peer gets its own
// buffered queue and delivery goroutine, so one slow receiver never stalls
// the others; a full queue drops the message with a warning, the same
// stance a lossy network takes.
type Hub struct {
	mu     sync.Mutex
	log    *logrus.Logger
	buffer int
	peers  []*peer
	closed bool
	wg     sync.WaitGroup
}

// NewHub returns a hub delivering through per-peer queues of the given
// depth. A non-positive buffer selects DefaultBuffer; a nil logger selects
// the logrus standard logger.
func NewHub(log *logrus.Logger, buffer int) *Hub {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{log: log, buffer: buffer}
}

// Join registers a receiver and returns the broadcaster for that peer.
// Broadcasts fan out to every peer except the sender. Joining a stopped
// hub returns an inert broadcaster.
func (h *Hub) Join(name string, r Receiver) Broadcaster {
	h.mu.Lock()
	defer h.mu.Unlock()
	p := &peer{hub: h, name: name, r: r, ch: make(chan message, h.buffer)}
	if h.closed {
		h.log.WithField("peer", name).Warn("transport hub is stopped, peer joins inert")
		close(p.ch)
		return p
	}
	h.peers = append(h.peers, p)
	h.wg.Add(1)
	go p.deliver(&h.wg)
	return p
}

// Stop closes every peer queue and waits until the queued messages are
// delivered. Broadcasts after Stop are dropped.
func (h *Hub) Stop() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	for _, p := range h.peers {
		close(p.ch)
	}
	h.mu.Unlock()
	h.wg.Wait()
}

// fanout enqueues the message for every peer except the sender. Runs under
// the hub lock, so it can never race a Stop closing the queues.
func (h *Hub) fanout(from *peer, m message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for _, p := range h.peers {
		if p == from {
			continue
		}
		select {
		case p.ch <- m:
		default:
			h.log.WithFields(logrus.Fields{
				"peer":  p.name,
				"queue": h.buffer,
			}).Warn("transport queue full, dropping message")
		}
	}
}

// peer is one hub participant: a delivery queue plus the Broadcaster the
// engine publishes through.
type peer struct {
	hub  *Hub
	name string
	r    Receiver
	ch   chan message
}

func (p *peer) BroadcastBlock(b *inter.Block) {
	p.hub.fanout(p, message{block: b})
}

func (p *peer) BroadcastTx(tx *inter.Transaction) {
	p.hub.fanout(p, message{tx: tx})
}

func (p *peer) BroadcastProposal(gp *inter.GovernanceProposal) {
	p.hub.fanout(p, message{proposal: gp})
}

func (p *peer) BroadcastVote(v *inter.SignedGovVote) {
	p.hub.fanout(p, message{vote: v})
}

func (p *peer) deliver(wg *sync.WaitGroup) {
	defer wg.Done()
	for m := range p.ch {
		switch {
		case m.block != nil:
			p.r.OnBlockReceived(m.block)
		case m.tx != nil:
			p.r.OnTxReceived(m.tx)
		case m.proposal != nil:
			p.r.OnProposalReceived(m.proposal)
		case m.vote != nil:
			p.r.OnVoteReceived(m.vote)
		}
	}
}
