package transport

import (
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/nzengi/zk-sac-engine/inter"
)

// sink records deliveries. The gate, when set, blocks every block delivery
// until released, which lets tests fill a peer queue deterministically.
type sink struct {
	mu        sync.Mutex
	blocks    []*inter.Block
	txs       []*inter.Transaction
	proposals []*inter.GovernanceProposal
	votes     []*inter.SignedGovVote

	started chan struct{}
	gate    chan struct{}
}

func newSink() *sink {
	return &sink{}
}

func (s *sink) OnBlockReceived(b *inter.Block) {
	if s.started != nil {
		s.started <- struct{}{}
	}
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks = append(s.blocks, b)
}

func (s *sink) OnTxReceived(tx *inter.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs = append(s.txs, tx)
}

func (s *sink) OnProposalReceived(p *inter.GovernanceProposal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proposals = append(s.proposals, p)
}

func (s *sink) OnVoteReceived(v *inter.SignedGovVote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.votes = append(s.votes, v)
}

func (s *sink) counts() (int, int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blocks), len(s.proposals), len(s.votes)
}

func block(n byte) *inter.Block {
	return &inter.Block{Header: inter.BlockHeader{Number: 1, Extra: []byte{n}}}
}

func TestHubFanout(t *testing.T) {
	logger, _ := test.NewNullLogger()
	hub := NewHub(logger, 0)
	defer hub.Stop()

	a, b, c := newSink(), newSink(), newSink()
	ba := hub.Join("a", a)
	hub.Join("b", b)
	hub.Join("c", c)

	ba.BroadcastBlock(block(1))
	ba.BroadcastTx(&inter.Transaction{Nonce: 3})
	ba.BroadcastProposal(&inter.GovernanceProposal{ID: 9})
	ba.BroadcastVote(&inter.SignedGovVote{})

	hub.Stop()

	blocks, proposals, votes := a.counts()
	require.Zero(t, blocks, "sender must not hear its own broadcast")
	require.Zero(t, proposals)
	require.Zero(t, votes)

	for _, s := range []*sink{b, c} {
		blocks, proposals, votes := s.counts()
		require.Equal(t, 1, blocks)
		require.Equal(t, 1, proposals)
		require.Equal(t, 1, votes)
		s.mu.Lock()
		require.Len(t, s.txs, 1)
		s.mu.Unlock()
	}
}

func TestHubStopDrains(t *testing.T) {
	logger, _ := test.NewNullLogger()
	hub := NewHub(logger, 8)

	a, b := newSink(), newSink()
	ba := hub.Join("a", a)
	hub.Join("b", b)

	for i := byte(0); i < 5; i++ {
		ba.BroadcastBlock(block(i))
	}
	hub.Stop()

	blocks, _, _ := b.counts()
	require.Equal(t, 5, blocks)

	// After Stop, broadcasts are dropped, not delivered and not panicking.
	ba.BroadcastBlock(block(9))
	blocks, _, _ = b.counts()
	require.Equal(t, 5, blocks)
}

func TestHubDropsWhenQueueFull(t *testing.T) {
	logger, hook := test.NewNullLogger()
	hub := NewHub(logger, 2)

	a := newSink()
	b := newSink()
	b.started = make(chan struct{}, 1)
	b.gate = make(chan struct{})

	ba := hub.Join("a", a)
	hub.Join("b", b)

	// Occupy the delivery goroutine, then fill the queue and overflow it.
	ba.BroadcastBlock(block(0))
	select {
	case <-b.started:
	case <-time.After(time.Second):
		t.Fatal("delivery never started")
	}
	b.started = nil
	ba.BroadcastBlock(block(1))
	ba.BroadcastBlock(block(2))
	ba.BroadcastBlock(block(3)) // queue is full, dropped

	close(b.gate)
	hub.Stop()

	blocks, _, _ := b.counts()
	require.Equal(t, 3, blocks)

	dropped := 0
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			dropped++
		}
	}
	require.Equal(t, 1, dropped)
}

func TestHubJoinAfterStop(t *testing.T) {
	logger, _ := test.NewNullLogger()
	hub := NewHub(logger, 0)
	hub.Stop()

	s := newSink()
	bc := hub.Join("late", s)
	bc.BroadcastBlock(block(1))

	blocks, _, _ := s.counts()
	require.Zero(t, blocks)
}
