package inter

import (
	"math/rand"
	"testing"
	"time"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalcTxRoot(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	txs := Transactions{fakeTx(r), fakeTx(r), fakeTx(r)}

	// Deterministic.
	assert.Equal(t, CalcTxRoot(txs), CalcTxRoot(txs))

	// Order-sensitive.
	swapped := Transactions{txs[1], txs[0], txs[2]}
	assert.NotEqual(t, CalcTxRoot(txs), CalcTxRoot(swapped))

	// A prefix has a different digest than the full list.
	assert.NotEqual(t, CalcTxRoot(txs), CalcTxRoot(txs[:2]))

	// Empty list has a well-defined non-zero digest.
	assert.NotEqual(t, hash.Hash{}, CalcTxRoot(nil))
	assert.Equal(t, CalcTxRoot(nil), CalcTxRoot(Transactions{}))
}

func TestCalcGovRoot(t *testing.T) {
	r := rand.New(rand.NewSource(2))

	// No payloads means the zero root, by convention.
	assert.Equal(t, hash.Hash{}, CalcGovRoot(nil, nil, nil))

	votes := []SignedGovVote{{Vote: GovVote{ProposalID: 1, Approve: true}, Voter: randAddr(r), Sig: randSig(r)}}
	proposals := []GovernanceProposal{fakeProposal(r)}

	root := CalcGovRoot(votes, proposals, nil)
	assert.NotEqual(t, hash.Hash{}, root)
	assert.Equal(t, root, CalcGovRoot(votes, proposals, nil))

	// Moving content between sections changes the digest.
	assert.NotEqual(t, CalcGovRoot(votes, nil, nil), CalcGovRoot(nil, proposals, nil))
}

func TestSignHeader_Recover(t *testing.T) {
	require := require.New(t)

	key, err := crypto.GenerateKey()
	require.NoError(err)

	h := BlockHeader{
		Number:    1,
		Round:     1,
		TxRoot:    CalcTxRoot(nil),
		Time:      FromUnix(time.Unix(1700000000, 0)),
		Producer:  crypto.PubkeyToAddress(key.PublicKey),
		StateRoot: CalcTxRoot(nil),
	}
	sig, err := SignHeader(&h, key)
	require.NoError(err)

	got, err := RecoverProducer(&h, sig)
	require.NoError(err)
	require.Equal(h.Producer, got)

	sh := &SignedHeader{Header: h, Sig: sig}
	require.True(sh.Verify())

	// Any header mutation invalidates the signature.
	sh.Header.Number++
	require.False(sh.Verify())

	// The round is part of the signed pre-image too.
	sh.Header.Number--
	sh.Header.Round++
	require.False(sh.Verify())
}

func TestBlockEstimateSize(t *testing.T) {
	small := FakeBlock(0, 0, 0, 0)
	big := FakeBlock(100, 0, 0, 0)
	assert.Greater(t, big.EstimateSize(), small.EstimateSize())

	// The estimate tracks the canonical encoding within a loose factor.
	buf, err := big.MarshalBinary()
	require.NoError(t, err)
	assert.Greater(t, big.EstimateSize()*2, len(buf))
}

func TestTimestamp(t *testing.T) {
	now := time.Unix(1700000000, 123456789)
	ts := FromUnix(now)
	assert.Equal(t, now.UnixNano(), ts.Time().UnixNano())
	assert.Equal(t, uint64(1700000000), ts.Unix())
	assert.Equal(t, Timestamp(10), MaxTimestamp(Timestamp(3), Timestamp(10)))
	assert.Equal(t, Timestamp(10), MaxTimestamp(Timestamp(10), Timestamp(3)))
}
