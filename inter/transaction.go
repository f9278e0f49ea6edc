package inter

import (
	"crypto/ecdsa"
	"errors"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SigLength is the byte length of a recoverable secp256k1 signature:
// 32 bytes R, 32 bytes S and a 1-byte recovery id.
const SigLength = 65

// Signature is a recoverable secp256k1 signature over a 32-byte digest.
type Signature [SigLength]byte

// Bytes returns the signature as a byte slice.
func (s Signature) Bytes() []byte {
	return s[:]
}

// SigFromBytes copies a byte slice into a Signature.
// Returns an error when the length is wrong.
func SigFromBytes(b []byte) (Signature, error) {
	var s Signature
	if len(b) != SigLength {
		return s, errors.New("wrong signature length")
	}
	copy(s[:], b)
	return s, nil
}

// Transaction is a signed value transfer between two ledger accounts.
// The fee is flat and is burned from the sender and credited to the block
// producer on inclusion. Nonce must equal the sender's account nonce at
// application time, which makes every transaction spendable exactly once.
type Transaction struct {
	// From is the sender account. The signature must recover to this address.
	From common.Address
	// To is the recipient account, created on first credit if unknown.
	To common.Address
	// Amount is the value moved from From to To.
	Amount uint64
	// Fee is the flat inclusion fee paid to the producer on top of Amount.
	Fee uint64
	// Nonce is the sender's account nonce this transaction consumes.
	Nonce uint64
	// Data is an opaque payload carried with the transfer. It is hashed and
	// counted against the block size but not interpreted by the ledger.
	Data []byte
	// Sig is the sender's signature over SigningHash().
	Sig Signature
}

// Transactions is a list of transactions in block order.
type Transactions []*Transaction

// Len returns the number of transactions in the list.
func (txs Transactions) Len() int { return len(txs) }

// SigningHash returns the digest the sender signs: a Keccak256 hash of the
// canonical encoding without the signature field.
func (tx *Transaction) SigningHash() common.Hash {
	b, err := tx.marshalBinaryUnsigned()
	if err != nil {
		panic("can't hash: " + err.Error())
	}
	return crypto.Keccak256Hash(b)
}

// Hash returns the canonical transaction id: a hash of the full encoding,
// signature included. Used for ordering tie-breaks and duplicate detection.
func (tx *Transaction) Hash() hash.Hash {
	b, err := tx.MarshalBinary()
	if err != nil {
		panic("can't hash: " + err.Error())
	}
	return hash.Of(b)
}

// Sign signs the transaction with the given key and fills the Sig field.
// The key must control the From address, otherwise verification will fail.
func (tx *Transaction) Sign(key *ecdsa.PrivateKey) error {
	digest := tx.SigningHash()
	sig, err := crypto.Sign(digest.Bytes(), key)
	if err != nil {
		return err
	}
	tx.Sig, err = SigFromBytes(sig)
	return err
}

// Sender recovers the signer's address from the signature.
// A malformed signature yields an error, never a zero-address success.
func (tx *Transaction) Sender() (common.Address, error) {
	digest := tx.SigningHash()
	pub, err := crypto.SigToPub(digest.Bytes(), tx.Sig.Bytes())
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifySig reports whether the signature is valid and recovers to the
// declared From address.
func (tx *Transaction) VerifySig() bool {
	sender, err := tx.Sender()
	if err != nil {
		return false
	}
	return sender == tx.From
}

// Cost returns Amount+Fee and whether the sum overflowed.
func (tx *Transaction) Cost() (uint64, bool) {
	cost := tx.Amount + tx.Fee
	if cost < tx.Amount {
		return 0, true
	}
	return cost, false
}

// EstimateSize returns an approximate wire size of the transaction in bytes.
// Used for enforcing the block size cap without serializing twice.
func (tx *Transaction) EstimateSize() int {
	// 2 addresses + 3 uint64s + signature + payload
	return 2*common.AddressLength + 3*8 + SigLength + len(tx.Data)
}
