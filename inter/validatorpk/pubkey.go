// Package validatorpk wraps validator public keys in a scheme-tagged
// container. A PubKey couples the raw key bytes with a type byte so that the
// registry, the launcher and the wire format can carry keys without baking
// the curve choice into every call site. Only secp256k1 keys are defined
// today; the tag leaves room for other schemes.
package validatorpk

import (
	"crypto/ecdsa"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// FakePassword is the keystore password used for deterministic fakenet
	// validator keys, where key secrecy is not a concern.
	FakePassword = "fakepassword"
)

// PubKey represents a validator's public key together with its scheme tag.
type PubKey struct {
	// Type identifies the signature scheme of Raw.
	Type uint8
	// Raw contains the uncompressed public key bytes.
	Raw []byte
}

// Types enumerates the supported public key schemes.
var Types = struct {
	Secp256k1 uint8
}{
	Secp256k1: 0xc0,
}

// FromECDSA wraps an uncompressed secp256k1 public key.
func FromECDSA(key *ecdsa.PublicKey) PubKey {
	return PubKey{
		Type: Types.Secp256k1,
		Raw:  crypto.FromECDSAPub(key),
	}
}

// Empty reports whether the public key is uninitialized.
func (pk PubKey) Empty() bool {
	return len(pk.Raw) == 0 && pk.Type == 0
}

// Address derives the 20-byte address controlled by this key.
// Returns the zero address for malformed or non-secp256k1 keys.
func (pk PubKey) Address() common.Address {
	if pk.Type != Types.Secp256k1 {
		return common.Address{}
	}
	key, err := crypto.UnmarshalPubkey(pk.Raw)
	if err != nil {
		return common.Address{}
	}
	return crypto.PubkeyToAddress(*key)
}

// String returns the hexadecimal representation, prefixed with "0x".
// The type byte comes first, followed by the raw key bytes.
func (pk PubKey) String() string {
	return "0x" + common.Bytes2Hex(pk.Bytes())
}

// Bytes returns the flat encoding [Type byte] + [Raw bytes...].
func (pk PubKey) Bytes() []byte {
	return append([]byte{pk.Type}, pk.Raw...)
}

// Copy creates a deep copy. Raw is a slice, so a plain assignment would
// share the underlying memory.
func (pk PubKey) Copy() PubKey {
	return PubKey{
		Type: pk.Type,
		Raw:  common.CopyBytes(pk.Raw),
	}
}

// FromString parses a hex string (with or without "0x" prefix) into a PubKey.
func FromString(str string) (PubKey, error) {
	return FromBytes(common.FromHex(str))
}

// FromBytes reconstructs a PubKey from its flat encoding.
func FromBytes(b []byte) (PubKey, error) {
	if len(b) == 0 {
		return PubKey{}, errors.New("empty pubkey")
	}
	return PubKey{b[0], b[1:]}, nil
}

// MarshalText implements encoding.TextMarshaler, so keys embed into JSON
// configs as hex strings.
func (pk *PubKey) MarshalText() ([]byte, error) {
	return []byte(pk.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (pk *PubKey) UnmarshalText(input []byte) error {
	res, err := FromString(string(input))
	if err != nil {
		return err
	}
	*pk = res
	return nil
}
