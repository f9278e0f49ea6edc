package ledgercore

import (
	"io"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
)

// EncodeRLP implements rlp.Encoder. The canonical view used for the state
// root doubles as the wire form, so an encoded state carries exactly what
// the root commits to. Upgrades are node configuration and are not part of
// either; restoring code overlays them from its own config.
func (ws *WorldState) EncodeRLP(w io.Writer) error {
	view := ws.view()
	return rlp.Encode(w, &view)
}

// DecodeRLP implements rlp.Decoder. The cached StateRoot is recomputed, so
// a decoded state always verifies against the root its encoding hashed to.
func (ws *WorldState) DecodeRLP(s *rlp.Stream) error {
	var view stateView
	if err := s.Decode(&view); err != nil {
		return err
	}

	ws.Accounts = make(map[common.Address]*Account, len(view.Accounts))
	for i := range view.Accounts {
		av := &view.Accounts[i]
		acc := &Account{
			Balance: av.Balance,
			Nonce:   av.Nonce,
			Code:    av.Code,
		}
		if len(av.Storage) > 0 {
			acc.Storage = make(map[hash.Hash]hash.Hash, len(av.Storage))
			for _, kv := range av.Storage {
				acc.Storage[kv.Key] = kv.Val
			}
		}
		ws.Accounts[av.Addr] = acc
	}
	ws.Validators = view.Validators
	ws.Rules = view.Rules
	ws.BlockNumber = view.BlockNumber
	ws.GlobalNonce = view.GlobalNonce
	ws.StateRoot = ws.Root()
	return nil
}
