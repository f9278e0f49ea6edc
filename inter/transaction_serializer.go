package inter

import (
	"github.com/nzengi/zk-sac-engine/utils/cser"
)

// Transaction wire format. Transactions use the same canonical serialization
// as the rest of the consensus types so that hashes are deterministic across
// nodes. The unsigned layout (everything except the signature) doubles as
// the signing pre-image.
//
// Layout:
//  1. Nonce, Amount, Fee (compact uint64s)
//  2. From, To (fixed 20 bytes each)
//  3. Data (length-prefixed)
//  4. Sig (fixed 65 bytes, omitted from the signing pre-image)

// marshalUnsignedCSER writes every field except the signature.
func (tx *Transaction) marshalUnsignedCSER(w *cser.Writer) error {
	w.U64(tx.Nonce)
	w.U64(tx.Amount)
	w.U64(tx.Fee)
	w.FixedBytes(tx.From.Bytes())
	w.FixedBytes(tx.To.Bytes())
	w.SliceBytes(tx.Data)
	return nil
}

// MarshalCSER serializes the full signed transaction.
func (tx *Transaction) MarshalCSER(w *cser.Writer) error {
	if err := tx.marshalUnsignedCSER(w); err != nil {
		return err
	}
	w.FixedBytes(tx.Sig.Bytes())
	return nil
}

// UnmarshalCSER reads a full signed transaction.
func (tx *Transaction) UnmarshalCSER(r *cser.Reader) error {
	tx.Nonce = r.U64()
	tx.Amount = r.U64()
	tx.Fee = r.U64()
	r.FixedBytes(tx.From[:])
	r.FixedBytes(tx.To[:])
	tx.Data = r.SliceBytes(ProtocolMaxMsgSize)
	r.FixedBytes(tx.Sig[:])
	return nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (tx *Transaction) MarshalBinary() ([]byte, error) {
	return cser.MarshalBinaryAdapter(tx.MarshalCSER)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (tx *Transaction) UnmarshalBinary(raw []byte) error {
	return cser.UnmarshalBinaryAdapter(raw, tx.UnmarshalCSER)
}

// marshalBinaryUnsigned serializes the signing pre-image.
func (tx *Transaction) marshalBinaryUnsigned() ([]byte, error) {
	return cser.MarshalBinaryAdapter(tx.marshalUnsignedCSER)
}

// MarshalTxsCSER serializes a count-prefixed transaction list.
func MarshalTxsCSER(w *cser.Writer, txs Transactions) error {
	w.U56(uint64(txs.Len()))
	for _, tx := range txs {
		if err := tx.MarshalCSER(w); err != nil {
			return err
		}
	}
	return nil
}

// UnmarshalTxsCSER reads a count-prefixed transaction list.
func UnmarshalTxsCSER(r *cser.Reader) (Transactions, error) {
	num := r.U56()
	// each tx occupies at least its fixed fields
	if num > uint64(ProtocolMaxMsgSize)/(2*20+SigLength) {
		return nil, cser.ErrTooLargeAlloc
	}
	txs := make(Transactions, 0, num)
	for i := uint64(0); i < num; i++ {
		tx := &Transaction{}
		if err := tx.UnmarshalCSER(r); err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, nil
}
