package model

import (
	"bytes"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/dashbridge/creditbridge/errors"
)

// Transaction is a raw transaction from the stream together with its decoded
// form. The txid is always computed over the full raw serialization, so Dash
// special transactions (which carry an extra payload after the locktime that
// the base decoder does not consume) still hash correctly.
type Transaction struct {
	TxID chainhash.Hash
	Msg  *wire.MsgTx
	Raw  []byte
}

// ParseTransaction decodes a raw transaction. Trailing bytes after the base
// serialization are tolerated: Dash special transactions append a payload
// there and the deposit scan only cares about the outputs.
func ParseTransaction(raw []byte) (*Transaction, error) {
	if len(raw) == 0 {
		return nil, errors.NewTxDecodeError("empty transaction payload")
	}

	msg := &wire.MsgTx{}
	if err := msg.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, errors.NewTxDecodeError("failed to deserialize transaction", err)
	}

	return &Transaction{
		TxID: chainhash.DoubleHashH(raw),
		Msg:  msg,
		Raw:  raw,
	}, nil
}

// FindPubKeyHashPayment scans the outputs for P2PKH payments to pubKeyHash.
// It returns the first output whose value meets minAmount, plus the total
// paid to the hash across all outputs. The UTXO is nil when no single output
// reaches the minimum, even if the total does; partial deposits are reported
// through the total alone.
func (t *Transaction) FindPubKeyHashPayment(pubKeyHash []byte, minAmount uint64) (*UTXO, uint64) {
	var (
		found *UTXO
		total uint64
	)

	for vout, out := range t.Msg.TxOut {
		if out.Value < 0 {
			continue
		}

		hash := ExtractPubKeyHash(out.PkScript)
		if hash == nil || !bytes.Equal(hash, pubKeyHash) {
			continue
		}

		value := uint64(out.Value)
		total += value

		if found == nil && value >= minAmount {
			found = &UTXO{
				TxID:          t.TxID,
				Vout:          uint32(vout), //nolint:gosec // output index is bounded by consensus rules
				Satoshis:      value,
				Script:        out.PkScript,
				Confirmations: 0,
			}
		}
	}

	return found, total
}
