package model

import (
	"encoding/hex"
	"strconv"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	jsoniter "github.com/json-iterator/go"

	"github.com/dashbridge/creditbridge/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// UTXO describes a single spendable output discovered by the deposit scan.
// Values are immutable once produced. Confirmations is reported as seen at
// discovery time: outputs taken from a live stream carry 0, because stream
// finality rather than chain depth is what the bridge acts on.
type UTXO struct {
	TxID          chainhash.Hash
	Vout          uint32
	Satoshis      uint64
	Script        []byte
	Confirmations uint32
}

// Outpoint returns the outpoint string in the canonical "txid:vout" form used
// in logs and session payloads.
func (u *UTXO) Outpoint() string {
	return u.TxID.String() + ":" + strconv.FormatUint(uint64(u.Vout), 10)
}

type utxoJSON struct {
	TxID          string `json:"txid"`
	Vout          uint32 `json:"vout"`
	Satoshis      uint64 `json:"satoshis"`
	Script        string `json:"script"`
	Confirmations uint32 `json:"confirmations"`
}

// MarshalJSON renders the txid in display order and the script as hex, the
// same shapes the Dash RPC surface uses.
func (u *UTXO) MarshalJSON() ([]byte, error) {
	return json.Marshal(utxoJSON{
		TxID:          u.TxID.String(),
		Vout:          u.Vout,
		Satoshis:      u.Satoshis,
		Script:        hex.EncodeToString(u.Script),
		Confirmations: u.Confirmations,
	})
}

func (u *UTXO) UnmarshalJSON(data []byte) error {
	var aux utxoJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return errors.NewProcessingError("failed to unmarshal utxo", err)
	}

	txid, err := chainhash.NewHashFromStr(aux.TxID)
	if err != nil {
		return errors.NewProcessingError("invalid txid %q in utxo", aux.TxID, err)
	}

	script, err := hex.DecodeString(aux.Script)
	if err != nil {
		return errors.NewProcessingError("invalid script hex in utxo", err)
	}

	u.TxID = *txid
	u.Vout = aux.Vout
	u.Satoshis = aux.Satoshis
	u.Script = script
	u.Confirmations = aux.Confirmations

	return nil
}
