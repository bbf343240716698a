package model

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"

	"github.com/dashbridge/creditbridge/chaincfg"
	"github.com/dashbridge/creditbridge/errors"
)

// pubKeyHashScriptLen is the exact length of a canonical P2PKH locking
// script: OP_DUP OP_HASH160 <20 bytes> OP_EQUALVERIFY OP_CHECKSIG.
const pubKeyHashScriptLen = 25

// PubKeyHashSize is the length of a HASH160 public key hash.
const PubKeyHashSize = 20

// NewPubKeyHashScript assembles the canonical P2PKH locking script for the
// given 20-byte public key hash.
func NewPubKeyHashScript(pubKeyHash []byte) ([]byte, error) {
	if len(pubKeyHash) != PubKeyHashSize {
		return nil, errors.NewInvalidArgumentError("public key hash must be %d bytes, got %d", PubKeyHashSize, len(pubKeyHash))
	}

	script, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_DUP).
		AddOp(txscript.OP_HASH160).
		AddData(pubKeyHash).
		AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_CHECKSIG).
		Script()
	if err != nil {
		return nil, errors.NewProcessingError("failed to build p2pkh script", err)
	}

	return script, nil
}

// IsPubKeyHashScript reports whether script is a canonical P2PKH locking
// script. Only the exact 25-byte shape is accepted; non-minimal pushes are
// not.
func IsPubKeyHashScript(script []byte) bool {
	return len(script) == pubKeyHashScriptLen &&
		script[0] == txscript.OP_DUP &&
		script[1] == txscript.OP_HASH160 &&
		script[2] == txscript.OP_DATA_20 &&
		script[23] == txscript.OP_EQUALVERIFY &&
		script[24] == txscript.OP_CHECKSIG
}

// ExtractPubKeyHash returns the 20-byte hash locked by a P2PKH script, or nil
// when the script has any other shape.
func ExtractPubKeyHash(script []byte) []byte {
	if !IsPubKeyHashScript(script) {
		return nil
	}

	return script[3:23]
}

// PubKeyHashFromAddress decodes a base58check address for the given network
// and returns its 20-byte public key hash. Script-hash and other address
// kinds are rejected, matching what the deposit scan can actually watch.
func PubKeyHashFromAddress(address string, params *chaincfg.Params) ([]byte, error) {
	addr, err := btcutil.DecodeAddress(address, params)
	if err != nil {
		return nil, errors.NewInvalidArgumentError("failed to decode address %s", address, err)
	}

	if !addr.IsForNet(params) {
		return nil, errors.NewInvalidArgumentError("address %s is not valid for network %s", address, params.Name)
	}

	pkh, ok := addr.(*btcutil.AddressPubKeyHash)
	if !ok {
		return nil, errors.NewInvalidArgumentError("address %s is not a pay-to-pubkey-hash address", address)
	}

	return pkh.ScriptAddress(), nil
}

// AddressFromPubKeyHash is the inverse of PubKeyHashFromAddress.
func AddressFromPubKeyHash(pubKeyHash []byte, params *chaincfg.Params) (string, error) {
	addr, err := btcutil.NewAddressPubKeyHash(pubKeyHash, params)
	if err != nil {
		return "", errors.NewInvalidArgumentError("failed to encode public key hash", err)
	}

	return addr.EncodeAddress(), nil
}

// PayToAddressScript decodes an address and assembles its locking script in
// one step. The CLI and the faucet flow use it when only the string form is
// at hand.
func PayToAddressScript(address string, params *chaincfg.Params) ([]byte, error) {
	addr, err := btcutil.DecodeAddress(address, params)
	if err != nil {
		return nil, errors.NewInvalidArgumentError("failed to decode address %s", address, err)
	}

	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, errors.NewProcessingError("failed to build locking script for %s", address, err)
	}

	return script, nil
}
