package model

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/dashbridge/creditbridge/errors"
)

const (
	// outpointSize is the serialized size of a transaction input reference:
	// 32-byte txid plus a little-endian uint32 output index.
	outpointSize = chainhash.HashSize + 4

	// lockSignatureSize is the size of the aggregated BLS signature that
	// closes an InstantSend lock message.
	lockSignatureSize = 96

	// maxLockInputs bounds the declared input count before any allocation
	// happens. A lock over more inputs than this is malformed or hostile.
	maxLockInputs = 1024
)

// InstantLock is a parsed InstantSend lock message. The wire layout is a
// varint input count, that many 36-byte outpoints, the locked txid, the
// quorum cycle hash and a 96-byte BLS signature. The signature is carried
// but not verified here; quorum validation already happened upstream and the
// bridge only needs the txid to match a lock to its watched transaction.
type InstantLock struct {
	Inputs    []wire.OutPoint
	TxID      chainhash.Hash
	CycleHash chainhash.Hash
	Signature [lockSignatureSize]byte
	Raw       []byte
}

// ParseInstantLock decodes an InstantSend lock from its wire bytes. The full
// message must be consumed exactly; trailing bytes are an error so that a
// framing bug upstream surfaces here instead of silently matching a txid out
// of garbage.
func ParseInstantLock(raw []byte) (*InstantLock, error) {
	r := bytes.NewReader(raw)

	count, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, errors.NewLockDecodeError("failed to read instant lock input count", err)
	}

	if count > maxLockInputs {
		return nil, errors.NewLockDecodeError("instant lock declares %d inputs, limit is %d", count, maxLockInputs)
	}

	need := count*outpointSize + 2*chainhash.HashSize + lockSignatureSize
	if uint64(r.Len()) < need {
		return nil, errors.NewLockDecodeError("instant lock truncated: need %d more bytes, have %d", need, r.Len())
	}

	lock := &InstantLock{
		Inputs: make([]wire.OutPoint, count),
		Raw:    raw,
	}

	var opBuf [outpointSize]byte

	for i := uint64(0); i < count; i++ {
		if _, err = io.ReadFull(r, opBuf[:]); err != nil {
			return nil, errors.NewLockDecodeError("failed to read instant lock input %d", i, err)
		}

		copy(lock.Inputs[i].Hash[:], opBuf[:chainhash.HashSize])
		lock.Inputs[i].Index = binary.LittleEndian.Uint32(opBuf[chainhash.HashSize:])
	}

	if _, err = io.ReadFull(r, lock.TxID[:]); err != nil {
		return nil, errors.NewLockDecodeError("failed to read instant lock txid", err)
	}

	if _, err = io.ReadFull(r, lock.CycleHash[:]); err != nil {
		return nil, errors.NewLockDecodeError("failed to read instant lock cycle hash", err)
	}

	if _, err = io.ReadFull(r, lock.Signature[:]); err != nil {
		return nil, errors.NewLockDecodeError("failed to read instant lock signature", err)
	}

	if r.Len() != 0 {
		return nil, errors.NewLockDecodeError("instant lock has %d trailing bytes", r.Len())
	}

	return lock, nil
}

// Locks reports whether the lock covers the given transaction.
func (l *InstantLock) Locks(txid *chainhash.Hash) bool {
	return l.TxID.IsEqual(txid)
}
