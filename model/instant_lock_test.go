package model

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestLockBytes builds a two-input lock message: varint input count,
// 36-byte outpoints, locked txid, cycle hash, BLS signature.
func createTestLockBytes() []byte {
	var buf bytes.Buffer

	buf.WriteByte(0x02)

	// input 0
	buf.Write(bytes.Repeat([]byte{0x11}, chainhash.HashSize))
	buf.Write([]byte{0x01, 0x00, 0x00, 0x00})

	// input 1
	buf.Write(bytes.Repeat([]byte{0x22}, chainhash.HashSize))
	buf.Write([]byte{0xff, 0xff, 0xff, 0xff})

	// locked txid
	buf.Write(bytes.Repeat([]byte{0x33}, chainhash.HashSize))

	// quorum cycle hash
	buf.Write(bytes.Repeat([]byte{0x44}, chainhash.HashSize))

	// BLS signature
	buf.Write(bytes.Repeat([]byte{0x55}, lockSignatureSize))

	return buf.Bytes()
}

func TestParseInstantLock(t *testing.T) {
	raw := createTestLockBytes()

	lock, err := ParseInstantLock(raw)
	require.NoError(t, err)
	require.NotNil(t, lock)

	require.Len(t, lock.Inputs, 2)
	assert.Equal(t, byte(0x11), lock.Inputs[0].Hash[0])
	assert.Equal(t, uint32(1), lock.Inputs[0].Index)
	assert.Equal(t, byte(0x22), lock.Inputs[1].Hash[0])
	assert.Equal(t, uint32(0xffffffff), lock.Inputs[1].Index)

	wantTxID, err := chainhash.NewHash(bytes.Repeat([]byte{0x33}, chainhash.HashSize))
	require.NoError(t, err)
	assert.True(t, lock.TxID.IsEqual(wantTxID))

	wantCycle, err := chainhash.NewHash(bytes.Repeat([]byte{0x44}, chainhash.HashSize))
	require.NoError(t, err)
	assert.True(t, lock.CycleHash.IsEqual(wantCycle))

	assert.Equal(t, byte(0x55), lock.Signature[0])
	assert.Equal(t, byte(0x55), lock.Signature[lockSignatureSize-1])

	assert.Equal(t, raw, lock.Raw)
}

func TestParseInstantLock_Locks(t *testing.T) {
	lock, err := ParseInstantLock(createTestLockBytes())
	require.NoError(t, err)

	locked, err := chainhash.NewHash(bytes.Repeat([]byte{0x33}, chainhash.HashSize))
	require.NoError(t, err)

	other, err := chainhash.NewHash(bytes.Repeat([]byte{0x34}, chainhash.HashSize))
	require.NoError(t, err)

	assert.True(t, lock.Locks(locked))
	assert.False(t, lock.Locks(other))
}

func TestParseInstantLock_NoInputs(t *testing.T) {
	var buf bytes.Buffer

	buf.WriteByte(0x00)
	buf.Write(bytes.Repeat([]byte{0x33}, chainhash.HashSize))
	buf.Write(bytes.Repeat([]byte{0x44}, chainhash.HashSize))
	buf.Write(bytes.Repeat([]byte{0x55}, lockSignatureSize))

	lock, err := ParseInstantLock(buf.Bytes())
	require.NoError(t, err)
	assert.Empty(t, lock.Inputs)
}

func TestParseInstantLock_Truncated(t *testing.T) {
	raw := createTestLockBytes()

	lock, err := ParseInstantLock(raw[:len(raw)-10])
	require.Error(t, err)
	assert.Nil(t, lock)
	assert.Contains(t, err.Error(), "truncated")
}

func TestParseInstantLock_TrailingBytes(t *testing.T) {
	raw := append(createTestLockBytes(), 0xde, 0xad, 0xbe)

	lock, err := ParseInstantLock(raw)
	require.Error(t, err)
	assert.Nil(t, lock)
	assert.Contains(t, err.Error(), "trailing")
}

func TestParseInstantLock_InputCountTooLarge(t *testing.T) {
	// varint 0xfd 0x01 0x05 declares 1281 inputs
	raw := []byte{0xfd, 0x01, 0x05}

	lock, err := ParseInstantLock(raw)
	require.Error(t, err)
	assert.Nil(t, lock)
	assert.Contains(t, err.Error(), "limit")
}

func TestParseInstantLock_Empty(t *testing.T) {
	lock, err := ParseInstantLock(nil)
	require.Error(t, err)
	assert.Nil(t, lock)
}

func TestParseInstantLock_CountBeyondPayload(t *testing.T) {
	raw := createTestLockBytes()
	// Declare three inputs but carry only two.
	raw[0] = 0x03

	lock, err := ParseInstantLock(raw)
	require.Error(t, err)
	assert.Nil(t, lock)
	assert.Contains(t, err.Error(), "truncated")
}

func BenchmarkParseInstantLock(b *testing.B) {
	raw := createTestLockBytes()

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_, _ = ParseInstantLock(raw)
	}
}
