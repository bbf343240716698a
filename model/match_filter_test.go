package model

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestPubKeyHash() []byte {
	pkh := make([]byte, PubKeyHashSize)
	for i := range pkh {
		pkh[i] = byte(i + 1)
	}

	return pkh
}

func TestMatchFilter_InsertedElementsAlwaysMatch(t *testing.T) {
	// Derive a spread of deterministic elements and require every single one
	// to match after insertion. False positives are allowed by the filter,
	// false negatives never.
	elements := make([][]byte, 64)
	for i := range elements {
		h := sha256.Sum256([]byte{byte(i)})
		elements[i] = h[:]
	}

	f := NewMatchFilter(elements, LooseFPRate, 0, wire.BloomUpdateAll)

	for i, element := range elements {
		assert.True(t, f.Matches(element), "element %d must match", i)
	}
}

func TestMatchFilter_ZeroHintSizesFromElements(t *testing.T) {
	elements := [][]byte{{0x01}, {0x02}, {0x03}}

	f := NewMatchFilter(elements, TightFPRate, 0, wire.BloomUpdateNone)

	for _, element := range elements {
		assert.True(t, f.Matches(element))
	}
}

func TestMatchFilter_TweakIsRandomPerInstance(t *testing.T) {
	tweaks := make(map[uint32]bool)
	for i := 0; i < 4; i++ {
		f := NewTxIDFilter(&chainhash.Hash{})
		tweaks[f.Tweak()] = true
	}

	// Four independent 32-bit draws all colliding would mean the seed is not
	// random at all.
	assert.Greater(t, len(tweaks), 1)
}

func TestNewTxIDFilter(t *testing.T) {
	txid, err := chainhash.NewHashFromStr("6fe28c0ab6f1b372c1a6a246ae63f74f931e8365e15a089c68d6190000000000")
	require.NoError(t, err)

	f := NewTxIDFilter(txid)

	assert.True(t, f.Matches(TxIDElement(txid)))
	assert.InDelta(t, TightFPRate, f.FPRate(), 0.0)

	other, err := chainhash.NewHashFromStr("000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f")
	require.NoError(t, err)
	assert.False(t, f.Matches(TxIDElement(other)))
}

func TestTxIDElement_IsWireOrder(t *testing.T) {
	txid, err := chainhash.NewHashFromStr("6fe28c0ab6f1b372c1a6a246ae63f74f931e8365e15a089c68d6190000000000")
	require.NoError(t, err)

	element := TxIDElement(txid)

	// Display hex is reversed relative to the wire bytes, so the last
	// display byte pair (00) is the first wire byte.
	require.Len(t, element, chainhash.HashSize)
	assert.Equal(t, byte(0x00), element[0])
	assert.Equal(t, byte(0x6f), element[chainhash.HashSize-1])
}

func TestNewDepositFilter(t *testing.T) {
	pkh := createTestPubKeyHash()

	f, err := NewDepositFilter(pkh, nil)
	require.NoError(t, err)

	script, err := NewPubKeyHashScript(pkh)
	require.NoError(t, err)

	// Both the raw hash and the assembled script forms must match.
	assert.True(t, f.Matches(pkh))
	assert.True(t, f.Matches(script))
	assert.InDelta(t, LooseFPRate, f.FPRate(), 0.0)
}

func TestNewDepositFilter_WithOutpoint(t *testing.T) {
	pkh := createTestPubKeyHash()

	txid, err := chainhash.NewHashFromStr("000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f")
	require.NoError(t, err)

	op := wire.NewOutPoint(txid, 7)

	f, err := NewDepositFilter(pkh, op)
	require.NoError(t, err)

	assert.True(t, f.MatchesOutPoint(op))
	assert.True(t, f.Matches(OutpointElement(op)))
}

func TestOutpointElement(t *testing.T) {
	txid, err := chainhash.NewHashFromStr("6fe28c0ab6f1b372c1a6a246ae63f74f931e8365e15a089c68d6190000000000")
	require.NoError(t, err)

	op := wire.NewOutPoint(txid, 0x0102)

	element := OutpointElement(op)

	require.Len(t, element, chainhash.HashSize+4)
	assert.Equal(t, txid.CloneBytes(), element[:chainhash.HashSize])
	assert.Equal(t, uint32(0x0102), binary.LittleEndian.Uint32(element[chainhash.HashSize:]))
}

func TestNewDepositFilter_BadHash(t *testing.T) {
	f, err := NewDepositFilter([]byte{0x01, 0x02}, nil)
	require.Error(t, err)
	assert.Nil(t, f)
}

func TestMatchFilter_LoadBytesRoundTrip(t *testing.T) {
	pkh := createTestPubKeyHash()

	f, err := NewDepositFilter(pkh, nil)
	require.NoError(t, err)

	b, err := f.LoadBytes()
	require.NoError(t, err)
	require.NotEmpty(t, b)

	var msg wire.MsgFilterLoad

	err = msg.BtcDecode(bytes.NewReader(b), wire.ProtocolVersion, wire.BaseEncoding)
	require.NoError(t, err)

	want := f.MsgFilterLoad()
	assert.Equal(t, want.Filter, msg.Filter)
	assert.Equal(t, want.HashFuncs, msg.HashFuncs)
	assert.Equal(t, f.Tweak(), msg.Tweak)
	assert.Equal(t, wire.BloomUpdateAll, msg.Flags)
}

func TestMatchFilter_LoadHex(t *testing.T) {
	f := NewTxIDFilter(&chainhash.Hash{})

	s, err := f.LoadHex()
	require.NoError(t, err)
	assert.NotEmpty(t, s)
	assert.Regexp(t, "^[0-9a-f]+$", s)
}

func BenchmarkMatchFilter_Matches(b *testing.B) {
	txid := &chainhash.Hash{}
	f := NewTxIDFilter(txid)
	element := TxIDElement(txid)

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = f.Matches(element)
	}
}
