package model

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"math/rand/v2"

	"github.com/btcsuite/btcd/btcutil/bloom"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/dashbridge/creditbridge/errors"
)

// False-positive rates used when building filters. A single known txid gets
// the tight rate; a reusable address pattern gets the loose one, trading
// bandwidth for less correlation of the watched address across sessions.
const (
	TightFPRate = 0.0001
	LooseFPRate = 0.01
)

// MatchFilter wraps a BIP37 bloom filter scoping a gateway subscription. A
// fresh random tweak is drawn per instance so two subscriptions for the same
// elements never produce correlatable filter bytes. Inserted elements always
// match; the false-positive rate is only an upper bound on extra traffic.
type MatchFilter struct {
	filter *bloom.Filter
	tweak  uint32
	fpRate float64
}

// NewMatchFilter builds a filter sized for hint elements at the given
// false-positive rate and inserts every element. A zero hint sizes from the
// element slice itself.
func NewMatchFilter(elements [][]byte, fpRate float64, hint uint32, flags wire.BloomUpdateType) *MatchFilter {
	if hint == 0 {
		hint = uint32(len(elements)) //nolint:gosec // element counts are small
		if hint == 0 {
			hint = 1
		}
	}

	tweak := rand.Uint32()

	f := &MatchFilter{
		filter: bloom.NewFilter(hint, tweak, fpRate, flags),
		tweak:  tweak,
		fpRate: fpRate,
	}

	for _, element := range elements {
		f.filter.Add(element)
	}

	return f
}

// NewTxIDFilter builds the tight single-element filter used when waiting for
// an InstantSend lock on one known transaction.
func NewTxIDFilter(txid *chainhash.Hash) *MatchFilter {
	return NewMatchFilter([][]byte{TxIDElement(txid)}, TightFPRate, 1, wire.BloomUpdateNone)
}

// NewDepositFilter builds the looser filter used when watching an address
// for incoming deposits. Both the raw hash and the assembled P2PKH script are
// inserted, since gateways differ in which form they test outputs against.
// An optional outpoint is added when a specific funding output is known.
func NewDepositFilter(pubKeyHash []byte, watch *wire.OutPoint) (*MatchFilter, error) {
	elements, err := AddressElements(pubKeyHash)
	if err != nil {
		return nil, err
	}

	hint := uint32(len(elements))
	if watch != nil {
		hint++
	}

	f := NewMatchFilter(elements, LooseFPRate, hint, wire.BloomUpdateAll)
	if watch != nil {
		f.AddOutPoint(watch)
	}

	return f, nil
}

// TxIDElement returns the txid in internal byte order, the reversed form of
// the display hex. Nodes test filter membership against these wire bytes,
// not the human-readable string.
func TxIDElement(txid *chainhash.Hash) []byte {
	return txid.CloneBytes()
}

// AddressElements returns the two element forms a P2PKH watch needs: the raw
// 20-byte hash and the full locking script.
func AddressElements(pubKeyHash []byte) ([][]byte, error) {
	script, err := NewPubKeyHashScript(pubKeyHash)
	if err != nil {
		return nil, err
	}

	hash := make([]byte, len(pubKeyHash))
	copy(hash, pubKeyHash)

	return [][]byte{hash, script}, nil
}

// OutpointElement returns the element form of an outpoint, txid wire bytes
// followed by the little-endian index. This is the byte sequence nodes test
// when matching spends against a filter.
func OutpointElement(op *wire.OutPoint) []byte {
	element := make([]byte, chainhash.HashSize+4)
	copy(element, op.Hash.CloneBytes())
	binary.LittleEndian.PutUint32(element[chainhash.HashSize:], op.Index)

	return element
}

// Add inserts an arbitrary element.
func (f *MatchFilter) Add(element []byte) {
	f.filter.Add(element)
}

// AddOutPoint inserts a serialized outpoint (txid bytes then little-endian
// index).
func (f *MatchFilter) AddOutPoint(op *wire.OutPoint) {
	f.filter.AddOutPoint(op)
}

// Matches reports whether the element is possibly in the filter. False
// positives happen at roughly the configured rate; false negatives never.
func (f *MatchFilter) Matches(element []byte) bool {
	return f.filter.Matches(element)
}

// MatchesOutPoint reports whether the outpoint is possibly in the filter.
func (f *MatchFilter) MatchesOutPoint(op *wire.OutPoint) bool {
	return f.filter.MatchesOutPoint(op)
}

// Tweak returns the instance's random seed.
func (f *MatchFilter) Tweak() uint32 {
	return f.tweak
}

// FPRate returns the configured false-positive rate.
func (f *MatchFilter) FPRate() float64 {
	return f.fpRate
}

// MsgFilterLoad returns the filterload message form: data, hash function
// count, tweak and update flags.
func (f *MatchFilter) MsgFilterLoad() *wire.MsgFilterLoad {
	return f.filter.MsgFilterLoad()
}

// LoadBytes serializes the filterload message as it would travel on the
// wire.
func (f *MatchFilter) LoadBytes() ([]byte, error) {
	msg := f.filter.MsgFilterLoad()

	var buf bytes.Buffer
	if err := msg.BtcEncode(&buf, wire.ProtocolVersion, wire.BaseEncoding); err != nil {
		return nil, errors.NewProcessingError("failed to serialize filter load", err)
	}

	return buf.Bytes(), nil
}

// LoadHex returns the hex form of LoadBytes, the representation the gateway
// subscribe frame carries.
func (f *MatchFilter) LoadHex() (string, error) {
	b, err := f.LoadBytes()
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}
