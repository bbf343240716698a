// Package chaincfg defines the Dash network parameters used across the
// bridge. The values mirror Dash Core's chainparams so that address
// decoding, script building, and peer magic all agree with the network the
// gateway connects to. Params is the btcd type, which keeps btcutil address
// handling working against these networks once they are registered.
package chaincfg

import (
	"math/big"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/dashbridge/creditbridge/errors"
)

// Params aliases the btcd parameter type so callers can pass our networks
// straight into btcutil.
type Params = chaincfg.Params

var (
	bigOne = big.NewInt(1)

	// mainPowLimit is the highest proof of work value a Dash block can have
	// for the main and test networks. It is the value 2^236 - 1.
	mainPowLimit = new(big.Int).Sub(new(big.Int).Lsh(bigOne, 236), bigOne)

	// regressionPowLimit is the highest proof of work value a Dash block
	// can have for the regression test network. It is the value 2^255 - 1.
	regressionPowLimit = new(big.Int).Sub(new(big.Int).Lsh(bigOne, 255), bigOne)
)

// genesisMerkleRoot is shared by all three Dash networks; only the header
// nonce and timestamp differ.
var genesisMerkleRoot = newHashFromStr("e0028eb9648db56b1ac77cf090b99048a8007e2bb64b68f092c03c7f56a662c7")

var (
	mainNetGenesisHash = newHashFromStr("00000ffd590b1485b3caadc19b22e6379c733355108f107a430458cdf3407ab6")
	testNetGenesisHash = newHashFromStr("00000bafbc94add76cb75e2ec92894837288a481e5c005f6563d91623bf8bc2c")
	regTestGenesisHash = newHashFromStr("000008ca1832a4baf228eb1553c03d3a2c8e02399550dd6ea8d65cec3ef23d2e")
)

// MainNetParams defines the network parameters for the main Dash network.
var MainNetParams = Params{
	Name:        "mainnet",
	Net:         wire.BitcoinNet(0xbd6b0cbf),
	DefaultPort: "9999",
	DNSSeeds: []chaincfg.DNSSeed{
		{Host: "dnsseed.dash.org", HasFiltering: true},
		{Host: "dnsseed.dashdot.io", HasFiltering: false},
	},

	GenesisBlock: &wire.MsgBlock{
		Header: wire.BlockHeader{
			Version:    1,
			MerkleRoot: *genesisMerkleRoot,
			Timestamp:  time.Unix(1390095618, 0),
			Bits:       0x1e0ffff0,
			Nonce:      28917698,
		},
	},
	GenesisHash:  mainNetGenesisHash,
	PowLimit:     mainPowLimit,
	PowLimitBits: 0x1e0ffff0,

	CoinbaseMaturity:         100,
	SubsidyReductionInterval: 210240,
	TargetTimespan:           time.Hour,
	TargetTimePerBlock:       150 * time.Second,
	RetargetAdjustmentFactor: 4,
	ReduceMinDifficulty:      false,
	GenerateSupported:        false,

	RelayNonStdTxs: false,

	// Address encoding magics
	PubKeyHashAddrID: 0x4c, // starts with X
	ScriptHashAddrID: 0x10, // starts with 7
	PrivateKeyID:     0xcc, // starts with 7 (uncompressed) or X (compressed)

	// BIP32 hierarchical deterministic extended key magics
	HDPrivateKeyID: [4]byte{0x04, 0x88, 0xad, 0xe4}, // starts with xprv
	HDPublicKeyID:  [4]byte{0x04, 0x88, 0xb2, 0x1e}, // starts with xpub

	// BIP44 coin type used in the hierarchical deterministic path for
	// address generation.
	HDCoinType: 5,
}

// TestNetParams defines the network parameters for the Dash test network.
var TestNetParams = Params{
	Name:        "testnet",
	Net:         wire.BitcoinNet(0xffcae2ce),
	DefaultPort: "19999",
	DNSSeeds: []chaincfg.DNSSeed{
		{Host: "testnet-seed.dashdot.io", HasFiltering: false},
	},

	GenesisBlock: &wire.MsgBlock{
		Header: wire.BlockHeader{
			Version:    1,
			MerkleRoot: *genesisMerkleRoot,
			Timestamp:  time.Unix(1390666206, 0),
			Bits:       0x1e0ffff0,
			Nonce:      3861367235,
		},
	},
	GenesisHash:  testNetGenesisHash,
	PowLimit:     mainPowLimit,
	PowLimitBits: 0x1e0ffff0,

	CoinbaseMaturity:         100,
	SubsidyReductionInterval: 210240,
	TargetTimespan:           time.Hour,
	TargetTimePerBlock:       150 * time.Second,
	RetargetAdjustmentFactor: 4,
	ReduceMinDifficulty:      true,
	GenerateSupported:        false,

	RelayNonStdTxs: true,

	// Address encoding magics
	PubKeyHashAddrID: 0x8c, // starts with y
	ScriptHashAddrID: 0x13, // starts with 8 or 9
	PrivateKeyID:     0xef, // starts with 9 (uncompressed) or c (compressed)

	// BIP32 hierarchical deterministic extended key magics
	HDPrivateKeyID: [4]byte{0x04, 0x35, 0x83, 0x94}, // starts with tprv
	HDPublicKeyID:  [4]byte{0x04, 0x35, 0x87, 0xcf}, // starts with tpub

	HDCoinType: 1,
}

// RegressionNetParams defines the network parameters for the regression test
// Dash network. Not to be confused with the test network, this network is
// sometimes simply called "regtest".
var RegressionNetParams = Params{
	Name:        "regtest",
	Net:         wire.BitcoinNet(0xdcb7c1fc),
	DefaultPort: "19899",
	DNSSeeds:    []chaincfg.DNSSeed{},

	GenesisBlock: &wire.MsgBlock{
		Header: wire.BlockHeader{
			Version:    1,
			MerkleRoot: *genesisMerkleRoot,
			Timestamp:  time.Unix(1417713337, 0),
			Bits:       0x207fffff,
			Nonce:      1096447,
		},
	},
	GenesisHash:  regTestGenesisHash,
	PowLimit:     regressionPowLimit,
	PowLimitBits: 0x207fffff,

	CoinbaseMaturity:         100,
	SubsidyReductionInterval: 150,
	TargetTimespan:           time.Hour,
	TargetTimePerBlock:       150 * time.Second,
	RetargetAdjustmentFactor: 4,
	ReduceMinDifficulty:      true,
	GenerateSupported:        true,

	RelayNonStdTxs: true,

	// Address encoding magics, shared with testnet
	PubKeyHashAddrID: 0x8c,
	ScriptHashAddrID: 0x13,
	PrivateKeyID:     0xef,

	HDPrivateKeyID: [4]byte{0x04, 0x35, 0x83, 0x94},
	HDPublicKeyID:  [4]byte{0x04, 0x35, 0x87, 0xcf},

	HDCoinType: 1,
}

// GetChainParams resolves a network name from the settings into its
// parameters.
func GetChainParams(network string) (*Params, error) {
	switch network {
	case "mainnet":
		return &MainNetParams, nil
	case "testnet":
		return &TestNetParams, nil
	case "regtest":
		return &RegressionNetParams, nil
	default:
		return nil, errors.NewConfigurationError("unknown network %s", network)
	}
}

// newHashFromStr converts the passed big-endian hex string into a
// chainhash.Hash. It panics on error since it is only called with the
// hard-coded genesis hashes above.
func newHashFromStr(hexStr string) *chainhash.Hash {
	hash, err := chainhash.NewHashFromStr(hexStr)
	if err != nil {
		panic(err)
	}

	return hash
}

func init() {
	// Register the Dash networks so btcutil address decoding recognises
	// their version bytes alongside the btcd defaults.
	for _, params := range []*Params{&MainNetParams, &TestNetParams, &RegressionNetParams} {
		if err := chaincfg.Register(params); err != nil {
			panic("failed to register network: " + err.Error())
		}
	}
}
