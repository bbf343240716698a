package chain

import (
	"context"
	"encoding/hex"
	"net/http"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/ordishs/go-bitcoin"

	"github.com/dashbridge/creditbridge/errors"
	"github.com/dashbridge/creditbridge/settings"
	"github.com/dashbridge/creditbridge/ulogger"
)

// CoreRPCClient is a narrow JSON-RPC binding against a Dash Core node,
// covering the two calls the bridge needs outside the gateway: best height
// and raw transaction broadcast. Dash Core answers the same RPC dialect this
// client speaks, so no Dash-specific plumbing is required.
type CoreRPCClient struct {
	logger ulogger.Logger
	node   *bitcoin.Bitcoind
}

func NewCoreRPCClient(logger ulogger.Logger, tSettings *settings.Settings) (*CoreRPCClient, error) {
	rpcURL := tSettings.Chain.RPCURL
	if rpcURL == nil {
		return nil, errors.NewConfigurationError("no chain_rpcURL setting found")
	}

	node, err := bitcoin.NewFromURL(rpcURL, false)
	if err != nil {
		return nil, errors.NewConfigurationError("failed to create core rpc client for %s", rpcURL.Host, err)
	}

	return &CoreRPCClient{
		logger: logger,
		node:   node,
	}, nil
}

// Health reports reachability of the node. Liveness never touches the
// network.
func (c *CoreRPCClient) Health(ctx context.Context, checkLiveness bool) (int, string, error) {
	if checkLiveness {
		return http.StatusOK, "OK", nil
	}

	if _, err := c.GetBestHeight(ctx); err != nil {
		return http.StatusServiceUnavailable, "core rpc unreachable", err
	}

	return http.StatusOK, "OK", nil
}

// GetBestHeight returns the node's current block count.
func (c *CoreRPCClient) GetBestHeight(ctx context.Context) (uint32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	info, err := c.node.GetBlockchainInfo()
	if err != nil {
		return 0, errors.NewBlockHeightUnavailableError("failed to get blockchain info", err)
	}

	return uint32(info.Blocks), nil //nolint:gosec // chain height fits in 32 bits
}

// Broadcast submits a raw transaction directly to the node and returns the
// txid it accepted.
func (c *CoreRPCClient) Broadcast(ctx context.Context, rawTx []byte) (*chainhash.Hash, error) {
	if len(rawTx) == 0 {
		return nil, errors.NewInvalidArgumentError("broadcast requires a serialized transaction")
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	txidStr, err := c.node.SendRawTransaction(hex.EncodeToString(rawTx))
	if err != nil {
		return nil, errors.NewTxBroadcastError("node rejected raw transaction", err)
	}

	txid, err := chainhash.NewHashFromStr(txidStr)
	if err != nil {
		return nil, errors.NewNetworkInvalidResponseError("node returned unparseable txid %q", txidStr, err)
	}

	return txid, nil
}
