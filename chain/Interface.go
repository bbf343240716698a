// Package chain provides the bridge's view of the Dash network.
//
// The chain package is responsible for streaming filter-matched transactions
// and InstantSend locks from a transaction gateway, broadcasting raw
// transactions, and reporting the best known chain height. This file defines
// the client interfaces that let the watcher and service layers consume chain
// data without coupling to the underlying transport.
package chain

import (
	"context"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/dashbridge/creditbridge/model"
)

// StreamEventType identifies the payload carried by a StreamEvent.
type StreamEventType int

const (
	// StreamEventTx carries one or more raw transactions that matched the
	// subscription filter.
	StreamEventTx StreamEventType = iota

	// StreamEventLock carries one or more raw InstantSend lock payloads.
	StreamEventLock

	// StreamEventHeight carries a chain height notice.
	StreamEventHeight
)

func (t StreamEventType) String() string {
	switch t {
	case StreamEventTx:
		return "tx"
	case StreamEventLock:
		return "lock"
	case StreamEventHeight:
		return "height"
	default:
		return "unknown"
	}
}

// StreamEvent is a single delivery from an active subscription. Exactly one
// payload group is populated, selected by Type. ReceivedAt is stamped when the
// frame is read off the wire, before any decoding by the consumer.
type StreamEvent struct {
	Type       StreamEventType
	RawTxs     [][]byte
	RawLocks   [][]byte
	Height     uint32
	ReceivedAt time.Time
}

// TxStream is a live subscription handle.
//
// The stream delivers events in arrival order through a buffered channel. The
// Events channel is closed exactly once, when the subscription ends for any
// reason: the gateway signalled end-of-stream, the connection dropped, or the
// owning client disconnected. Transient per-message failures are reported on
// Errs without ending the stream.
type TxStream interface {
	// Events returns the delivery channel. A closed channel means the
	// subscription is over and no further events will arrive.
	Events() <-chan *StreamEvent

	// Errs returns the transient error channel. Receiving here is optional;
	// sends never block and are dropped when nobody is listening.
	Errs() <-chan error

	// Cancel releases the subscription. It is idempotent and safe to call
	// from any goroutine, including concurrently with event delivery.
	Cancel()
}

// ClientI defines the interface for chain client operations.
//
// This interface abstracts the communication with the transaction gateway and
// the Dash Core node, allowing the watcher and service layers to subscribe to
// filtered transaction data, broadcast transactions, and query chain state
// without directly coupling to the transport.
//
// Implementations handle the communication details (websocket gateway, Core
// JSON-RPC) while presenting a consistent API to callers.
type ClientI interface {
	// Health checks the health status of the chain client.
	//
	// Parameters:
	// - ctx: Context for the operation with timeout and cancellation support
	// - checkLiveness: If true, checks only internal client state; if false,
	//   checks connectivity to the gateway and node too
	//
	// Returns:
	// - HTTP status code (200 for healthy, 503 for unhealthy)
	// - Human-readable status message with health details
	// - Error if the health check encounters an unexpected failure
	Health(ctx context.Context, checkLiveness bool) (int, string, error)

	// GetBestHeight returns the best known chain height.
	//
	// Parameters:
	// - ctx: Context for the operation with timeout and cancellation support
	//
	// Returns:
	// - The height of the best chain tip
	// - Error if the height cannot be determined
	GetBestHeight(ctx context.Context) (uint32, error)

	// Subscribe opens a filtered transaction stream.
	//
	// The subscription is provably active when Subscribe returns: the gateway
	// has acknowledged the filter and any transaction relayed after that point
	// is delivered on the stream. Callers that broadcast a transaction and
	// then wait for it must therefore Subscribe first and broadcast after.
	//
	// Parameters:
	// - ctx: Context for the operation with timeout and cancellation support
	// - filter: Bloom filter scoping which transactions the gateway relays
	// - fromHeight: First block height to replay matched history from;
	//   0 requests live data only
	// - liveMode: If true, the stream stays open for live matches after the
	//   historical replay completes
	//
	// Returns:
	// - An active TxStream on success
	// - Error if the subscription could not be established
	Subscribe(ctx context.Context, filter *model.MatchFilter, fromHeight uint32, liveMode bool) (TxStream, error)

	// Broadcast submits a raw transaction to the network.
	//
	// Parameters:
	// - ctx: Context for the operation with timeout and cancellation support
	// - rawTx: The serialized transaction bytes
	//
	// Returns:
	// - The transaction id the network accepted
	// - Error if the broadcast fails
	Broadcast(ctx context.Context, rawTx []byte) (*chainhash.Hash, error)

	// Disconnect tears the client down. It is idempotent; all active streams
	// are ended and their Events channels closed.
	Disconnect() error
}

// NodeClientI is the non-streaming slice of ClientI: height, broadcast and
// health against a single node, with no subscription surface. The Core RPC
// client implements exactly this.
type NodeClientI interface {
	// Health checks the health status of the node client.
	Health(ctx context.Context, checkLiveness bool) (int, string, error)

	// GetBestHeight returns the node's best known chain height.
	GetBestHeight(ctx context.Context) (uint32, error)

	// Broadcast submits a raw transaction directly to the node.
	Broadcast(ctx context.Context, rawTx []byte) (*chainhash.Hash, error)
}
