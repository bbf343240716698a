package chain

import (
	"context"
	"encoding/hex"
	"net/http"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/go-socks/socks"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/kpango/fastime"

	"github.com/dashbridge/creditbridge/errors"
	"github.com/dashbridge/creditbridge/model"
	"github.com/dashbridge/creditbridge/settings"
	"github.com/dashbridge/creditbridge/ulogger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// frame ops understood by the gateway
const (
	opSubscribe   = "subscribe"
	opUnsubscribe = "unsubscribe"
	opBroadcast   = "broadcast"
	opBestHeight  = "best_height"
	opAck         = "ack"
	opEvent       = "event"
	opEnd         = "end"
)

// event payload types inside an opEvent frame
const (
	eventTypeTx     = "tx"
	eventTypeLock   = "lock"
	eventTypeHeight = "height"
)

const (
	writeWait              = 10 * time.Second
	defaultEventBufferSize = 128
	errBufferSize          = 10
)

// gatewayFrame is the single JSON frame exchanged with the gateway. Requests
// carry a client-generated id; the matching ack echoes it. Event and end
// frames carry the id of the subscription they belong to.
type gatewayFrame struct {
	ID         string   `json:"id,omitempty"`
	Op         string   `json:"op"`
	Filter     string   `json:"filter,omitempty"`
	FromHeight uint32   `json:"fromHeight,omitempty"`
	Live       bool     `json:"live,omitempty"`
	Type       string   `json:"type,omitempty"`
	Txs        []string `json:"txs,omitempty"`
	Locks      []string `json:"locks,omitempty"`
	Height     uint32   `json:"height,omitempty"`
	RawTx      string   `json:"rawTx,omitempty"`
	TxID       string   `json:"txid,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// GatewayClient is the websocket binding of ClientI. A single connection
// carries any number of subscriptions, multiplexed by id. All reads happen on
// one pump goroutine; writes are serialized with a mutex.
type GatewayClient struct {
	logger   ulogger.Logger
	settings *settings.Settings

	conn    *websocket.Conn
	writeMu sync.Mutex

	seen *model.SeenFilter
	rpc  *CoreRPCClient

	streamsMu sync.RWMutex
	streams   map[string]*gatewayStream

	pendingMu sync.Mutex
	pending   map[string]chan *gatewayFrame

	closeCh   chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewGatewayClient dials the transaction gateway and starts the read pump.
// The returned client is ready for Subscribe and Broadcast calls. When the
// settings carry a Core RPC URL, a narrow RPC client is attached as the
// height fallback.
func NewGatewayClient(ctx context.Context, logger ulogger.Logger, tSettings *settings.Settings) (*GatewayClient, error) {
	initPrometheusMetrics()

	gatewayURL := tSettings.Chain.GatewayURL
	if gatewayURL == nil {
		return nil, errors.NewConfigurationError("no chain_gatewayURL setting found")
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: tSettings.Chain.HandshakeTimeout,
	}

	if proxyAddr := tSettings.Chain.SocksProxy; proxyAddr != "" {
		proxy := &socks.Proxy{Addr: proxyAddr}
		dialer.NetDial = proxy.Dial

		logger.Infof("[GatewayClient] dialling %s via socks5 proxy %s", gatewayURL, proxyAddr)
	}

	dialCtx := ctx

	if tSettings.Chain.ConnectTimeout > 0 {
		var cancel context.CancelFunc

		dialCtx, cancel = context.WithTimeout(ctx, tSettings.Chain.ConnectTimeout)
		defer cancel()
	}

	conn, resp, err := dialer.DialContext(dialCtx, gatewayURL.String(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	if err != nil {
		return nil, errors.NewNetworkError("failed to dial gateway %s", gatewayURL, err)
	}

	if tSettings.Chain.MaxMessageSize > 0 {
		conn.SetReadLimit(tSettings.Chain.MaxMessageSize)
	}

	pongWait := tSettings.Chain.PongWait

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// answer gateway pings and treat them as liveness too
	conn.SetPingHandler(func(appData string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})

	var rpc *CoreRPCClient

	if tSettings.Chain.RPCURL != nil {
		rpc, err = NewCoreRPCClient(logger, tSettings)
		if err != nil {
			logger.Warnf("[GatewayClient] core rpc height fallback unavailable: %v", err)
			rpc = nil
		}
	}

	c := &GatewayClient{
		logger:   logger,
		settings: tSettings,
		conn:     conn,
		seen:     model.NewSeenFilter(tSettings.Chain.SeenFilterCapacity, tSettings.Chain.SeenFilterFPRate),
		rpc:      rpc,
		streams:  make(map[string]*gatewayStream),
		pending:  make(map[string]chan *gatewayFrame),
		closeCh:  make(chan struct{}),
	}

	go c.readPump()

	if tSettings.Chain.PingInterval > 0 {
		go c.pingLoop()
	}

	return c, nil
}

// Health reports the client's health. Liveness only checks that the client
// has not been disconnected; readiness also round-trips a height query.
func (c *GatewayClient) Health(ctx context.Context, checkLiveness bool) (int, string, error) {
	select {
	case <-c.closeCh:
		return http.StatusServiceUnavailable, "gateway client disconnected", nil
	default:
	}

	if checkLiveness {
		return http.StatusOK, "OK", nil
	}

	if _, err := c.GetBestHeight(ctx); err != nil {
		return http.StatusServiceUnavailable, "gateway unreachable", err
	}

	return http.StatusOK, "OK", nil
}

// GetBestHeight asks the gateway for the best chain height, falling back to
// the Core RPC node when the gateway cannot answer.
func (c *GatewayClient) GetBestHeight(ctx context.Context) (uint32, error) {
	ack, err := c.request(ctx, &gatewayFrame{Op: opBestHeight})
	if err == nil {
		return ack.Height, nil
	}

	if c.rpc != nil {
		c.logger.Warnf("[GatewayClient] best height via gateway failed, falling back to core rpc: %v", err)
		return c.rpc.GetBestHeight(ctx)
	}

	return 0, errors.NewBlockHeightUnavailableError("failed to get best height from gateway", err)
}

// Subscribe opens a filtered stream. The stream is registered with the read
// pump before the subscribe frame goes out, so nothing the gateway relays
// after its ack can be missed. Subscribe returns only once the ack arrives;
// a caller that broadcasts after Subscribe returns is therefore guaranteed
// the broadcast is observable on the stream.
func (c *GatewayClient) Subscribe(ctx context.Context, filter *model.MatchFilter, fromHeight uint32, liveMode bool) (TxStream, error) {
	if filter == nil {
		return nil, errors.NewInvalidArgumentError("subscribe requires a match filter")
	}

	filterHex, err := filter.LoadHex()
	if err != nil {
		return nil, errors.NewProcessingError("failed to serialize match filter", err)
	}

	frame := &gatewayFrame{
		ID:         uuid.New().String(),
		Op:         opSubscribe,
		Filter:     filterHex,
		FromHeight: fromHeight,
		Live:       liveMode,
	}

	stream := newGatewayStream(c, frame.ID, c.settings.Chain.EventBufferSize)
	c.addStream(stream)

	if _, err = c.request(ctx, frame); err != nil {
		if s := c.detachStream(stream.id); s != nil {
			s.Cancel()
		}

		return nil, errors.NewSubscriptionFailedError("failed to subscribe from height %d", fromHeight, err)
	}

	c.logger.Debugf("[GatewayClient] subscription %s active from height %d (live=%v)", stream.id, fromHeight, liveMode)

	return stream, nil
}

// Broadcast submits a raw transaction through the gateway and returns the
// accepted txid. When the ack does not carry one, the txid is computed
// locally from the payload.
func (c *GatewayClient) Broadcast(ctx context.Context, rawTx []byte) (*chainhash.Hash, error) {
	if len(rawTx) == 0 {
		return nil, errors.NewInvalidArgumentError("broadcast requires a serialized transaction")
	}

	frame := &gatewayFrame{
		Op:    opBroadcast,
		RawTx: hex.EncodeToString(rawTx),
	}

	ack, err := c.request(ctx, frame)
	if err != nil {
		return nil, errors.NewTxBroadcastError("gateway broadcast failed", err)
	}

	prometheusGatewayBroadcasts.Inc()

	if ack.TxID != "" {
		txid, err := chainhash.NewHashFromStr(ack.TxID)
		if err == nil {
			return txid, nil
		}

		c.logger.Warnf("[GatewayClient] gateway returned unparseable txid %q: %v", ack.TxID, err)
	}

	txid := chainhash.DoubleHashH(rawTx)

	return &txid, nil
}

// Disconnect closes the connection. All active streams are finished by the
// read pump as it exits. Safe to call more than once.
func (c *GatewayClient) Disconnect() error {
	c.closeOnce.Do(func() {
		close(c.closeCh)

		deadline := time.Now().Add(writeWait)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)

		c.closeErr = c.conn.Close()
	})

	return c.closeErr
}

// request sends a frame and waits for the matching ack. The id is generated
// here unless the caller needed it earlier, as Subscribe does.
func (c *GatewayClient) request(ctx context.Context, frame *gatewayFrame) (*gatewayFrame, error) {
	if frame.ID == "" {
		frame.ID = uuid.New().String()
	}

	ackCh := make(chan *gatewayFrame, 1)

	c.pendingMu.Lock()
	c.pending[frame.ID] = ackCh
	c.pendingMu.Unlock()

	if err := c.writeFrame(frame); err != nil {
		c.removePending(frame.ID)
		return nil, err
	}

	select {
	case ack := <-ackCh:
		if ack.Error != "" {
			return nil, errors.NewNetworkInvalidResponseError("gateway rejected %s request: %s", frame.Op, ack.Error)
		}

		return ack, nil

	case <-ctx.Done():
		c.removePending(frame.ID)
		return nil, errors.NewNetworkTimeoutError("%s request aborted waiting for ack", frame.Op, ctx.Err())

	case <-c.closeCh:
		c.removePending(frame.ID)
		return nil, errors.NewServiceError("client disconnected while waiting for %s ack", frame.Op)
	}
}

func (c *GatewayClient) removePending(id string) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

func (c *GatewayClient) writeFrame(frame *gatewayFrame) error {
	b, err := json.Marshal(frame)
	if err != nil {
		return errors.NewProcessingError("failed to encode %s frame", frame.Op, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err = c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return errors.NewNetworkError("failed to send %s frame", frame.Op, err)
	}

	return nil
}

// readPump is the only reader of the connection and the only goroutine
// allowed to finish streams: closing an events channel is safe only on the
// goroutine that sends into it.
func (c *GatewayClient) readPump() {
	defer func() {
		c.streamsMu.Lock()
		streams := make([]*gatewayStream, 0, len(c.streams))

		for id, stream := range c.streams {
			delete(c.streams, id)
			streams = append(streams, stream)
		}
		c.streamsMu.Unlock()

		for _, stream := range streams {
			prometheusGatewaySubscriptions.Dec()
			stream.finish()
		}
	}()

	for {
		select {
		case <-c.closeCh:
			return
		default:
		}

		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closeCh:
				// deliberate disconnect, not a failure
			default:
				c.logger.Warnf("[GatewayClient] gateway read failed: %v", err)

				c.streamsMu.RLock()
				for _, stream := range c.streams {
					stream.reportErr(errors.NewNetworkError("gateway connection lost", err))
				}
				c.streamsMu.RUnlock()
			}

			return
		}

		prometheusGatewayFramesReceived.Inc()

		var frame gatewayFrame

		if err = json.Unmarshal(raw, &frame); err != nil {
			c.logger.Warnf("[GatewayClient] dropping undecodable frame: %v", err)
			continue
		}

		switch frame.Op {
		case opAck:
			c.resolvePending(&frame)
		case opEvent:
			c.dispatchEvent(&frame)
		case opEnd:
			c.endStream(&frame)
		default:
			c.logger.Debugf("[GatewayClient] ignoring frame op %q", frame.Op)
		}
	}
}

func (c *GatewayClient) pingLoop() {
	ticker := time.NewTicker(c.settings.Chain.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-c.closeCh:
			return
		}
	}
}

func (c *GatewayClient) resolvePending(frame *gatewayFrame) {
	c.pendingMu.Lock()
	ackCh, ok := c.pending[frame.ID]
	if ok {
		delete(c.pending, frame.ID)
	}
	c.pendingMu.Unlock()

	if !ok {
		c.logger.Debugf("[GatewayClient] ack for unknown request %s", frame.ID)
		return
	}

	ackCh <- frame
}

func (c *GatewayClient) dispatchEvent(frame *gatewayFrame) {
	c.streamsMu.RLock()
	stream, ok := c.streams[frame.ID]
	c.streamsMu.RUnlock()

	if !ok {
		c.logger.Debugf("[GatewayClient] event for unknown subscription %s", frame.ID)
		return
	}

	ev, err := c.buildEvent(frame)
	if err != nil {
		c.logger.Warnf("[GatewayClient] skipping bad event frame on %s: %v", frame.ID, err)
		stream.reportErr(err)

		return
	}

	if ev == nil {
		// everything in the frame was a duplicate
		return
	}

	select {
	case <-stream.done:
		return
	default:
	}

	select {
	case stream.events <- ev:
	case <-stream.done:
	case <-c.closeCh:
	}
}

// buildEvent decodes an event frame. Transactions already relayed on this
// connection are dropped here, which is what hides historical/live seam
// re-deliveries from consumers. Returns (nil, nil) when nothing survives.
func (c *GatewayClient) buildEvent(frame *gatewayFrame) (*StreamEvent, error) {
	receivedAt := fastime.Now()

	switch frame.Type {
	case eventTypeTx:
		rawTxs := make([][]byte, 0, len(frame.Txs))

		for _, txHex := range frame.Txs {
			raw, err := hex.DecodeString(txHex)
			if err != nil {
				return nil, errors.NewNetworkInvalidResponseError("gateway sent undecodable tx payload", err)
			}

			txid := chainhash.DoubleHashH(raw)

			if c.seen.Seen(&txid) {
				prometheusGatewayTransactionsDeduped.Inc()
				continue
			}

			prometheusGatewayTransactionsRelayed.Inc()

			rawTxs = append(rawTxs, raw)
		}

		if len(rawTxs) == 0 {
			return nil, nil
		}

		return &StreamEvent{Type: StreamEventTx, RawTxs: rawTxs, ReceivedAt: receivedAt}, nil

	case eventTypeLock:
		rawLocks := make([][]byte, 0, len(frame.Locks))

		for _, lockHex := range frame.Locks {
			raw, err := hex.DecodeString(lockHex)
			if err != nil {
				return nil, errors.NewNetworkInvalidResponseError("gateway sent undecodable lock payload", err)
			}

			rawLocks = append(rawLocks, raw)
		}

		if len(rawLocks) == 0 {
			return nil, nil
		}

		prometheusGatewayLocksRelayed.Add(float64(len(rawLocks)))

		return &StreamEvent{Type: StreamEventLock, RawLocks: rawLocks, ReceivedAt: receivedAt}, nil

	case eventTypeHeight:
		return &StreamEvent{Type: StreamEventHeight, Height: frame.Height, ReceivedAt: receivedAt}, nil

	default:
		return nil, errors.NewNetworkInvalidResponseError("gateway sent unknown event type %q", frame.Type)
	}
}

func (c *GatewayClient) endStream(frame *gatewayFrame) {
	stream := c.detachStream(frame.ID)
	if stream == nil {
		return
	}

	if frame.Error != "" {
		stream.reportErr(errors.NewStreamError("gateway ended subscription: %s", frame.Error))
	}

	stream.finish()
}

func (c *GatewayClient) addStream(stream *gatewayStream) {
	c.streamsMu.Lock()
	c.streams[stream.id] = stream
	c.streamsMu.Unlock()

	prometheusGatewaySubscriptions.Inc()
}

// detachStream removes the stream from the routing table so no further
// events reach it. It does NOT finish the stream; only the read pump may do
// that.
func (c *GatewayClient) detachStream(id string) *gatewayStream {
	c.streamsMu.Lock()
	stream, ok := c.streams[id]
	if ok {
		delete(c.streams, id)
	}
	c.streamsMu.Unlock()

	if !ok {
		return nil
	}

	prometheusGatewaySubscriptions.Dec()

	return stream
}

func (c *GatewayClient) unsubscribe(id string) {
	if err := c.writeFrame(&gatewayFrame{ID: id, Op: opUnsubscribe}); err != nil {
		// connection is going away; the read pump will finish the stream
		c.logger.Debugf("[GatewayClient] unsubscribe %s: %v", id, err)
	}
}

// gatewayStream is the TxStream handed out by Subscribe. Events are closed
// exactly once, always by the read pump.
type gatewayStream struct {
	id     string
	client *GatewayClient

	events chan *StreamEvent
	errs   chan error
	done   chan struct{}

	doneOnce   sync.Once
	finishOnce sync.Once
}

func newGatewayStream(c *GatewayClient, id string, bufferSize int) *gatewayStream {
	if bufferSize <= 0 {
		bufferSize = defaultEventBufferSize
	}

	return &gatewayStream{
		id:     id,
		client: c,
		events: make(chan *StreamEvent, bufferSize),
		errs:   make(chan error, errBufferSize),
		done:   make(chan struct{}),
	}
}

func (s *gatewayStream) Events() <-chan *StreamEvent {
	return s.events
}

func (s *gatewayStream) Errs() <-chan error {
	return s.errs
}

// Cancel releases the subscription. The gateway answers the unsubscribe with
// an end frame, at which point the read pump closes the events channel.
// Idempotent.
func (s *gatewayStream) Cancel() {
	s.doneOnce.Do(func() {
		close(s.done)
		s.client.unsubscribe(s.id)
	})
}

func (s *gatewayStream) reportErr(err error) {
	select {
	case s.errs <- err:
	default:
	}
}

// finish closes the stream's channels. Must only run on the read pump
// goroutine, the sole sender into events.
func (s *gatewayStream) finish() {
	s.doneOnce.Do(func() {
		close(s.done)
	})

	s.finishOnce.Do(func() {
		close(s.events)
		close(s.errs)
	})
}
