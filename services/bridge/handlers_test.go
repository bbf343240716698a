package bridge

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dashbridge/creditbridge/chain"
	"github.com/dashbridge/creditbridge/errors"
	"github.com/dashbridge/creditbridge/faucet"
	"github.com/dashbridge/creditbridge/model"
	"github.com/dashbridge/creditbridge/settings"
	"github.com/dashbridge/creditbridge/ulogger"
	"github.com/dashbridge/creditbridge/util/kafka"
	"github.com/dashbridge/creditbridge/watcher"
)

func newBridgeSettings() *settings.Settings {
	tSettings := settings.NewSettings()
	tSettings.Bridge.HTTPListenAddress = "localhost:0"
	tSettings.Bridge.NotifyBatchDuration = 20 * time.Millisecond
	tSettings.Watcher.LockWaitTimeout = 5 * time.Second
	tSettings.Watcher.DepositWaitTimeout = 5 * time.Second

	return tSettings
}

func newTestServer(t *testing.T, tSettings *settings.Settings, chainClient chain.ClientI,
	factory watcher.ClientFactory, faucetClient FaucetClientI, producer kafka.KafkaAsyncProducerI) *Server {
	t.Helper()

	s := New(ulogger.TestLogger{}, tSettings, chainClient, nil, factory, faucetClient, producer)

	t.Cleanup(func() {
		_ = s.Stop(context.Background())
	})

	return s
}

func newEchoContext(t *testing.T, method, target string, body interface{}) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()

	var reader io.Reader

	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}

	rec := httptest.NewRecorder()

	e := echo.New()
	c := e.NewContext(req, rec)

	return c, rec
}

func testPubKeyHash() []byte {
	return bytes.Repeat([]byte{0xab}, model.PubKeyHashSize)
}

// createPaymentTx builds a one-input transaction paying the given key.
func createPaymentTx(t *testing.T, pkh []byte, value int64) []byte {
	t.Helper()

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{}, 0), nil, nil))

	script, err := model.NewPubKeyHashScript(pkh)
	require.NoError(t, err)

	tx.AddTxOut(wire.NewTxOut(value, script))

	var buf bytes.Buffer

	require.NoError(t, tx.Serialize(&buf))

	return buf.Bytes()
}

func createLockPayload(txid *chainhash.Hash) []byte {
	var buf bytes.Buffer

	buf.WriteByte(0x00)
	buf.Write(txid[:])
	buf.Write(bytes.Repeat([]byte{0x44}, chainhash.HashSize))
	buf.Write(bytes.Repeat([]byte{0x55}, 96))

	return buf.Bytes()
}

func lockEvent(locks ...[]byte) *chain.StreamEvent {
	return &chain.StreamEvent{
		Type:       chain.StreamEventLock,
		RawLocks:   locks,
		ReceivedAt: time.Now(),
	}
}

func txEvent(txs ...[]byte) *chain.StreamEvent {
	return &chain.StreamEvent{
		Type:       chain.StreamEventTx,
		RawTxs:     txs,
		ReceivedAt: time.Now(),
	}
}

// newDepositClient scripts a client reporting the given tip whose Subscribe
// hands out the given stream.
func newDepositClient(best uint32, stream chain.TxStream) *chain.MockClient {
	client := &chain.MockClient{}
	client.On("GetBestHeight", mock.Anything).Return(best, nil)
	client.On("Subscribe", mock.Anything, mock.Anything, mock.Anything, true).Return(stream, nil)
	client.On("Disconnect").Return(nil).Maybe()

	return client
}

func staticFactory(client chain.ClientI) watcher.ClientFactory {
	return func(ctx context.Context) (chain.ClientI, error) {
		return client, nil
	}
}

type fakeFaucet struct {
	mu sync.Mutex

	token    string
	tokenErr error

	result     *faucet.FundingResult
	requestErr error

	invalidated int
	lastAddress string
	lastAmount  uint64
	lastToken   string
}

func (f *fakeFaucet) Health(_ context.Context, _ bool) (int, string, error) {
	return http.StatusOK, "OK", nil
}

func (f *fakeFaucet) EnsureToken(_ context.Context) (string, error) {
	return f.token, f.tokenErr
}

func (f *fakeFaucet) RequestFunds(_ context.Context, address string, amount uint64, capToken string) (*faucet.FundingResult, error) {
	f.mu.Lock()
	f.lastAddress = address
	f.lastAmount = amount
	f.lastToken = capToken
	f.mu.Unlock()

	return f.result, f.requestErr
}

func (f *fakeFaucet) InvalidateToken() {
	f.mu.Lock()
	f.invalidated++
	f.mu.Unlock()
}

func TestHandleBroadcast_ReturnsLock(t *testing.T) {
	tSettings := newBridgeSettings()

	raw := createPaymentTx(t, testPubKeyHash(), 50_000)
	tx, err := model.ParseTransaction(raw)
	require.NoError(t, err)

	txid := tx.TxID

	stream := chain.NewMockStream(4)

	client := &chain.MockClient{}
	client.On("Subscribe", mock.Anything, mock.Anything, uint32(0), true).Return(stream, nil)
	client.On("Broadcast", mock.Anything, raw).Return(&txid, nil).Run(func(_ mock.Arguments) {
		stream.Deliver(lockEvent(createLockPayload(&txid)))
	})

	s := newTestServer(t, tSettings, client, nil, nil, nil)

	c, rec := newEchoContext(t, http.MethodPost, "/bridge/broadcast",
		broadcastRequest{RawTx: hex.EncodeToString(raw)})

	require.NoError(t, s.handleBroadcast(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp broadcastResponse

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, txid.String(), resp.TxID)
	assert.True(t, resp.Locked)

	client.AssertCalled(t, "Broadcast", mock.Anything, raw)
}

func TestHandleBroadcast_RetriesTransientBroadcastFailure(t *testing.T) {
	tSettings := newBridgeSettings()

	raw := createPaymentTx(t, testPubKeyHash(), 50_000)
	tx, err := model.ParseTransaction(raw)
	require.NoError(t, err)

	txid := tx.TxID

	stream := chain.NewMockStream(4)

	client := &chain.MockClient{}
	client.On("Subscribe", mock.Anything, mock.Anything, uint32(0), true).Return(stream, nil)
	client.On("Broadcast", mock.Anything, raw).Return(nil, errors.NewServiceUnavailableError("gateway busy")).Once()
	client.On("Broadcast", mock.Anything, raw).Return(&txid, nil).Run(func(_ mock.Arguments) {
		stream.Deliver(lockEvent(createLockPayload(&txid)))
	}).Once()

	s := newTestServer(t, tSettings, client, nil, nil, nil)

	c, rec := newEchoContext(t, http.MethodPost, "/bridge/broadcast",
		broadcastRequest{RawTx: hex.EncodeToString(raw)})

	require.NoError(t, s.handleBroadcast(c))
	require.Equal(t, http.StatusOK, rec.Code)

	client.AssertNumberOfCalls(t, "Broadcast", 2)

	// the retry was forwarded to the hub
	var sawRetry bool

	for done := false; !done; {
		select {
		case msg := <-s.notificationCh:
			if msg.Type == notifyRetry && msg.Attempt == 1 {
				sawRetry = true
			}
		default:
			done = true
		}
	}

	assert.True(t, sawRetry, "expected a retry notification for the failed broadcast attempt")
}

func TestHandleBroadcast_LockTimeoutMapsToGatewayTimeout(t *testing.T) {
	tSettings := newBridgeSettings()
	tSettings.Watcher.LockWaitTimeout = 50 * time.Millisecond

	raw := createPaymentTx(t, testPubKeyHash(), 50_000)
	tx, err := model.ParseTransaction(raw)
	require.NoError(t, err)

	txid := tx.TxID

	stream := chain.NewMockStream(4)

	client := &chain.MockClient{}
	client.On("Subscribe", mock.Anything, mock.Anything, uint32(0), true).Return(stream, nil)
	client.On("Broadcast", mock.Anything, raw).Return(&txid, nil)

	s := newTestServer(t, tSettings, client, nil, nil, nil)

	c, _ := newEchoContext(t, http.MethodPost, "/bridge/broadcast",
		broadcastRequest{RawTx: hex.EncodeToString(raw)})

	err = s.handleBroadcast(c)

	echoErr := &echo.HTTPError{}
	require.True(t, errors.As(err, &echoErr))
	assert.Equal(t, http.StatusGatewayTimeout, echoErr.Code)
}

func TestHandleBroadcast_RejectsInvalidPayloads(t *testing.T) {
	tSettings := newBridgeSettings()
	s := newTestServer(t, tSettings, &chain.MockClient{}, nil, nil, nil)

	t.Run("not hex", func(t *testing.T) {
		c, _ := newEchoContext(t, http.MethodPost, "/bridge/broadcast", broadcastRequest{RawTx: "zzzz"})

		err := s.handleBroadcast(c)

		echoErr := &echo.HTTPError{}
		require.True(t, errors.As(err, &echoErr))
		assert.Equal(t, http.StatusBadRequest, echoErr.Code)
	})

	t.Run("empty", func(t *testing.T) {
		c, _ := newEchoContext(t, http.MethodPost, "/bridge/broadcast", broadcastRequest{})

		err := s.handleBroadcast(c)

		echoErr := &echo.HTTPError{}
		require.True(t, errors.As(err, &echoErr))
		assert.Equal(t, http.StatusBadRequest, echoErr.Code)
	})

	t.Run("not a transaction", func(t *testing.T) {
		c, _ := newEchoContext(t, http.MethodPost, "/bridge/broadcast", broadcastRequest{RawTx: "deadbeef"})

		err := s.handleBroadcast(c)

		echoErr := &echo.HTTPError{}
		require.True(t, errors.As(err, &echoErr))
		assert.Equal(t, http.StatusBadRequest, echoErr.Code)
	})
}

func TestHandleWatchDeposit_ResolvesAndCredits(t *testing.T) {
	tSettings := newBridgeSettings()

	pkh := testPubKeyHash()

	address, err := model.AddressFromPubKeyHash(pkh, tSettings.ChainCfgParams)
	require.NoError(t, err)

	raw := createPaymentTx(t, pkh, 25_000)

	stream := chain.NewMockStream(4)
	stream.Deliver(txEvent(raw))

	client := newDepositClient(1200, stream)
	producer := kafka.NewKafkaAsyncProducerMock()

	s := newTestServer(t, tSettings, client, staticFactory(client), nil, producer)

	c, rec := newEchoContext(t, http.MethodPost, "/bridge/deposits/watch",
		watchRequest{Address: address, MinAmount: 10_000})

	require.NoError(t, s.handleWatchDeposit(c))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp watchResponse

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.SessionID)

	require.Eventually(t, func() bool {
		sess := s.getSession(resp.SessionID)
		return sess != nil && sess.Snapshot().State == SessionStateResolved
	}, 2*time.Second, 10*time.Millisecond)

	view := s.getSession(resp.SessionID).Snapshot()
	require.NotNil(t, view.UTXO)
	assert.Equal(t, uint64(25_000), view.UTXO.Satoshis)
	assert.Equal(t, uint64(25_000), view.TotalAmount)
	assert.NotNil(t, view.ResolvedAt)

	// exactly one credit event went to Kafka, keyed by the session id
	msgs := producer.PublishedMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, resp.SessionID, string(msgs[0].Key))

	event, err := model.CreditEventFromBytes(msgs[0].Value)
	require.NoError(t, err)
	assert.Equal(t, resp.SessionID, event.SessionID)
	assert.Equal(t, view.UTXO.TxID.String(), event.TxID)
	assert.Equal(t, uint64(25_000), event.Satoshis)
	assert.Equal(t, address, event.Address)
	assert.Equal(t, uint32(1200), event.Height)
}

func TestHandleWatchDeposit_NeverCreditsTheSameDepositTwice(t *testing.T) {
	tSettings := newBridgeSettings()

	pkh := testPubKeyHash()

	address, err := model.AddressFromPubKeyHash(pkh, tSettings.ChainCfgParams)
	require.NoError(t, err)

	raw := createPaymentTx(t, pkh, 25_000)

	// each session gets its own stream carrying the same transaction
	streams := []*chain.MockStream{chain.NewMockStream(4), chain.NewMockStream(4)}
	for _, stream := range streams {
		stream.Deliver(txEvent(raw))
	}

	var (
		mu   sync.Mutex
		next int
	)

	factory := func(ctx context.Context) (chain.ClientI, error) {
		mu.Lock()
		stream := streams[next%len(streams)]
		next++
		mu.Unlock()

		return newDepositClient(1200, stream), nil
	}

	producer := kafka.NewKafkaAsyncProducerMock()

	heightClient := &chain.MockClient{}
	heightClient.On("GetBestHeight", mock.Anything).Return(uint32(1200), nil)

	s := newTestServer(t, tSettings, heightClient, factory, nil, producer)

	watchOnce := func() string {
		c, rec := newEchoContext(t, http.MethodPost, "/bridge/deposits/watch",
			watchRequest{Address: address, MinAmount: 10_000})

		require.NoError(t, s.handleWatchDeposit(c))
		require.Equal(t, http.StatusAccepted, rec.Code)

		var resp watchResponse

		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

		require.Eventually(t, func() bool {
			sess := s.getSession(resp.SessionID)
			return sess != nil && sess.Snapshot().State == SessionStateResolved
		}, 2*time.Second, 10*time.Millisecond)

		return resp.SessionID
	}

	first := watchOnce()
	second := watchOnce()
	require.NotEqual(t, first, second)

	// both sessions resolved, but only the first one published a credit
	msgs := producer.PublishedMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, first, string(msgs[0].Key))
}

func TestHandleWatchDeposit_TimesOutQuietly(t *testing.T) {
	tSettings := newBridgeSettings()
	tSettings.Watcher.DepositWaitTimeout = 50 * time.Millisecond

	pkh := testPubKeyHash()

	address, err := model.AddressFromPubKeyHash(pkh, tSettings.ChainCfgParams)
	require.NoError(t, err)

	stream := chain.NewMockStream(4)
	client := newDepositClient(1200, stream)
	producer := kafka.NewKafkaAsyncProducerMock()

	s := newTestServer(t, tSettings, client, staticFactory(client), nil, producer)

	c, rec := newEchoContext(t, http.MethodPost, "/bridge/deposits/watch", watchRequest{Address: address})

	require.NoError(t, s.handleWatchDeposit(c))

	var resp watchResponse

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	require.Eventually(t, func() bool {
		sess := s.getSession(resp.SessionID)
		return sess != nil && sess.Snapshot().State == SessionStateTimedOut
	}, 2*time.Second, 10*time.Millisecond)

	view := s.getSession(resp.SessionID).Snapshot()
	assert.Nil(t, view.UTXO)
	assert.Empty(t, view.Error)

	assert.Empty(t, producer.PublishedMessages())
}

func TestHandleWatchDeposit_RejectsInvalidAddress(t *testing.T) {
	tSettings := newBridgeSettings()
	s := newTestServer(t, tSettings, &chain.MockClient{}, nil, nil, nil)

	c, _ := newEchoContext(t, http.MethodPost, "/bridge/deposits/watch",
		watchRequest{Address: "not-an-address"})

	err := s.handleWatchDeposit(c)

	echoErr := &echo.HTTPError{}
	require.True(t, errors.As(err, &echoErr))
	assert.Equal(t, http.StatusBadRequest, echoErr.Code)
}

func TestHandleWatchDeposit_RejectsInvalidWatchTxID(t *testing.T) {
	tSettings := newBridgeSettings()

	address, err := model.AddressFromPubKeyHash(testPubKeyHash(), tSettings.ChainCfgParams)
	require.NoError(t, err)

	s := newTestServer(t, tSettings, &chain.MockClient{}, nil, nil, nil)

	c, _ := newEchoContext(t, http.MethodPost, "/bridge/deposits/watch",
		watchRequest{Address: address, WatchTxID: "zz"})

	err = s.handleWatchDeposit(c)

	echoErr := &echo.HTTPError{}
	require.True(t, errors.As(err, &echoErr))
	assert.Equal(t, http.StatusBadRequest, echoErr.Code)
}

func TestHandleGetSession_NotFound(t *testing.T) {
	tSettings := newBridgeSettings()
	s := newTestServer(t, tSettings, &chain.MockClient{}, nil, nil, nil)

	c, _ := newEchoContext(t, http.MethodGet, "/bridge/sessions/unknown", nil)
	c.SetPath("/bridge/sessions/:id")
	c.SetParamNames("id")
	c.SetParamValues("unknown")

	err := s.handleGetSession(c)

	echoErr := &echo.HTTPError{}
	require.True(t, errors.As(err, &echoErr))
	assert.Equal(t, http.StatusNotFound, echoErr.Code)
}

func TestHandleFaucet_Granted(t *testing.T) {
	tSettings := newBridgeSettings()

	address, err := model.AddressFromPubKeyHash(testPubKeyHash(), tSettings.ChainCfgParams)
	require.NoError(t, err)

	fc := &fakeFaucet{
		token:  "cap-token",
		result: &faucet.FundingResult{TxID: "aa11", Amount: tSettings.Faucet.RequestAmount, Address: address},
	}

	s := newTestServer(t, tSettings, &chain.MockClient{}, nil, fc, nil)

	c, rec := newEchoContext(t, http.MethodPost, "/bridge/faucet", faucetRequest{Address: address})

	require.NoError(t, s.handleFaucet(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp faucetResponse

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "aa11", resp.TxID)
	assert.Equal(t, address, resp.Address)

	// the amount defaults from settings and the solved token is forwarded
	assert.Equal(t, tSettings.Faucet.RequestAmount, fc.lastAmount)
	assert.Equal(t, "cap-token", fc.lastToken)
	assert.Equal(t, address, fc.lastAddress)
}

func TestHandleFaucet_RateLimitedMapsTo429(t *testing.T) {
	tSettings := newBridgeSettings()

	address, err := model.AddressFromPubKeyHash(testPubKeyHash(), tSettings.ChainCfgParams)
	require.NoError(t, err)

	fc := &fakeFaucet{
		token:      "cap-token",
		requestErr: errors.NewFaucetRateLimitedError("faucet rate limited, try again shortly"),
	}

	s := newTestServer(t, tSettings, &chain.MockClient{}, nil, fc, nil)

	c, _ := newEchoContext(t, http.MethodPost, "/bridge/faucet", faucetRequest{Address: address})

	err = s.handleFaucet(c)

	echoErr := &echo.HTTPError{}
	require.True(t, errors.As(err, &echoErr))
	assert.Equal(t, http.StatusTooManyRequests, echoErr.Code)
}

func TestHandleFaucet_RejectedTokenIsInvalidated(t *testing.T) {
	tSettings := newBridgeSettings()

	address, err := model.AddressFromPubKeyHash(testPubKeyHash(), tSettings.ChainCfgParams)
	require.NoError(t, err)

	fc := &fakeFaucet{
		token:      "stale-token",
		requestErr: errors.NewCapInvalidError("token rejected"),
	}

	s := newTestServer(t, tSettings, &chain.MockClient{}, nil, fc, nil)

	c, _ := newEchoContext(t, http.MethodPost, "/bridge/faucet", faucetRequest{Address: address})

	err = s.handleFaucet(c)

	echoErr := &echo.HTTPError{}
	require.True(t, errors.As(err, &echoErr))
	assert.Equal(t, http.StatusBadGateway, echoErr.Code)
	assert.Equal(t, 1, fc.invalidated)
}

func TestHandleFaucet_TokenFailureMapsToBadGateway(t *testing.T) {
	tSettings := newBridgeSettings()

	address, err := model.AddressFromPubKeyHash(testPubKeyHash(), tSettings.ChainCfgParams)
	require.NoError(t, err)

	fc := &fakeFaucet{tokenErr: errors.NewServiceUnavailableError("faucet down")}

	s := newTestServer(t, tSettings, &chain.MockClient{}, nil, fc, nil)

	c, _ := newEchoContext(t, http.MethodPost, "/bridge/faucet", faucetRequest{Address: address})

	err = s.handleFaucet(c)

	echoErr := &echo.HTTPError{}
	require.True(t, errors.As(err, &echoErr))
	assert.Equal(t, http.StatusBadGateway, echoErr.Code)
}

func TestHandleFaucet_NotConfigured(t *testing.T) {
	tSettings := newBridgeSettings()
	s := newTestServer(t, tSettings, &chain.MockClient{}, nil, nil, nil)

	c, _ := newEchoContext(t, http.MethodPost, "/bridge/faucet", faucetRequest{Address: "ignored"})

	err := s.handleFaucet(c)

	echoErr := &echo.HTTPError{}
	require.True(t, errors.As(err, &echoErr))
	assert.Equal(t, http.StatusServiceUnavailable, echoErr.Code)
}
