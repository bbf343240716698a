package bridge

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	"github.com/labstack/echo/v4"

	"github.com/dashbridge/creditbridge/errors"
	"github.com/dashbridge/creditbridge/model"
	"github.com/dashbridge/creditbridge/util/retry"
	"github.com/dashbridge/creditbridge/util/tracing"
	"github.com/dashbridge/creditbridge/watcher"
)

type broadcastRequest struct {
	RawTx          string `json:"raw_tx"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

type broadcastResponse struct {
	TxID   string `json:"txid"`
	Locked bool   `json:"locked"`
}

type watchRequest struct {
	Address        string `json:"address"`
	MinAmount      uint64 `json:"min_amount,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
	WatchTxID      string `json:"watch_txid,omitempty"`
	WatchVout      uint32 `json:"watch_vout,omitempty"`
}

type watchResponse struct {
	SessionID string `json:"session_id"`
}

type faucetRequest struct {
	Address string `json:"address"`
	Amount  uint64 `json:"amount,omitempty"`
}

type faucetResponse struct {
	TxID    string `json:"txid"`
	Amount  uint64 `json:"amount"`
	Address string `json:"address"`
}

func (s *Server) handleHealth(c echo.Context) error {
	checkLiveness := c.QueryParam("liveness") != ""

	status, msg, err := s.Health(c.Request().Context(), checkLiveness)
	if err != nil {
		s.logger.Debugf("[Bridge] health check reported: %v", err)
	}

	if checkLiveness {
		return c.String(status, msg)
	}

	return c.JSONBlob(status, []byte(msg))
}

// handleBroadcast broadcasts a raw transaction and holds the request open
// until its InstantSend lock arrives. The broadcast itself happens inside the
// lock wait's on-ready hook, after the subscription is confirmed, so the lock
// cannot race past the filter.
func (s *Server) handleBroadcast(c echo.Context) error {
	var req broadcastRequest

	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	raw, err := hex.DecodeString(strings.TrimSpace(req.RawTx))
	if err != nil || len(raw) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "raw_tx must be hex encoded")
	}

	tx, err := model.ParseTransaction(raw)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	txid := tx.TxID

	opts := &watcher.LockWaitOptions{
		OnReady:    s.broadcastOnReady(raw, &txid),
		OnProgress: s.progressNotifier(txid.String()),
	}

	if req.TimeoutSeconds > 0 {
		opts.Timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}

	spanCtx, _, endSpan := s.tracer.Start(c.Request().Context(), "Broadcast",
		tracing.WithTag("txid", txid.String()),
	)

	lock, err := watcher.WaitForInstantLock(spanCtx, s.logger, s.settings, s.chainClient, &txid, opts)

	endSpan(err)

	if err != nil {
		switch {
		case errors.Is(err, errors.ErrLockTimeout):
			prometheusBridgeBroadcasts.WithLabelValues("lock_timeout").Inc()
			return echo.NewHTTPError(http.StatusGatewayTimeout, err.Error())
		case errors.Is(err, errors.ErrStreamEnded), errors.Is(err, errors.ErrOnReadyFailed):
			prometheusBridgeBroadcasts.WithLabelValues("failed").Inc()
			return echo.NewHTTPError(http.StatusBadGateway, err.Error())
		default:
			prometheusBridgeBroadcasts.WithLabelValues("failed").Inc()
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}

	prometheusBridgeBroadcasts.WithLabelValues("locked").Inc()

	return c.JSON(http.StatusOK, broadcastResponse{TxID: lock.TxID.String(), Locked: true})
}

// broadcastOnReady submits the transaction once the subscription is live.
// Transient gateway failures are retried, each retry forwarded to the hub so
// a watching browser sees the attempt counter tick.
func (s *Server) broadcastOnReady(raw []byte, txid *chainhash.Hash) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, err := retry.Retry(ctx, s.logger, func() (*chainhash.Hash, error) {
			return s.chainClient.Broadcast(ctx, raw)
		}, retry.Bind(retry.ConservativePolicy(),
			retry.WithMessage(fmt.Sprintf("[Bridge] broadcasting %s", txid)),
			retry.WithNotify(s.retryNotifier(txid.String())),
		)...)

		return err
	}
}

func (s *Server) retryNotifier(txid string) func(attempt, maxAttempts int, failure error) {
	return func(attempt, maxAttempts int, failure error) {
		msg := &notificationMsg{Type: notifyRetry, TxID: txid, Attempt: attempt, MaxAttempts: maxAttempts}
		if failure != nil {
			msg.Error = failure.Error()
		}

		s.notify(msg)
	}
}

func (s *Server) progressNotifier(txid string) watcher.ProgressFunc {
	return func(_ context.Context, stage string) error {
		s.notify(&notificationMsg{Type: notifyProgress, TxID: txid, Stage: stage})
		return nil
	}
}

// handleWatchDeposit registers a deposit watch and returns immediately with
// the session id. The watch itself runs in the background; its state is
// served by handleGetSession and streamed over the websocket hub.
func (s *Server) handleWatchDeposit(c echo.Context) error {
	var req watchRequest

	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	address := strings.TrimSpace(req.Address)

	pkh, err := model.PubKeyHashFromAddress(address, s.settings.ChainCfgParams)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	minAmount := req.MinAmount
	if minAmount == 0 {
		minAmount = s.settings.Bridge.MinDepositAmount
	}

	sess := &WatchSession{
		ID:         uuid.New().String(),
		Address:    address,
		PubKeyHash: pkh,
		MinAmount:  minAmount,
		State:      SessionStatePending,
		CreatedAt:  time.Now().UTC(),
	}

	if req.TimeoutSeconds > 0 {
		sess.Timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}

	if req.WatchTxID != "" {
		hash, err := chainhash.NewHashFromStr(req.WatchTxID)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "watch_txid is not a valid txid")
		}

		sess.WatchOutpoint = wire.NewOutPoint(hash, req.WatchVout)
	}

	s.sessions.Set(sess.ID, sess, ttlcache.DefaultTTL)

	go s.runWatchSession(sess)

	s.logger.Infof("[Bridge][%s] watching %s for deposits of at least %d", sess.ID, address, minAmount)

	return c.JSON(http.StatusAccepted, watchResponse{SessionID: sess.ID})
}

func (s *Server) handleGetSession(c echo.Context) error {
	sess := s.getSession(c.Param("id"))
	if sess == nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}

	return c.JSON(http.StatusOK, sess.Snapshot())
}

// handleFaucet requests testnet funds for an address. The CAP token behind
// the request is acquired, solved and cached by the faucet client.
func (s *Server) handleFaucet(c echo.Context) error {
	if s.faucetClient == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "faucet not configured")
	}

	var req faucetRequest

	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	address := strings.TrimSpace(req.Address)

	if _, err := model.PubKeyHashFromAddress(address, s.settings.ChainCfgParams); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	amount := req.Amount
	if amount == 0 {
		amount = s.settings.Faucet.RequestAmount
	}

	ctx := c.Request().Context()

	token, err := s.faucetClient.EnsureToken(ctx)
	if err != nil {
		prometheusBridgeFaucetGrants.WithLabelValues("token_failed").Inc()

		if errors.Is(err, errors.ErrFaucetRateLimited) {
			return echo.NewHTTPError(http.StatusTooManyRequests, err.Error())
		}

		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}

	result, err := s.faucetClient.RequestFunds(ctx, address, amount, token)
	if err != nil {
		if errors.Is(err, errors.ErrFaucetRateLimited) {
			prometheusBridgeFaucetGrants.WithLabelValues("rate_limited").Inc()
			return echo.NewHTTPError(http.StatusTooManyRequests, err.Error())
		}

		if errors.Is(err, errors.ErrCapInvalid) {
			// The cached token was rejected, drop it so the next request
			// solves a fresh challenge.
			s.faucetClient.InvalidateToken()
		}

		prometheusBridgeFaucetGrants.WithLabelValues("failed").Inc()

		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}

	prometheusBridgeFaucetGrants.WithLabelValues("granted").Inc()

	return c.JSON(http.StatusOK, faucetResponse{TxID: result.TxID, Amount: result.Amount, Address: result.Address})
}
