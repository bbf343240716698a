package watcher

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/wire"

	"github.com/dashbridge/creditbridge/chain"
	"github.com/dashbridge/creditbridge/errors"
	"github.com/dashbridge/creditbridge/model"
	"github.com/dashbridge/creditbridge/settings"
	"github.com/dashbridge/creditbridge/ulogger"
	"github.com/dashbridge/creditbridge/util/retry"
)

// ClientFactory builds a fresh chain client for one establishment attempt.
// Deposit waits run much longer than lock waits, so every attempt gets its
// own connection instead of sharing one long-lived client.
type ClientFactory func(ctx context.Context) (chain.ClientI, error)

// DepositParams describes what WaitForDeposit watches for. PubKeyHash is
// required, everything else defaults from settings.
type DepositParams struct {
	// PubKeyHash is the hash160 of the receiving key, 20 bytes.
	PubKeyHash []byte

	// MinAmount is the smallest acceptable payment in duffs. Zero accepts
	// any amount.
	MinAmount uint64

	// Timeout overrides watcher_depositWaitTimeout when positive.
	Timeout time.Duration

	// Lookback overrides chain_depositLookback when positive. The
	// subscription starts this many blocks below the current tip so a
	// deposit mined moments before the wait began is still seen.
	Lookback uint32

	// WatchOutpoint adds a specific outpoint to the filter, for waits that
	// also need to observe a known funding output being spent.
	WatchOutpoint *wire.OutPoint

	// Filter replaces the filter built from PubKeyHash and WatchOutpoint.
	// Matching still runs against PubKeyHash.
	Filter *model.MatchFilter

	// OnProgress receives stage notifications. An error aborts the wait.
	OnProgress ProgressFunc
}

// DepositResult reports the outcome of a deposit wait. TimedOut covers every
// non-match outcome, including a wait that never got a subscription up;
// SetupErr then carries the last establishment failure for diagnostics.
type DepositResult struct {
	// UTXO is the first matching payment output, nil when the wait timed
	// out.
	UTXO *model.UTXO

	// TotalAmount sums every output of the resolving transaction paying
	// the watched key. Zero when the wait timed out.
	TotalAmount uint64

	// TimedOut reports that no matching deposit arrived in time.
	TimedOut bool

	// SetupErr records why the subscription could not be established when
	// TimedOut was caused by connection failures rather than silence.
	SetupErr error
}

// depositConn pairs the per-wait client with its stream so the established
// unit travels through the retry loop together.
type depositConn struct {
	client chain.ClientI
	stream chain.TxStream
}

// WaitForDeposit blocks until a transaction paying params.PubKeyHash at
// least params.MinAmount is relayed, then reports the matching output and
// the total amount that transaction pays the key.
//
// The wait is deliberately forgiving: timeouts, stream ends and connection
// failures all resolve to a TimedOut result instead of an error, because the
// caller's next move (tell the user nothing arrived) is the same in every
// case. Establishment is retried on a fresh client per attempt with a short
// per-attempt budget; a wait that burns every attempt resolves TimedOut with
// SetupErr recording the last failure. The only error returns are invalid
// arguments, a failed OnProgress hook and cancellation of ctx.
//
// The subscription starts a configured number of blocks below the current
// tip, so a deposit mined just before the wait began still resolves it.
//
// Parameters:
//   - ctx: context for cancellation
//   - logger: logger for establishment attempts and skipped payloads
//   - tSettings: settings providing timeout, lookback and retry budgets
//   - clientFactory: builds a fresh chain client per establishment attempt
//   - params: what to watch for
//
// Returns:
//   - *DepositResult: matching output or a TimedOut report, never nil on a
//     nil error
//   - error: invalid arguments, failed progress hook or cancellation
func WaitForDeposit(ctx context.Context, logger ulogger.Logger, tSettings *settings.Settings,
	clientFactory ClientFactory, params *DepositParams) (*DepositResult, error) {
	initPrometheusMetrics()

	if clientFactory == nil {
		return nil, errors.NewInvalidArgumentError("deposit wait requires a client factory")
	}

	if params == nil {
		return nil, errors.NewInvalidArgumentError("deposit wait requires params")
	}

	if len(params.PubKeyHash) != model.PubKeyHashSize {
		return nil, errors.NewInvalidArgumentError("deposit wait requires a %d byte pubkey hash, got %d bytes",
			model.PubKeyHashSize, len(params.PubKeyHash))
	}

	timeout := tSettings.Watcher.DepositWaitTimeout
	if params.Timeout > 0 {
		timeout = params.Timeout
	}

	lookback := tSettings.Chain.DepositLookback
	if params.Lookback > 0 {
		lookback = params.Lookback
	}

	filter := params.Filter

	if filter == nil {
		var err error

		filter, err = model.NewDepositFilter(params.PubKeyHash, params.WatchOutpoint)
		if err != nil {
			return nil, errors.NewProcessingError("failed to build deposit filter", err)
		}
	}

	sess := newSession(logger)

	sess.transition(ctx, eventSubscribe)

	if params.OnProgress != nil {
		if err := params.OnProgress(ctx, StateSubscribing); err != nil {
			sess.finish(ctx, eventFail)
			prometheusWatcherDepositWaits.WithLabelValues(StateErrored).Inc()

			return nil, errors.NewProcessingError("progress sink failed for deposit wait", err)
		}
	}

	conn, err := retry.Retry(ctx, logger, func() (*depositConn, error) {
		return establishDepositStream(ctx, logger, tSettings, clientFactory, filter, lookback)
	}, retry.Bind(retry.PlatformPolicy(),
		retry.WithRetryCount(tSettings.Chain.DepositClientRetries),
		retry.WithMessage(fmt.Sprintf("[watcher] establishing deposit stream for %x", params.PubKeyHash)),
	)...)
	if err != nil {
		sess.finish(ctx, eventFail)
		prometheusWatcherDepositWaits.WithLabelValues(StateErrored).Inc()

		if ctx.Err() != nil {
			return nil, errors.NewContextCanceledError("deposit wait interrupted", ctx.Err())
		}

		logger.Warnf("[watcher] deposit stream could not be established, resolving timed out: %v", err)

		return &DepositResult{TimedOut: true, SetupErr: err}, nil
	}

	defer disconnectAsync(logger, conn.client)

	sess.stream = conn.stream
	sess.timer = time.NewTimer(timeout)

	sess.transition(ctx, eventListen)

	logger.Debugf("[watcher] deposit wait for %x listening, timeout %s", params.PubKeyHash, timeout)

	if params.OnProgress != nil {
		if err = params.OnProgress(ctx, StateListening); err != nil {
			sess.finish(ctx, eventFail)
			prometheusWatcherDepositWaits.WithLabelValues(StateErrored).Inc()

			return nil, errors.NewProcessingError("progress sink failed for deposit wait", err)
		}
	}

	events := conn.stream.Events()
	errs := conn.stream.Errs()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				sess.finish(ctx, eventStreamEnd)
				prometheusWatcherDepositWaits.WithLabelValues(StateStreamEnded).Inc()

				return &DepositResult{TimedOut: true}, nil
			}

			if utxo, total := matchDeposit(logger, ev, params.PubKeyHash, params.MinAmount); utxo != nil {
				sess.finish(ctx, eventResolve)
				prometheusWatcherDepositWaits.WithLabelValues(StateResolved).Inc()

				return &DepositResult{UTXO: utxo, TotalAmount: total}, nil
			}

		case streamErr, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}

			logger.Warnf("[watcher] tolerating deposit stream error: %v", streamErr)

		case <-sess.timer.C:
			sess.finish(ctx, eventTimeout)
			prometheusWatcherDepositWaits.WithLabelValues(StateTimedOut).Inc()

			return &DepositResult{TimedOut: true}, nil

		case <-ctx.Done():
			sess.finish(ctx, eventFail)
			prometheusWatcherDepositWaits.WithLabelValues(StateErrored).Inc()

			return nil, errors.NewContextCanceledError("deposit wait interrupted", ctx.Err())
		}
	}
}

// establishDepositStream runs one establishment attempt: fresh client,
// current height, subscribe from the lookback floor. Each step is scoped by
// the per-attempt call budget, and a client that fails part way is torn down
// before the error is handed back to the retry loop.
func establishDepositStream(ctx context.Context, logger ulogger.Logger, tSettings *settings.Settings,
	clientFactory ClientFactory, filter *model.MatchFilter, lookback uint32) (*depositConn, error) {
	callCtx, cancel := context.WithTimeout(ctx, tSettings.Chain.DepositCallTimeout)
	defer cancel()

	client, err := clientFactory(callCtx)
	if err != nil {
		return nil, attemptError("client dial", callCtx, ctx, err)
	}

	best, err := client.GetBestHeight(callCtx)
	if err != nil {
		disconnectAsync(logger, client)
		return nil, attemptError("height lookup", callCtx, ctx, err)
	}

	fromHeight := uint32(1)
	if best > lookback {
		fromHeight = best - lookback
	}

	stream, err := client.Subscribe(callCtx, filter, fromHeight, true)
	if err != nil {
		disconnectAsync(logger, client)
		return nil, attemptError("subscribe", callCtx, ctx, err)
	}

	return &depositConn{client: client, stream: stream}, nil
}

// attemptError stops a lapsed per-attempt budget from reading as caller
// cancellation. The retry loop is right to treat context errors as fatal
// when ctx itself died, but an attempt that merely ran out of its own budget
// must come back as a transient timeout so the next attempt runs.
func attemptError(op string, callCtx, ctx context.Context, err error) error {
	if callCtx.Err() != nil && ctx.Err() == nil {
		return errors.NewNetworkTimeoutError("%s exceeded the per-attempt budget: %s", op, err.Error())
	}

	return err
}

// matchDeposit scans one stream event for a transaction paying pubKeyHash at
// least minAmount. Payloads that do not decode are counted and skipped.
func matchDeposit(logger ulogger.Logger, ev *chain.StreamEvent, pubKeyHash []byte, minAmount uint64) (*model.UTXO, uint64) {
	for _, raw := range ev.RawTxs {
		tx, err := model.ParseTransaction(raw)
		if err != nil {
			prometheusWatcherPayloadsSkipped.Inc()
			logger.Warnf("[watcher] skipping undecodable transaction payload: %v", err)

			continue
		}

		if utxo, total := tx.FindPubKeyHashPayment(pubKeyHash, minAmount); utxo != nil {
			return utxo, total
		}
	}

	return nil, 0
}

// disconnectAsync closes the client off the caller's path. Waits resolve on
// the caller's clock, the connection teardown never holds them up.
func disconnectAsync(logger ulogger.Logger, client chain.ClientI) {
	if client == nil {
		return
	}

	go func() {
		if err := client.Disconnect(); err != nil && logger != nil {
			logger.Debugf("[watcher] deposit client disconnect: %v", err)
		}
	}()
}
