package watcher

import (
	"context"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/dashbridge/creditbridge/chain"
	"github.com/dashbridge/creditbridge/errors"
	"github.com/dashbridge/creditbridge/model"
	"github.com/dashbridge/creditbridge/settings"
	"github.com/dashbridge/creditbridge/ulogger"
)

// LockWaitOptions tunes a single WaitForInstantLock call. The zero value
// defers to settings and watches a filter built from the txid alone.
type LockWaitOptions struct {
	// Timeout overrides watcher_lockWaitTimeout when positive.
	Timeout time.Duration

	// Filter replaces the txid filter loaded into the subscription. The
	// lock match itself still runs against the txid, the filter only
	// widens or narrows what the gateway relays.
	Filter *model.MatchFilter

	// OnReady runs once the subscription is confirmed active and strictly
	// before any relayed message is handled. Broadcasting the watched
	// transaction here guarantees its lock cannot slip past the filter.
	// An error fails the wait and tears the subscription down.
	OnReady func(ctx context.Context) error

	// OnProgress receives stage notifications. An error aborts the wait.
	OnProgress ProgressFunc
}

// WaitForInstantLock blocks until the network publishes an InstantSend lock
// for txid, then returns the decoded lock.
//
// The subscription is confirmed active before OnReady fires and before any
// message is examined, so a transaction broadcast from OnReady cannot have
// its lock arrive ahead of the listener. Messages relayed while OnReady is
// still running buffer inside the stream and are drained afterwards. The
// timeout runs from the moment the subscription is up, not from OnReady
// returning.
//
// Locks for other transactions and payloads that fail to decode are skipped.
// Transient errors surfaced by the stream are logged and tolerated; the
// timeout is the backstop for a stream that goes quiet. A stream that closes
// without producing the lock fails the wait immediately.
//
// Parameters:
//   - ctx: context for cancellation
//   - logger: logger for session state and skipped payloads
//   - tSettings: settings providing the default timeout
//   - client: chain client to subscribe through
//   - txid: transaction the lock must cover
//   - opts: optional per-call overrides, may be nil
//
// Returns:
//   - *model.InstantLock: the lock covering txid
//   - error: timeout, stream end, failed hook or cancellation
func WaitForInstantLock(ctx context.Context, logger ulogger.Logger, tSettings *settings.Settings,
	client chain.ClientI, txid *chainhash.Hash, opts *LockWaitOptions) (*model.InstantLock, error) {
	initPrometheusMetrics()

	if client == nil {
		return nil, errors.NewInvalidArgumentError("lock wait requires a chain client")
	}

	if txid == nil {
		return nil, errors.NewInvalidArgumentError("lock wait requires a txid")
	}

	timeout := tSettings.Watcher.LockWaitTimeout

	var (
		filter     *model.MatchFilter
		onReady    func(ctx context.Context) error
		onProgress ProgressFunc
	)

	if opts != nil {
		if opts.Timeout > 0 {
			timeout = opts.Timeout
		}

		filter = opts.Filter
		onReady = opts.OnReady
		onProgress = opts.OnProgress
	}

	if filter == nil {
		filter = model.NewTxIDFilter(txid)
	}

	sess := newSession(logger)

	sess.transition(ctx, eventSubscribe)

	if onProgress != nil {
		if err := onProgress(ctx, StateSubscribing); err != nil {
			sess.finish(ctx, eventFail)
			prometheusWatcherLockWaits.WithLabelValues(StateErrored).Inc()

			return nil, errors.NewProcessingError("progress sink failed for %s", txid, err)
		}
	}

	stream, err := client.Subscribe(ctx, filter, 0, true)
	if err != nil {
		sess.finish(ctx, eventFail)
		prometheusWatcherLockWaits.WithLabelValues(StateErrored).Inc()

		return nil, errors.NewSubscriptionFailedError("failed to open lock stream for %s", txid, err)
	}

	// The timeout covers everything from here on, including OnReady.
	sess.stream = stream
	sess.timer = time.NewTimer(timeout)

	sess.transition(ctx, eventListen)

	logger.Debugf("[watcher] lock wait for %s listening, timeout %s", txid, timeout)

	if onProgress != nil {
		if err = onProgress(ctx, StateListening); err != nil {
			sess.finish(ctx, eventFail)
			prometheusWatcherLockWaits.WithLabelValues(StateErrored).Inc()

			return nil, errors.NewProcessingError("progress sink failed for %s", txid, err)
		}
	}

	if onReady != nil {
		if err = onReady(ctx); err != nil {
			sess.finish(ctx, eventFail)
			prometheusWatcherLockWaits.WithLabelValues(StateErrored).Inc()

			return nil, errors.NewOnReadyFailedError("on-ready hook failed for %s", txid, err)
		}
	}

	events := stream.Events()
	errs := stream.Errs()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				sess.finish(ctx, eventStreamEnd)
				prometheusWatcherLockWaits.WithLabelValues(StateStreamEnded).Inc()

				return nil, errors.NewStreamEndedError("lock stream for %s ended before a lock arrived", txid)
			}

			if lock := matchLock(logger, ev, txid); lock != nil {
				sess.finish(ctx, eventResolve)
				prometheusWatcherLockWaits.WithLabelValues(StateResolved).Inc()

				return lock, nil
			}

		case streamErr, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}

			logger.Warnf("[watcher] tolerating lock stream error for %s: %v", txid, streamErr)

		case <-sess.timer.C:
			sess.finish(ctx, eventTimeout)
			prometheusWatcherLockWaits.WithLabelValues(StateTimedOut).Inc()

			return nil, errors.NewLockTimeoutError("no lock for %s within %s", txid, timeout)

		case <-ctx.Done():
			sess.finish(ctx, eventFail)
			prometheusWatcherLockWaits.WithLabelValues(StateErrored).Inc()

			return nil, errors.NewContextCanceledError("lock wait for %s interrupted", txid, ctx.Err())
		}
	}
}

// matchLock scans one stream event for a lock covering txid. Payloads that
// do not decode are counted and skipped, locks for other transactions are
// ignored.
func matchLock(logger ulogger.Logger, ev *chain.StreamEvent, txid *chainhash.Hash) *model.InstantLock {
	for _, raw := range ev.RawLocks {
		lock, err := model.ParseInstantLock(raw)
		if err != nil {
			prometheusWatcherPayloadsSkipped.Inc()
			logger.Warnf("[watcher] skipping undecodable lock payload: %v", err)

			continue
		}

		if lock.Locks(txid) {
			return lock
		}
	}

	return nil
}
