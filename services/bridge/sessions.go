package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/btcsuite/btcd/wire"

	"github.com/dashbridge/creditbridge/model"
	"github.com/dashbridge/creditbridge/util/kafka"
	"github.com/dashbridge/creditbridge/util/tracing"
	"github.com/dashbridge/creditbridge/watcher"
)

const (
	SessionStatePending  = "pending"
	SessionStateWatching = "watching"
	SessionStateResolved = "resolved"
	SessionStateTimedOut = "timed_out"
	SessionStateFailed   = "failed"
)

// WatchSession tracks one deposit watch from creation to resolution. All
// mutation goes through the methods below; Snapshot returns a copy safe to
// serve while the watch is still running.
type WatchSession struct {
	mu sync.RWMutex

	ID            string
	Address       string
	PubKeyHash    []byte
	MinAmount     uint64
	Timeout       time.Duration
	WatchOutpoint *wire.OutPoint

	State       string
	UTXO        *model.UTXO
	TotalAmount uint64
	Error       string
	CreatedAt   time.Time
	ResolvedAt  time.Time
}

// SessionView is the JSON shape served for a session.
type SessionView struct {
	SessionID   string      `json:"session_id"`
	Address     string      `json:"address"`
	MinAmount   uint64      `json:"min_amount"`
	State       string      `json:"state"`
	UTXO        *model.UTXO `json:"utxo,omitempty"`
	TotalAmount uint64      `json:"total_amount"`
	Error       string      `json:"error,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	ResolvedAt  *time.Time  `json:"resolved_at,omitempty"`
}

func (w *WatchSession) Snapshot() *SessionView {
	w.mu.RLock()
	defer w.mu.RUnlock()

	view := &SessionView{
		SessionID:   w.ID,
		Address:     w.Address,
		MinAmount:   w.MinAmount,
		State:       w.State,
		UTXO:        w.UTXO,
		TotalAmount: w.TotalAmount,
		Error:       w.Error,
		CreatedAt:   w.CreatedAt,
	}

	if !w.ResolvedAt.IsZero() {
		resolvedAt := w.ResolvedAt
		view.ResolvedAt = &resolvedAt
	}

	return view
}

func (w *WatchSession) setState(state string) {
	w.mu.Lock()
	w.State = state
	w.mu.Unlock()
}

func (w *WatchSession) finish(state string, result *watcher.DepositResult, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.State = state
	w.ResolvedAt = time.Now().UTC()

	if result != nil {
		w.UTXO = result.UTXO
		w.TotalAmount = result.TotalAmount
	}

	if err != nil {
		w.Error = err.Error()
	}
}

// runWatchSession drives one deposit wait to its terminal state. It runs on
// the server's base context, not the request's, because the watch keeps going
// after the creating request has returned.
func (s *Server) runWatchSession(sess *WatchSession) {
	ctx, _, endSpan := s.tracer.Start(s.baseCtx, "WatchDeposit",
		tracing.WithTag("session", sess.ID),
		tracing.WithTag("address", sess.Address),
	)

	sess.setState(SessionStateWatching)
	s.notify(&notificationMsg{Type: notifySession, SessionID: sess.ID, Stage: SessionStateWatching})

	params := &watcher.DepositParams{
		PubKeyHash:    sess.PubKeyHash,
		MinAmount:     sess.MinAmount,
		Timeout:       sess.Timeout,
		WatchOutpoint: sess.WatchOutpoint,
		OnProgress: func(_ context.Context, stage string) error {
			s.notify(&notificationMsg{Type: notifyProgress, SessionID: sess.ID, Stage: stage})
			return nil
		},
	}

	result, err := watcher.WaitForDeposit(ctx, s.logger, s.settings, s.clientFactory, params)

	endSpan(err)

	switch {
	case err != nil:
		s.logger.Errorf("[Bridge][%s] deposit watch failed: %v", sess.ID, err)
		sess.finish(SessionStateFailed, nil, err)
		prometheusBridgeWatchSessions.WithLabelValues("failed").Inc()
		s.notify(&notificationMsg{Type: notifySession, SessionID: sess.ID, Stage: SessionStateFailed, Error: err.Error()})

	case result.TimedOut:
		sess.finish(SessionStateTimedOut, result, result.SetupErr)
		prometheusBridgeWatchSessions.WithLabelValues("timed_out").Inc()

		msg := &notificationMsg{Type: notifySession, SessionID: sess.ID, Stage: SessionStateTimedOut}
		if result.SetupErr != nil {
			msg.Error = result.SetupErr.Error()
		}

		s.notify(msg)

	default:
		sess.finish(SessionStateResolved, result, nil)
		prometheusBridgeWatchSessions.WithLabelValues("resolved").Inc()
		s.logger.Infof("[Bridge][%s] deposit resolved: %s paying %d", sess.ID, result.UTXO.Outpoint(), result.TotalAmount)

		s.creditDeposit(sess, result)
	}
}

// creditDeposit publishes a credit event for a resolved deposit exactly once.
// The credited map is keyed by txid; a deposit observed again, whether by a
// duplicate session on the same address or a replayed stream event, is
// skipped.
func (s *Server) creditDeposit(sess *WatchSession, result *watcher.DepositResult) {
	utxo := result.UTXO

	s.creditMu.Lock()
	defer s.creditMu.Unlock()

	if s.credited.Exists(utxo.TxID) {
		owner, _ := s.credited.Get(utxo.TxID)
		s.logger.Warnf("[Bridge][%s] deposit %s already credited to session %s, skipping", sess.ID, utxo.Outpoint(), owner)
		prometheusBridgeCredits.WithLabelValues("duplicate").Inc()

		return
	}

	var height uint32

	if s.chainClient != nil {
		if best, err := s.chainClient.GetBestHeight(s.baseCtx); err == nil {
			height = best
		}
	}

	event := model.NewCreditEvent(sess.ID, utxo, sess.Address, height, time.Now().UTC())

	value, err := event.Bytes()
	if err != nil {
		s.logger.Errorf("[Bridge][%s] failed to serialise credit event: %v", sess.ID, err)
		prometheusBridgeCredits.WithLabelValues("failed").Inc()

		return
	}

	if s.producer != nil {
		s.producer.Publish(&kafka.Message{Key: []byte(sess.ID), Value: value})
	}

	s.credited.Set(utxo.TxID, sess.ID)
	prometheusBridgeCredits.WithLabelValues("published").Inc()

	s.notify(&notificationMsg{
		Type:      notifyCredit,
		SessionID: sess.ID,
		TxID:      utxo.TxID.String(),
		Vout:      utxo.Vout,
		Satoshis:  utxo.Satoshis,
	})
}

func (s *Server) getSession(id string) *WatchSession {
	item := s.sessions.Get(id)
	if item == nil {
		return nil
	}

	return item.Value()
}
