// Package watcher implements the bridge's blocking waits against the chain
// gateway: WaitForInstantLock holds until the network proves fast finality
// for a known transaction, and WaitForDeposit holds until an incoming payment
// to a watched address shows up. Both run on a shared session core that owns
// the stream, the timeout timer, an exactly-once resolution flag and
// idempotent teardown, so every terminal path (match, timeout, stream end,
// failure, cancellation) settles the session exactly once.
package watcher

import (
	"context"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"go.uber.org/atomic"

	"github.com/dashbridge/creditbridge/chain"
	"github.com/dashbridge/creditbridge/ulogger"
)

// ProgressFunc receives coarse stage notifications as a session advances,
// typically StateSubscribing followed by StateListening. Returning an error
// aborts the enclosing wait.
type ProgressFunc func(ctx context.Context, stage string) error

// session holds the lifecycle primitives a single watch owns. The stream and
// timer are attached once the subscription is confirmed. Resolution is gated
// by a compare-and-swap so that exactly one terminal path wins even when the
// timer, the stream and the caller's context race each other.
type session struct {
	logger ulogger.Logger
	state  *fsm.FSM

	stream chain.TxStream
	timer  *time.Timer

	resolved    *atomic.Bool
	cleanupOnce sync.Once
}

func newSession(logger ulogger.Logger) *session {
	return &session{
		logger:   logger,
		state:    newSessionFSM(),
		resolved: atomic.NewBool(false),
	}
}

// transition fires a non-terminal event. A rejected transition is logged and
// otherwise ignored, the resolution flag is what callers rely on.
func (s *session) transition(ctx context.Context, event string) {
	if err := s.state.Event(ctx, event); err != nil {
		s.logger.Warnf("[watcher] session in state %s rejected event %s: %v", s.state.Current(), event, err)
	}
}

// finish runs the terminal transition and teardown for the first caller and
// reports whether that caller won the resolution. Every later call is a
// no-op returning false.
func (s *session) finish(ctx context.Context, event string) bool {
	if !s.resolved.CompareAndSwap(false, true) {
		return false
	}

	s.transition(ctx, event)
	s.cleanup()

	return true
}

// cleanup stops the timer and cancels the stream, tolerating either being
// unset when the session never got that far.
func (s *session) cleanup() {
	s.cleanupOnce.Do(func() {
		if s.timer != nil {
			s.timer.Stop()
		}

		if s.stream != nil {
			s.stream.Cancel()
		}
	})
}
