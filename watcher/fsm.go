package watcher

import (
	"github.com/looplab/fsm"
)

// Stages a watch session moves through. The terminal states double as the
// outcome label on the session metrics.
const (
	StateIdle        = "idle"
	StateSubscribing = "subscribing"
	StateListening   = "listening"
	StateResolved    = "resolved"
	StateTimedOut    = "timed_out"
	StateStreamEnded = "stream_ended"
	StateErrored     = "errored"
)

// Events that drive a session between stages.
const (
	eventSubscribe = "subscribe"
	eventListen    = "listen"
	eventResolve   = "resolve"
	eventTimeout   = "timeout"
	eventStreamEnd = "stream_end"
	eventFail      = "fail"
)

// newSessionFSM returns the state machine backing a watch session.
// States:
// - idle
// - subscribing
// - listening
// - resolved
// - timed_out
// - stream_ended
// - errored
// Events:
// - subscribe: idle -> subscribing
// - listen: subscribing -> listening
// - resolve: listening -> resolved
// - timeout: listening -> timed_out
// - stream_end: listening -> stream_ended
// - fail: subscribing or listening -> errored
func newSessionFSM(opts ...func(*fsm.FSM)) *fsm.FSM {
	machine := fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: eventSubscribe, Src: []string{StateIdle}, Dst: StateSubscribing},
			{Name: eventListen, Src: []string{StateSubscribing}, Dst: StateListening},
			{Name: eventResolve, Src: []string{StateListening}, Dst: StateResolved},
			{Name: eventTimeout, Src: []string{StateListening}, Dst: StateTimedOut},
			{Name: eventStreamEnd, Src: []string{StateListening}, Dst: StateStreamEnded},
			{Name: eventFail, Src: []string{StateSubscribing, StateListening}, Dst: StateErrored},
		},
		fsm.Callbacks{},
	)

	for _, opt := range opts {
		opt(machine)
	}

	return machine
}
