package link

import (
	"context"

	"github.com/looplab/fsm"

	fsmutil "github.com/autopeer-io/agvfleet/internal/pkg/util/fsm"
)

const (
	StateDisconnected = "disconnected"
	StateConnecting   = "connecting"
	StateConnected    = "connected"
)

const (
	// EventDial (client) starts a connection attempt.
	EventDial = "dial"
	// EventEstablished (client) completes a connection attempt.
	EventEstablished = "established"
	// EventFail (client) abandons a connection attempt.
	EventFail = "fail"
	// EventAccept (server) adopts a socket accepted by the fleet listener.
	EventAccept = "accept"
	// EventBreak tears down a connected link.
	EventBreak = "break"
)

type stateMachine struct {
	*fsm.FSM
}

// newStateMachine builds the link state machine. onTransition runs after every state change and
// must not fire further events.
func newStateMachine(onTransition func(from, to string)) *stateMachine {
	m := &stateMachine{}

	events := fsm.Events{
		{Name: EventDial, Src: []string{StateDisconnected}, Dst: StateConnecting},
		{Name: EventEstablished, Src: []string{StateConnecting}, Dst: StateConnected},
		{Name: EventFail, Src: []string{StateConnecting}, Dst: StateDisconnected},
		{Name: EventAccept, Src: []string{StateDisconnected, StateConnecting}, Dst: StateConnected},
		{Name: EventBreak, Src: []string{StateConnected, StateConnecting}, Dst: StateDisconnected},
	}

	callbacks := fsm.Callbacks{
		// Guards
		"before_" + EventDial:   fsmutil.WrapEvent(m.guardAlive),
		"before_" + EventAccept: fsmutil.WrapEvent(m.guardAlive),

		"enter_state": func(_ context.Context, e *fsm.Event) {
			onTransition(e.Src, e.Dst)
		},
	}

	m.FSM = fsm.NewFSM(StateDisconnected, events, callbacks)
	return m
}

// guardAlive refuses to start a connection once the worker is shutting down.
func (m *stateMachine) guardAlive(ctx context.Context, e *fsm.Event) error {
	if err := ctx.Err(); err != nil {
		e.Cancel(err)
	}
	return nil
}

// fire triggers event and treats "already there" as success.
func (m *stateMachine) fire(ctx context.Context, event string) error {
	return fsmutil.IgnoreNoTransition(m.Event(ctx, event))
}
