package video

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"streamify/internal/app/realtime"
	"streamify/internal/pkg/errs"
)

// stateBuffer is the per-subscriber queue of undelivered state changes.
const stateBuffer = 16

// Call is a handle to one provider call.
type Call interface {
	ID() string
	Type() string
	CID() string

	// State returns the current calling state.
	State() CallingState

	// States returns a new stream of calling states, starting with the current one.
	// It is closed after StateLeft has been delivered.
	States() <-chan CallingState

	// Join enters the call, creating it first when create is set. Only an idle call can join.
	Join(ctx context.Context, create bool) error

	// Leave exits the call. Leaving a call that was already left is a no-op.
	Leave(ctx context.Context) error

	// Left is closed once the call reaches StateLeft.
	Left() <-chan struct{}
}

type joinPayload struct {
	CID    string `json:"cid"`
	Create bool   `json:"create"`
}

type leavePayload struct {
	CID string `json:"cid"`
}

type wsCall struct {
	client   *WSClient
	callType string
	id       string

	mu          sync.Mutex
	state       CallingState
	subscribers []chan CallingState
	left        chan struct{}

	logger zerolog.Logger
}

func newCall(c *WSClient, callType, id string) *wsCall {
	return &wsCall{
		client:   c,
		callType: callType,
		id:       id,
		state:    StateIdle,
		left:     make(chan struct{}),
		logger:   c.logger.With().Str("call_cid", callType+":"+id).Logger(),
	}
}

func (call *wsCall) ID() string   { return call.id }
func (call *wsCall) Type() string { return call.callType }
func (call *wsCall) CID() string  { return call.callType + ":" + call.id }

func (call *wsCall) State() CallingState {
	call.mu.Lock()
	defer call.mu.Unlock()
	return call.state
}

func (call *wsCall) Left() <-chan struct{} {
	return call.left
}

func (call *wsCall) States() <-chan CallingState {
	call.mu.Lock()
	defer call.mu.Unlock()

	sub := make(chan CallingState, stateBuffer)
	sub <- call.state
	if call.state == StateLeft {
		close(sub)
		return sub
	}
	call.subscribers = append(call.subscribers, sub)
	return sub
}

func (call *wsCall) Join(ctx context.Context, create bool) error {
	if !call.transition(StateJoining) {
		return errs.Wrap(errs.ErrInvalidParams, fmt.Errorf("cannot join call %s in state %s", call.CID(), call.State()))
	}

	err := call.client.conn.Request(ctx, realtime.TypeCallJoin, joinPayload{CID: call.CID(), Create: create}, nil)
	if err != nil {
		call.transition(StateIdle)
		return err
	}

	call.transition(StateJoined)
	return nil
}

func (call *wsCall) Leave(ctx context.Context) error {
	state := call.State()
	if state == StateLeft {
		return nil
	}

	var err error
	if state != StateIdle && call.client.conn.Alive() {
		err = call.client.conn.Request(ctx, realtime.TypeCallLeave, leavePayload{CID: call.CID()}, nil)
	}

	call.transition(StateLeft)
	return err
}

// deliver queues state on sub without blocking. StateLeft is never dropped: the
// oldest queued states make room for it.
func deliver(sub chan CallingState, state CallingState) bool {
	for {
		select {
		case sub <- state:
			return true
		default:
		}
		if state != StateLeft {
			return false
		}
		select {
		case <-sub:
		default:
		}
	}
}

// transition moves the call to next when legal and publishes it to every subscriber.
func (call *wsCall) transition(next CallingState) bool {
	call.mu.Lock()
	defer call.mu.Unlock()

	if !CanTransition(call.state, next) {
		if call.state != next {
			call.logger.Debug().
				Str("from", string(call.state)).
				Str("to", string(next)).
				Msg("Ignoring illegal calling state change.")
		}
		return false
	}

	call.logger.Debug().Str("from", string(call.state)).Str("to", string(next)).Msg("Calling state changed.")
	call.state = next

	for _, sub := range call.subscribers {
		if !deliver(sub, next) {
			call.logger.Warn().Str("state", string(next)).Msg("State subscriber queue full, dropping update.")
		}
	}

	if next == StateLeft {
		for _, sub := range call.subscribers {
			close(sub)
		}
		call.subscribers = nil
		close(call.left)
	}

	return true
}
