package video

// CallingState is the local participant's position in a call.
type CallingState string

const (
	StateIdle         CallingState = "idle"
	StateJoining      CallingState = "joining"
	StateJoined       CallingState = "joined"
	StateReconnecting CallingState = "reconnecting"

	// StateLeft is terminal. A call that has been left cannot be joined again.
	StateLeft CallingState = "left"
)

// transitions lists the legal successors of each state.
var transitions = map[CallingState][]CallingState{
	StateIdle:         {StateJoining, StateLeft},
	StateJoining:      {StateJoined, StateIdle, StateLeft},
	StateJoined:       {StateReconnecting, StateLeft},
	StateReconnecting: {StateJoined, StateLeft},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to CallingState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
