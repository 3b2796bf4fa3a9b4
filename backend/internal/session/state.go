package session

import "fmt"

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	}
	return "unknown"
}

// TransitionTo validates a lifecycle transition. Disconnected is terminal for
// a session once reached through Disconnect; the only way out is the initial
// Connect of a fresh attempt.
func (s State) TransitionTo(next State) (State, error) {
	switch s {
	case StateDisconnected:
		if next == StateConnecting {
			return next, nil
		}
	case StateConnecting:
		switch next {
		case StateConnected, StateDisconnected:
			return next, nil
		}
	case StateConnected:
		switch next {
		case StateReconnecting, StateDisconnected:
			return next, nil
		}
	case StateReconnecting:
		switch next {
		case StateConnected, StateDisconnected:
			return next, nil
		}
	}
	return s, fmt.Errorf("invalid session state transition from %v to %v", s, next)
}
