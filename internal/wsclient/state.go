package wsclient

import "fmt"

type Kind int

const (
	Disconnected Kind = iota
	Connecting
	Connected
	Reconnecting
	Failed
)

func (k Kind) String() string {
	switch k {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Reconnecting:
		return "Reconnecting"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// State is the connection state. Attempt and MaxAttempts are set only for
// Reconnecting, Reason only for Failed.
type State struct {
	Kind        Kind
	Attempt     int
	MaxAttempts int
	Reason      string
}

func (s State) String() string {
	switch s.Kind {
	case Reconnecting:
		return fmt.Sprintf("Reconnecting (%d/%d)", s.Attempt, s.MaxAttempts)
	case Failed:
		return "Failed: " + s.Reason
	default:
		return s.Kind.String()
	}
}

func (s State) IsConnected() bool {
	return s.Kind == Connected
}

func stateOf(k Kind) State { return State{Kind: k} }

func reconnecting(attempt, maxAttempts int) State {
	return State{Kind: Reconnecting, Attempt: attempt, MaxAttempts: maxAttempts}
}

func failed(reason string) State {
	return State{Kind: Failed, Reason: reason}
}
