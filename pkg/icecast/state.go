package icecast

// State is the lifecycle position of a Client.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateFailed
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateFailed:
		return "failed"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// terminal states never leave.
func (s State) terminal() bool {
	return s == StateFailed || s == StateStopped
}
