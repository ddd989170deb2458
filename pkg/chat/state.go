package chat

// ConnectionState is the lifecycle state of one live channel.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// StateChange is reported to status observers on every transition.
// Err is set when the transition was caused by a failure.
type StateChange struct {
	ConversationID string
	From           ConnectionState
	To             ConnectionState
	Err            error
}
