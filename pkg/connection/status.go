package connection

// Status is the connection status of one subscription.
type Status uint8

const (
	// StatusIdle is a subscription that has not been opened.
	StatusIdle Status = iota

	// StatusDisabled is a subscription whose feed is switched off.
	StatusDisabled

	// StatusConnecting indicates a channel is being established.
	StatusConnecting

	// StatusConnected indicates an open channel.
	StatusConnected

	// StatusDisconnected indicates the channel closed without error.
	StatusDisconnected

	// StatusErrored indicates the channel failed. A retry may be pending.
	StatusErrored

	// StatusClosed indicates the subscription was torn down.
	StatusClosed
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "IDLE"
	case StatusDisabled:
		return "DISABLED"
	case StatusConnecting:
		return "CONNECTING"
	case StatusConnected:
		return "CONNECTED"
	case StatusDisconnected:
		return "DISCONNECTED"
	case StatusErrored:
		return "ERRORED"
	case StatusClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// IsLive reports whether events can currently arrive.
func (s Status) IsLive() bool {
	return s == StatusConnected
}

// IsTerminal reports whether no further transition can happen.
func (s Status) IsTerminal() bool {
	return s == StatusClosed
}

// CanOpen reports whether a channel may be opened from this status.
func (s Status) CanOpen() bool {
	switch s {
	case StatusIdle, StatusDisabled, StatusDisconnected, StatusErrored:
		return true
	default:
		return false
	}
}
