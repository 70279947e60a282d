package connection

import "time"

// Indicator labels.
const (
	LabelLive         = "Live"
	LabelConnecting   = "Connecting..."
	LabelDisconnected = "Disconnected"
	LabelDisabled     = "Disabled"
	LabelError        = "Error"
)

// Label returns the connectivity badge text for a status.
func (s Status) Label() string {
	switch s {
	case StatusConnected:
		return LabelLive
	case StatusConnecting:
		return LabelConnecting
	case StatusDisabled:
		return LabelDisabled
	case StatusErrored:
		return LabelError
	default:
		return LabelDisconnected
	}
}

// Indicator renders the badge text with the local time of the last event,
// e.g. "Live · 14:03:22".
func Indicator(s Status, lastEventAt time.Time) string {
	if lastEventAt.IsZero() {
		return s.Label()
	}
	return s.Label() + " · " + lastEventAt.Local().Format(time.TimeOnly)
}
