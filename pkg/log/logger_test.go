package log

import (
	"testing"
	"time"
)

func TestNoopLoggerDiscards(t *testing.T) {
	var l Logger = NoopLogger{}

	// Must not panic with any payload.
	l.Log(Event{})
	l.Log(Event{
		Timestamp:      time.Now(),
		SubscriptionID: "sub-1",
		Category:       CategoryError,
		Error:          &ErrorEventData{Message: "boom"},
	})
}

func TestNoopLoggerZeroValue(t *testing.T) {
	var l NoopLogger
	l.Log(Event{SubscriptionID: "sub-1"})
}
