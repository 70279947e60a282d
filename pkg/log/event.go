package log

import (
	"time"
)

// MaxPayloadCapture is the maximum number of raw payload bytes kept in an
// error event.
const MaxPayloadCapture = 256

// Event represents one trace event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// SubscriptionID identifies the subscription (UUID).
	SubscriptionID string `cbor:"2,keyasint"`

	// Resource is the feed name.
	Resource string `cbor:"3,keyasint,omitempty"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// Predicate is the subscription filter, if any.
	Predicate string `cbor:"6,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	StateChange *StateChangeEvent `cbor:"10,keyasint,omitempty"`
	Change      *ChangeEventData  `cbor:"11,keyasint,omitempty"`
	Summary     *SummaryEvent     `cbor:"12,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"13,keyasint,omitempty"`
}

// Layer indicates which component captured the event.
type Layer uint8

const (
	// LayerTransport is the push channel.
	LayerTransport Layer = 0
	// LayerSubscription is the subscription state machine.
	LayerSubscription Layer = 1
	// LayerCoalescer is the notification debouncer.
	LayerCoalescer Layer = 2
	// LayerCollection is the application-side collection.
	LayerCollection Layer = 3
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerSubscription:
		return "SUBSCRIPTION"
	case LayerCoalescer:
		return "COALESCER"
	case LayerCollection:
		return "COLLECTION"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryState indicates a status transition.
	CategoryState Category = 0
	// CategoryChange indicates an accepted change event.
	CategoryChange Category = 1
	// CategorySummary indicates a coalescer summary.
	CategorySummary Category = 2
	// CategoryError indicates an error or dropped payload.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryState:
		return "STATE"
	case CategoryChange:
		return "CHANGE"
	case CategorySummary:
		return "SUMMARY"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// StateChangeEvent captures a subscription status transition.
type StateChangeEvent struct {
	// OldState is the previous status.
	OldState string `cbor:"1,keyasint,omitempty"`

	// NewState is the new status.
	NewState string `cbor:"2,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"3,keyasint,omitempty"`

	// Attempt is the consecutive failure count at the time of the change.
	Attempt int `cbor:"4,keyasint,omitempty"`

	// RetryIn is the scheduled reconnect delay, if a retry was scheduled.
	RetryIn *time.Duration `cbor:"5,keyasint,omitempty"`
}

// ChangeEventData captures an accepted change.
type ChangeEventData struct {
	// Kind is the change kind name.
	Kind string `cbor:"1,keyasint"`

	// Key is the canonical key of the affected record, if resolvable.
	Key string `cbor:"2,keyasint,omitempty"`

	// Fields lists the columns carried by the new value.
	Fields []string `cbor:"3,keyasint,omitempty"`

	// Size is the raw payload size in bytes.
	Size int `cbor:"4,keyasint,omitempty"`
}

// SummaryEvent captures one coalescer summary.
type SummaryEvent struct {
	// Count is the number of events folded into the summary.
	Count int `cbor:"1,keyasint"`

	// RepresentativeKind is the kind of the most recent event.
	RepresentativeKind string `cbor:"2,keyasint,omitempty"`

	// Window is the time between the first and last observed event.
	Window time.Duration `cbor:"3,keyasint,omitempty"`
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"3,keyasint,omitempty"`

	// Payload is the offending raw payload (may be truncated).
	Payload []byte `cbor:"4,keyasint,omitempty"`

	// Truncated indicates if Payload was truncated.
	Truncated bool `cbor:"5,keyasint,omitempty"`
}

// CapturePayload copies at most MaxPayloadCapture bytes of raw.
func CapturePayload(raw []byte) (data []byte, truncated bool) {
	if len(raw) > MaxPayloadCapture {
		return append([]byte(nil), raw[:MaxPayloadCapture]...), true
	}
	return append([]byte(nil), raw...), false
}
