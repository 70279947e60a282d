package log

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Trace file identification.
const (
	TraceFormat  = "livesync-trace"
	TraceVersion = 1
)

var (
	// ErrNotTrace is returned when a file header names another format.
	ErrNotTrace = errors.New("not a livesync trace")

	// ErrUnsupportedTraceVersion is returned for headers newer than
	// TraceVersion.
	ErrUnsupportedTraceVersion = errors.New("unsupported trace version")
)

// Header is the first record FileLogger writes to a new trace file. Its
// keys do not overlap with Event keys, so readers tell the two apart by
// the presence of Format. Files without a header are read as plain event
// streams.
type Header struct {
	Format  string    `cbor:"100,keyasint"`
	Version uint8     `cbor:"101,keyasint"`
	Created time.Time `cbor:"102,keyasint"`
}

// NewHeader returns a header for a trace created at t.
func NewHeader(t time.Time) Header {
	return Header{Format: TraceFormat, Version: TraceVersion, Created: t.UTC()}
}

// Validate checks that the header belongs to a readable trace.
func (h Header) Validate() error {
	if h.Format != TraceFormat {
		return fmt.Errorf("%w: format %q", ErrNotTrace, h.Format)
	}
	if h.Version == 0 || h.Version > TraceVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedTraceVersion, h.Version)
	}
	return nil
}

// traceItem decodes either a Header or an Event in one pass.
type traceItem struct {
	Event
	Format  string    `cbor:"100,keyasint,omitempty"`
	Version uint8     `cbor:"101,keyasint,omitempty"`
	Created time.Time `cbor:"102,keyasint"`
}

func (it *traceItem) header() (Header, bool) {
	if it.Format == "" {
		return Header{}, false
	}
	return Header{Format: it.Format, Version: it.Version, Created: it.Created}, true
}

// traceEncMode is the CBOR encoder mode for trace events.
// Configured for nanosecond-precision timestamps and deterministic encoding.
var traceEncMode cbor.EncMode

// traceDecMode is the CBOR decoder mode for trace events.
var traceDecMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	traceEncMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create trace CBOR encoder mode: %v", err))
	}

	// Unknown keys are ignored so newer trace files stay readable.
	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
	traceDecMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create trace CBOR decoder mode: %v", err))
	}
}

// EncodeEvent encodes an Event to CBOR bytes using integer keys for compactness.
func EncodeEvent(event Event) ([]byte, error) {
	return traceEncMode.Marshal(event)
}

// DecodeEvent decodes CBOR bytes into an Event.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	if err := traceDecMode.Unmarshal(data, &event); err != nil {
		return Event{}, err
	}
	return event, nil
}

// NewEncoder creates a CBOR encoder for trace events that writes to w.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return traceEncMode.NewEncoder(w)
}

// NewDecoder creates a CBOR decoder for trace events that reads from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return traceDecMode.NewDecoder(r)
}
