package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// ErrMalformedPayload is returned for payloads that cannot be parsed into a
// valid ChangeEvent.
var ErrMalformedPayload = errors.New("malformed payload")

// Codec converts between raw channel payloads and change events.
type Codec interface {
	// Decode parses and validates a raw payload. ReceivedAt is left zero.
	Decode(raw []byte) (ChangeEvent, error)

	// Encode renders an event in the codec's wire format.
	Encode(ev ChangeEvent) ([]byte, error)
}

// Available codecs.
var (
	// JSON is the backend notification format.
	JSON Codec = jsonCodec{}

	// CBOR is the compact binary encoding of ChangeEvent.
	CBOR Codec = cborCodec{}

	// Auto decodes either format and encodes JSON.
	Auto Codec = autoCodec{}
)

// DecodePayload parses a JSON or CBOR payload.
func DecodePayload(raw []byte) (ChangeEvent, error) {
	return Auto.Decode(raw)
}

// wirePayload is the JSON notification shape.
type wirePayload struct {
	Type      string `json:"type,omitempty"`
	EventType string `json:"eventType,omitempty"`
	Table     string `json:"table,omitempty"`
	Schema    string `json:"schema,omitempty"`
	New       Record `json:"new,omitempty"`
	Old       Record `json:"old,omitempty"`
}

type jsonCodec struct{}

func (jsonCodec) Decode(raw []byte) (ChangeEvent, error) {
	var p wirePayload
	if err := decodeJSON(raw, &p); err != nil {
		return ChangeEvent{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	normalizeRecord(p.New)
	normalizeRecord(p.Old)

	op := p.Type
	if op == "" {
		op = p.EventType
	}
	kind, err := ParseKind(op)
	if err != nil {
		return ChangeEvent{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	ev := ChangeEvent{
		Kind:     kind,
		Resource: p.Table,
		NewValue: p.New,
		OldValue: p.Old,
	}
	return normalize(ev)
}

func (jsonCodec) Encode(ev ChangeEvent) ([]byte, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(wirePayload{
		Type:  ev.Kind.Operation(),
		Table: ev.Resource,
		New:   ev.NewValue,
		Old:   ev.OldValue,
	})
}

// payloadEncMode and payloadDecMode are the CBOR modes for change events.
var (
	payloadEncMode cbor.EncMode
	payloadDecMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	payloadEncMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create payload CBOR encoder mode: %v", err))
	}

	// Nested objects decode as map[string]any so records look the same
	// regardless of the codec they arrived through.
	decOpts := cbor.DecOptions{
		DupMapKey:      cbor.DupMapKeyEnforcedAPF,
		IndefLength:    cbor.IndefLengthAllowed,
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}
	payloadDecMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create payload CBOR decoder mode: %v", err))
	}
}

type cborCodec struct{}

func (cborCodec) Decode(raw []byte) (ChangeEvent, error) {
	var ev ChangeEvent
	if err := payloadDecMode.Unmarshal(raw, &ev); err != nil {
		return ChangeEvent{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	ev.ReceivedAt = ev.ReceivedAt.UTC()
	return normalize(ev)
}

func (cborCodec) Encode(ev ChangeEvent) ([]byte, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return payloadEncMode.Marshal(ev)
}

type autoCodec struct{}

func (autoCodec) Decode(raw []byte) (ChangeEvent, error) {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 {
		return ChangeEvent{}, fmt.Errorf("%w: empty payload", ErrMalformedPayload)
	}
	if trimmed[0] == '{' {
		return JSON.Decode(trimmed)
	}
	return CBOR.Decode(raw)
}

func (autoCodec) Encode(ev ChangeEvent) ([]byte, error) {
	return JSON.Encode(ev)
}

// normalize drops the empty placeholder object the backend sends for the
// side that does not apply, then validates.
func normalize(ev ChangeEvent) (ChangeEvent, error) {
	switch ev.Kind {
	case KindCreated:
		if len(ev.OldValue) == 0 {
			ev.OldValue = nil
		}
	case KindRemoved:
		if len(ev.NewValue) == 0 {
			ev.NewValue = nil
		}
	}
	if err := ev.Validate(); err != nil {
		return ChangeEvent{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return ev, nil
}
