package feed

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Event validation errors.
var (
	ErrInvalidKind        = errors.New("invalid change kind")
	ErrMissingNewValue    = errors.New("change event missing new value")
	ErrMissingOldValue    = errors.New("change event missing old value")
	ErrUnexpectedNewValue = errors.New("change event has unexpected new value")
	ErrUnexpectedOldValue = errors.New("change event has unexpected old value")
	ErrInvalidEventMask   = errors.New("invalid event mask")
)

// Kind identifies the type of row-level change.
type Kind uint8

const (
	// KindCreated is a newly inserted record.
	KindCreated Kind = iota + 1

	// KindChanged is an update to an existing record.
	KindChanged

	// KindRemoved is a deleted record.
	KindRemoved
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindCreated:
		return "CREATED"
	case KindChanged:
		return "CHANGED"
	case KindRemoved:
		return "REMOVED"
	default:
		return "UNKNOWN"
	}
}

// Operation returns the database operation name for the kind.
func (k Kind) Operation() string {
	switch k {
	case KindCreated:
		return "INSERT"
	case KindChanged:
		return "UPDATE"
	case KindRemoved:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether k is one of the defined kinds.
func (k Kind) Valid() bool {
	return k >= KindCreated && k <= KindRemoved
}

// ParseKind parses a kind from either its database operation name
// (INSERT, UPDATE, DELETE) or its canonical name. Case is ignored.
func ParseKind(s string) (Kind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "INSERT", "CREATED":
		return KindCreated, nil
	case "UPDATE", "CHANGED":
		return KindChanged, nil
	case "DELETE", "REMOVED":
		return KindRemoved, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
}

// EventMask is a set of kinds a subscription is interested in.
type EventMask uint8

const (
	// MaskCreated selects CREATED events.
	MaskCreated EventMask = 1 << iota

	// MaskChanged selects CHANGED events.
	MaskChanged

	// MaskRemoved selects REMOVED events.
	MaskRemoved

	// MaskAll selects every kind.
	MaskAll = MaskCreated | MaskChanged | MaskRemoved
)

// MaskOf returns the mask containing the given kinds.
func MaskOf(kinds ...Kind) EventMask {
	var m EventMask
	for _, k := range kinds {
		if k.Valid() {
			m |= 1 << (k - 1)
		}
	}
	return m
}

// Has reports whether the mask selects kind k.
func (m EventMask) Has(k Kind) bool {
	if !k.Valid() {
		return false
	}
	return m&(1<<(k-1)) != 0
}

// String renders the mask as "*" or a "|" separated operation list.
func (m EventMask) String() string {
	if m&MaskAll == MaskAll {
		return "*"
	}
	var parts []string
	for k := KindCreated; k <= KindRemoved; k++ {
		if m.Has(k) {
			parts = append(parts, k.Operation())
		}
	}
	if len(parts) == 0 {
		return "NONE"
	}
	return strings.Join(parts, "|")
}

// ParseEventMask builds a mask from event names. An empty list or a "*"
// entry selects all kinds.
func ParseEventMask(names []string) (EventMask, error) {
	if len(names) == 0 {
		return MaskAll, nil
	}
	var m EventMask
	for _, name := range names {
		if strings.TrimSpace(name) == "*" {
			return MaskAll, nil
		}
		k, err := ParseKind(name)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidEventMask, err)
		}
		m |= MaskOf(k)
	}
	return m, nil
}

// Record is a full or partial row as carried by the feed.
type Record map[string]any

// Lookup returns the value of a field.
func (r Record) Lookup(field string) (any, bool) {
	if r == nil {
		return nil, false
	}
	v, ok := r[field]
	return v, ok
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ChangeEvent is one parsed notification from a feed.
// CBOR encoding uses integer keys for compactness.
type ChangeEvent struct {
	// Kind of change.
	Kind Kind `cbor:"1,keyasint" json:"kind"`

	// Resource is the name of the feed the event belongs to.
	Resource string `cbor:"2,keyasint" json:"resource"`

	// NewValue is the record after the change (absent for REMOVED).
	NewValue Record `cbor:"3,keyasint,omitempty" json:"new,omitempty"`

	// OldValue identifies the record before the change (absent for CREATED).
	OldValue Record `cbor:"4,keyasint,omitempty" json:"old,omitempty"`

	// ReceivedAt is when the subscription received the event.
	ReceivedAt time.Time `cbor:"5,keyasint,omitempty" json:"received_at,omitempty"`
}

// Validate checks that the populated values match the kind.
func (e ChangeEvent) Validate() error {
	switch e.Kind {
	case KindCreated:
		if len(e.NewValue) == 0 {
			return ErrMissingNewValue
		}
		if len(e.OldValue) != 0 {
			return ErrUnexpectedOldValue
		}
	case KindChanged:
		if len(e.NewValue) == 0 {
			return ErrMissingNewValue
		}
		if len(e.OldValue) == 0 {
			return ErrMissingOldValue
		}
	case KindRemoved:
		if len(e.OldValue) == 0 {
			return ErrMissingOldValue
		}
		if len(e.NewValue) != 0 {
			return ErrUnexpectedNewValue
		}
	default:
		return fmt.Errorf("%w: %d", ErrInvalidKind, e.Kind)
	}
	return nil
}

// Key returns the identity of the record the event refers to. CREATED and
// CHANGED prefer the new value; REMOVED uses the old value.
func (e ChangeEvent) Key(field string) (any, bool) {
	switch e.Kind {
	case KindRemoved:
		return e.OldValue.Lookup(field)
	default:
		if v, ok := e.NewValue.Lookup(field); ok {
			return v, true
		}
		return e.OldValue.Lookup(field)
	}
}

// Created returns a CREATED event for resource.
func Created(resource string, newValue Record) ChangeEvent {
	return ChangeEvent{Kind: KindCreated, Resource: resource, NewValue: newValue}
}

// Changed returns a CHANGED event for resource.
func Changed(resource string, oldValue, newValue Record) ChangeEvent {
	return ChangeEvent{Kind: KindChanged, Resource: resource, OldValue: oldValue, NewValue: newValue}
}

// Removed returns a REMOVED event for resource.
func Removed(resource string, oldValue Record) ChangeEvent {
	return ChangeEvent{Kind: KindRemoved, Resource: resource, OldValue: oldValue}
}
