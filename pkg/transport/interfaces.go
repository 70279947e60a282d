package transport

import (
	"context"

	"github.com/fundingarb/livesync/pkg/feed"
)

// ChannelSpec scopes a channel to one feed.
type ChannelSpec struct {
	// Resource is the feed name, e.g. "positions".
	Resource string

	// Schema is the database schema of the resource.
	Schema string

	// Events selects the kinds the channel should deliver.
	Events feed.EventMask

	// Predicate is an optional column=op.value filter.
	Predicate string
}

// Name returns the transport channel name for the spec.
func (s ChannelSpec) Name() string {
	return feed.ChannelName(s.Resource)
}

// Handler receives channel lifecycle events and payloads.
// Subscriptions supply one Handler per open attempt.
type Handler interface {
	// OnOpen is called once the channel is established.
	OnOpen()

	// OnError is called when the channel fails to open or fails while open.
	OnError(err error)

	// OnClosed is called when the channel closes cleanly.
	OnClosed()

	// OnMessage is called for each raw payload while the channel is open.
	OnMessage(raw []byte)
}

// Channel is one open or opening transport channel.
type Channel interface {
	// Close tears the channel down. It is idempotent.
	Close() error
}

// Transport opens channels for subscriptions.
// Implemented by Hub and Postgres.
type Transport interface {
	// OpenChannel starts opening a channel scoped to spec and returns
	// immediately. The outcome is reported through h.
	OpenChannel(ctx context.Context, spec ChannelSpec, h Handler) (Channel, error)
}

// HandlerFuncs adapts plain functions to Handler. Nil fields are ignored.
type HandlerFuncs struct {
	Open    func()
	Error   func(err error)
	Closed  func()
	Message func(raw []byte)
}

func (f HandlerFuncs) OnOpen() {
	if f.Open != nil {
		f.Open()
	}
}

func (f HandlerFuncs) OnError(err error) {
	if f.Error != nil {
		f.Error(err)
	}
}

func (f HandlerFuncs) OnClosed() {
	if f.Closed != nil {
		f.Closed()
	}
}

func (f HandlerFuncs) OnMessage(raw []byte) {
	if f.Message != nil {
		f.Message(raw)
	}
}

// Compile-time interface satisfaction check.
var _ Handler = HandlerFuncs{}
